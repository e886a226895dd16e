package source

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinPulse/internal/domain/models"
	xhttp "FinPulse/pkg/http"
	applogger "FinPulse/pkg/logger"
)

const DefaultYahooURL = "https://query1.finance.yahoo.com"

// stockConcurrency bounds parallel chart requests per fetch.
const stockConcurrency = 4

// Stock reads daily bars from the Yahoo chart API, one request per symbol,
// and derives change_pct from the previous close.
type Stock struct {
	id      string
	baseURL string
	symbols []string
	client  *xhttp.Client
	now     func() time.Time
	log     *applogger.Logger
}

func NewStock(id, baseURL string, symbols []string, client *xhttp.Client, now func() time.Time, log *applogger.Logger) *Stock {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &Stock{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: upper(symbols),
		client:  client,
		now:     now,
		log:     log,
	}
}

func (s *Stock) ID() string        { return s.id }
func (s *Stock) Kind() models.Kind { return models.KindQuote }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *Stock) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	at := s.now()
	var (
		mu     sync.Mutex
		quotes = make(map[string]models.Quote, len(s.symbols))
		failed = symbolFailures{}
		g      errgroup.Group
	)
	g.SetLimit(stockConcurrency)
	for _, sym := range s.symbols {
		sym := sym
		g.Go(func() error {
			q, err := s.fetchOne(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed.add(sym, err)
				return nil
			}
			quotes[sym] = q
			return nil
		})
	}
	_ = g.Wait()

	recs := make([]models.SourceRecord, 0, len(quotes))
	for _, sym := range s.symbols {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		rec, err := models.NewQuoteRecord(s.id, at, q)
		if err != nil {
			failed.add(sym, err)
			continue
		}
		recs = append(recs, rec)
	}
	return finishQuotes(s.id, recs, failed, s.log)
}

func (s *Stock) fetchOne(ctx context.Context, symbol string) (models.Quote, error) {
	var resp chartResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    s.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		QueryParams: map[string][]string{
			"range":    {"2d"},
			"interval": {"1d"},
		},
	}, &resp)
	if err != nil {
		return models.Quote{}, err
	}
	if resp.Chart.Error != nil {
		return models.Quote{}, fmt.Errorf("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return models.Quote{}, fmt.Errorf("empty chart")
	}
	r := resp.Chart.Result[0]

	var closes, volumes []float64
	if len(r.Indicators.Quote) > 0 {
		closes = present(r.Indicators.Quote[0].Close)
		volumes = present(r.Indicators.Quote[0].Volume)
	}

	var price, prev float64
	switch {
	case len(closes) >= 2:
		price, prev = closes[len(closes)-1], closes[len(closes)-2]
	case len(closes) == 1:
		price = closes[0]
		if r.Meta.ChartPreviousClose != nil {
			prev = *r.Meta.ChartPreviousClose
		}
	case r.Meta.RegularMarketPrice != nil:
		price = *r.Meta.RegularMarketPrice
		if r.Meta.ChartPreviousClose != nil {
			prev = *r.Meta.ChartPreviousClose
		}
	default:
		return models.Quote{}, fmt.Errorf("no price data")
	}

	var vol float64
	if len(volumes) > 0 {
		vol = volumes[len(volumes)-1]
	}
	return models.Quote{
		Symbol:    symbol,
		Price:     price,
		ChangePct: changePct(price, prev),
		Volume:    vol,
	}, nil
}

// changePct is (cur-prev)/prev*100 rounded to two places; 0 without a previous close.
func changePct(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return math.Round((cur-prev)/prev*10000) / 100
}

func present(vals []*float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}
