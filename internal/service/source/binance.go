package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinPulse/internal/domain/models"
	xhttp "FinPulse/pkg/http"
	applogger "FinPulse/pkg/logger"
)

const DefaultBinanceURL = "https://api.binance.com"

// Binance reads 24h tickers from the public REST API in one batch call.
type Binance struct {
	id      string
	baseURL string
	symbols []string
	client  *xhttp.Client
	now     func() time.Time
	log     *applogger.Logger
}

func NewBinance(id, baseURL string, symbols []string, client *xhttp.Client, now func() time.Time, log *applogger.Logger) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: upper(symbols),
		client:  client,
		now:     now,
		log:     log,
	}
}

func (b *Binance) ID() string        { return b.id }
func (b *Binance) Kind() models.Kind { return models.KindQuote }

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
}

func (b *Binance) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	param, err := json.Marshal(b.symbols)
	if err != nil {
		return nil, err
	}
	var tickers []binanceTicker
	err = b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + "/api/v3/ticker/24hr",
		QueryParams: map[string][]string{"symbols": {string(param)}},
	}, &tickers)
	if err != nil {
		return nil, &models.FetchError{SourceID: b.id, Reason: "binance ticker: " + err.Error(), Err: err}
	}

	bySymbol := make(map[string]binanceTicker, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t
	}

	at := b.now()
	failed := symbolFailures{}
	recs := make([]models.SourceRecord, 0, len(b.symbols))
	for _, sym := range b.symbols {
		t, ok := bySymbol[sym]
		if !ok {
			failed.add(sym, fmt.Errorf("missing from response"))
			continue
		}
		q, err := t.quote()
		if err != nil {
			failed.add(sym, err)
			continue
		}
		rec, err := models.NewQuoteRecord(b.id, at, q)
		if err != nil {
			failed.add(sym, err)
			continue
		}
		recs = append(recs, rec)
	}
	return finishQuotes(b.id, recs, failed, b.log)
}

func (t binanceTicker) quote() (models.Quote, error) {
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("lastPrice %q: %w", t.LastPrice, err)
	}
	change, err := strconv.ParseFloat(t.PriceChangePercent, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("priceChangePercent %q: %w", t.PriceChangePercent, err)
	}
	vol, err := strconv.ParseFloat(t.Volume, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("volume %q: %w", t.Volume, err)
	}
	return models.Quote{Symbol: t.Symbol, Price: price, ChangePct: change, Volume: vol}, nil
}

func upper(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
