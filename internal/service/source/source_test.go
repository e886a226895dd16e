package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	pkgkafka "FinPulse/pkg/kafka"
	applogger "FinPulse/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestBinance_PartialSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, `["BTCUSDT","ETHUSDT","DOGEUSDT"]`, r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"60000.5","priceChangePercent":"-6.20","volume":"1200.1"},
			{"symbol":"ETHUSDT","lastPrice":"3000","priceChangePercent":"1.5","volume":"900"}
		]`))
	}))
	defer srv.Close()

	b := NewBinance("binance", srv.URL, []string{"btcusdt", "ETHUSDT", "DOGEUSDT"}, xhttp.NewClient(), clock, applogger.Nop())
	recs, err := b.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	q, ok := recs[0].Quote()
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.InDelta(t, -6.2, q.ChangePct, 1e-9)
	assert.Equal(t, fixedNow, recs[0].CapturedAt())
}

func TestBinance_AllFailIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","lastPrice":"n/a","priceChangePercent":"1","volume":"1"}]`))
	}))
	defer srv.Close()

	b := NewBinance("binance", srv.URL, []string{"BTCUSDT"}, xhttp.NewClient(), clock, applogger.Nop())
	_, err := b.Fetch(context.Background())
	var fe *models.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Reason, "BTCUSDT")
}

func TestStock_ChangeFromPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2d", r.URL.Query().Get("range"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL"},
				"indicators":{"quote":[{"close":[100.0,103.0],"volume":[10,20]}]}}],"error":null}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
		}
	}))
	defer srv.Close()

	s := NewStock("stocks", srv.URL, []string{"AAPL", "NOPE"}, xhttp.NewClient(xhttp.WithUserAgent(BrowserUA)), clock, applogger.Nop())
	recs, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	q, _ := recs[0].Quote()
	assert.Equal(t, 103.0, q.Price)
	assert.Equal(t, 3.0, q.ChangePct)
	assert.Equal(t, 20.0, q.Volume)
}

func TestChangePct(t *testing.T) {
	assert.Equal(t, 0.0, changePct(10, 0))
	assert.Equal(t, -33.33, changePct(2, 3))
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Markets</title>
<item><title>Central bank cuts rates</title><link>http://news.example/1</link>
<description><![CDATA[<p>Central bank <b>cuts</b> rates</p>]]></description>
<pubDate>Mon, 02 Mar 2026 10:00:00 +0000</pubDate></item>
<item><title>Old story</title><link>http://news.example/2</link>
<pubDate>Fri, 27 Feb 2026 10:00:00 +0000</pubDate></item>
<item><title>Undated tariff update</title><link>http://news.example/3</link></item>
</channel></rss>`

func TestRSS_FiltersByAgeAndStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	r := NewRSS("news", srv.URL, 20, 24*time.Hour, http.DefaultClient, clock)
	recs, err := r.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	n, ok := recs[0].News()
	require.True(t, ok)
	assert.Equal(t, "Central bank cuts rates", n.Title)
	assert.Equal(t, "Central bank cuts rates", n.BodySummary)
	assert.True(t, n.PublishedAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))

	n, _ = recs[1].News()
	assert.True(t, n.PublishedAt.IsZero())
}

func TestRSS_MaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	recs, err := NewRSS("news", srv.URL, 1, 0, http.DefaultClient, clock).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a b", StripHTML("  a\n\tb "))
	assert.Equal(t, "x & y", StripHTML("<div>x &amp; <i>y</i></div>"))
}

const policyHTML = `<html><body>
<ul class="list">
<li><a href="/goutongjiaoliu/113456/4567.html">央行开展逆回购操作</a><span>2026-03-02</span></li>
<li><a href="./detail/2.html" title="Full title">Short</a> <span>2026年03月01日</span></li>
<li><a href="http://other.example/x.html">Old item</a><span>2026-01-05</span></li>
<li><a href="javascript:void(0)">skip</a></li>
<li><a href="/goutongjiaoliu/113456/4567.html">央行开展逆回购操作</a></li>
</ul></body></html>`

func TestPolicy_ScrapesAndResolvesLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(policyHTML))
	}))
	defer srv.Close()

	// 12:00 in Shanghai.
	now := func() time.Time { return time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC) }
	p := NewPolicy("pbc", srv.URL+"/policy/index.html", nil, 20, 24*time.Hour, xhttp.NewClient(), now)
	recs, err := p.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	n, _ := recs[0].News()
	assert.Equal(t, "央行开展逆回购操作", n.Title)
	assert.Equal(t, srv.URL+"/goutongjiaoliu/113456/4567.html", n.URL)
	assert.Equal(t, 2, n.PublishedAt.Day())

	n, _ = recs[1].News()
	assert.Equal(t, "Full title", n.Title)
	assert.Equal(t, srv.URL+"/policy/detail/2.html", n.URL)
}

func TestPolicy_HTTPErrorIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewPolicy("pbc", srv.URL, nil, 20, 0, xhttp.NewClient(), clock).Fetch(context.Background())
	var fe *models.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "pbc", fe.SourceID)
}

func wsServer(t *testing.T, frames []string, hold bool) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		var sub subscribeRequest
		if err := c.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "SUBSCRIBE", sub.Method)
		assert.Contains(t, sub.Params, "btcusdt@ticker")
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		for _, f := range frames {
			_ = c.WriteMessage(websocket.TextMessage, []byte(f))
		}
		if hold {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
}

func tickerJSON(sym, price, change string) string {
	return fmt.Sprintf(`{"e":"24hrTicker","s":%q,"c":%q,"P":%q,"v":"10"}`, sym, price, change)
}

func TestStream_ReadsUntilAllSymbolsSeen(t *testing.T) {
	srv := wsServer(t, []string{
		tickerJSON("BTCUSDT", "60000", "-1.0"),
		tickerJSON("XRPUSDT", "1", "0"),
		tickerJSON("ETHUSDT", "3000", "2.5"),
	}, true)
	defer srv.Close()

	s := NewStream("ws", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT", "ETHUSDT"}, clock, applogger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := s.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	q, _ := recs[1].Quote()
	assert.Equal(t, "ETHUSDT", q.Symbol)
	assert.Equal(t, 2.5, q.ChangePct)
}

func TestStream_DeadlineKeepsPartial(t *testing.T) {
	srv := wsServer(t, []string{tickerJSON("BTCUSDT", "60000", "-1.0")}, true)
	defer srv.Close()

	s := NewStream("ws", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT", "ETHUSDT"}, clock, applogger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	recs, err := s.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

type fakeDrainer struct {
	msgs []pkgkafka.Received
	err  error
}

func (f fakeDrainer) Drain(context.Context, int, time.Duration) ([]pkgkafka.Received, error) {
	return f.msgs, f.err
}

func TestKafkaQuotes_NewestPerSymbolWins(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := fakeDrainer{msgs: []pkgkafka.Received{
		{Value: []byte(`{"symbol":"btcusdt","price":1,"change_pct":1}`), Time: t0.Add(time.Minute)},
		{Value: []byte(`not json`), Time: t0},
		{Value: []byte(`{"symbol":"BTCUSDT","price":0.5,"change_pct":-1}`), Time: t0},
		{Value: []byte(`{"symbol":"ETHUSDT","price":2,"change_pct":3}`), Time: t0},
		{Key: []byte("sol"), Value: []byte(`{"price":3}`), Time: t0},
	}}
	k := NewKafkaQuotes("ticks", d, []string{"BTCUSDT", "ETHUSDT"}, 100, clock)
	recs, err := k.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	q, _ := recs[0].Quote()
	assert.Equal(t, 1.0, q.Price)
	assert.True(t, recs[0].CapturedAt().Equal(t0.Add(time.Minute)))
}

func TestKafkaQuotes_DrainErrorWithoutMessages(t *testing.T) {
	k := NewKafkaQuotes("ticks", fakeDrainer{err: errors.New("broker down")}, nil, 100, clock)
	_, err := k.Fetch(context.Background())
	var fe *models.FetchError
	require.True(t, errors.As(err, &fe))
}

type stubSource struct {
	recs []models.SourceRecord
	err  error
	boom bool
}

func (s stubSource) ID() string        { return "stub" }
func (s stubSource) Kind() models.Kind { return models.KindQuote }
func (s stubSource) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	if s.boom {
		panic("nil map")
	}
	return s.recs, s.err
}

func TestGuard(t *testing.T) {
	var fe *models.FetchError

	_, err := Guard(stubSource{boom: true}).Fetch(context.Background())
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "panic: nil map", fe.Reason)

	_, err = Guard(stubSource{err: errors.New("eof")}).Fetch(context.Background())
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "stub", fe.SourceID)
	assert.Equal(t, "eof", fe.Reason)

	_, err = Guard(stubSource{err: fmt.Errorf("get: %w", context.DeadlineExceeded)}).Fetch(context.Background())
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "timeout", fe.Reason)

	g := Guard(stubSource{})
	assert.Equal(t, g, Guard(g))
}

func TestValidate(t *testing.T) {
	err := Validate([]config.SourceConfig{
		{ID: "a", Type: "binance"},
		{ID: "b", Type: "rss"},
		{ID: "a", Type: "kafka"},
		{ID: "ok", Type: "stock", Symbols: []string{"AAPL"}},
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "sources[0].symbols")
	assert.Contains(t, msg, "sources[1].url")
	assert.Contains(t, msg, "sources[2].id")
	assert.Contains(t, msg, "sources[2].topic")
	assert.NotContains(t, msg, "sources[3]")
}

func TestBuild(t *testing.T) {
	s, err := Build(config.SourceConfig{ID: "n", Type: "rss", URL: "http://x"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, models.KindNews, s.Kind())
	assert.Equal(t, "n", s.ID())

	_, err = Build(config.SourceConfig{ID: "k", Type: "kafka", Topic: "ticks"}, Deps{})
	require.Error(t, err)

	_, err = Build(config.SourceConfig{ID: "x", Type: "ftp"}, Deps{})
	require.Error(t, err)
}
