package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"FinPulse/internal/domain/models"
	applogger "FinPulse/pkg/logger"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// Stream subscribes to the Binance 24hr ticker stream and returns once every
// symbol has reported or the fetch deadline passes.
type Stream struct {
	id      string
	url     string
	symbols []string
	dialer  *websocket.Dialer
	now     func() time.Time
	log     *applogger.Logger
}

func NewStream(id, wsURL string, symbols []string, now func() time.Time, log *applogger.Logger) *Stream {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	return &Stream{
		id:      id,
		url:     wsURL,
		symbols: upper(symbols),
		dialer:  websocket.DefaultDialer,
		now:     now,
		log:     log,
	}
}

func (s *Stream) ID() string        { return s.id }
func (s *Stream) Kind() models.Kind { return models.KindQuote }

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// tickerFrame is the 24hrTicker event; other frames lack "e".
type tickerFrame struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	ChangePct string `json:"P"`
	Volume    string `json:"v"`
}

func (s *Stream) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, &models.FetchError{SourceID: s.id, Reason: "dial: " + err.Error(), Err: err}
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	params := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		params[i] = strings.ToLower(sym) + "@ticker"
	}
	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: 1}); err != nil {
		return nil, &models.FetchError{SourceID: s.id, Reason: "subscribe: " + err.Error(), Err: err}
	}

	want := make(map[string]bool, len(s.symbols))
	for _, sym := range s.symbols {
		want[sym] = true
	}
	latest := make(map[string]models.SourceRecord, len(s.symbols))
	failed := symbolFailures{}

	for len(latest) < len(want) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if len(latest) == 0 && ctx.Err() == nil {
				return nil, &models.FetchError{SourceID: s.id, Reason: "read: " + err.Error(), Err: err}
			}
			break
		}
		var f tickerFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event != "24hrTicker" || !want[f.Symbol] {
			continue
		}
		q, err := f.quote()
		if err != nil {
			failed.add(f.Symbol, err)
			continue
		}
		rec, err := models.NewQuoteRecord(s.id, s.now(), q)
		if err != nil {
			failed.add(f.Symbol, err)
			continue
		}
		delete(failed, f.Symbol)
		latest[f.Symbol] = rec
	}

	recs := make([]models.SourceRecord, 0, len(latest))
	for _, sym := range s.symbols {
		if rec, ok := latest[sym]; ok {
			recs = append(recs, rec)
		} else if _, bad := failed[sym]; !bad {
			failed.add(sym, fmt.Errorf("no ticker before deadline"))
		}
	}
	return finishQuotes(s.id, recs, failed, s.log)
}

func (f tickerFrame) quote() (models.Quote, error) {
	price, err := strconv.ParseFloat(f.Close, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("close %q: %w", f.Close, err)
	}
	change, err := strconv.ParseFloat(f.ChangePct, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("change %q: %w", f.ChangePct, err)
	}
	vol, err := strconv.ParseFloat(f.Volume, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("volume %q: %w", f.Volume, err)
	}
	return models.Quote{Symbol: f.Symbol, Price: price, ChangePct: change, Volume: vol}, nil
}
