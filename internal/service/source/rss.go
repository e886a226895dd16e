package source

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/util"
)

// summaryRunes caps the plain-text body kept per entry.
const summaryRunes = 500

// RSS reads an RSS or Atom feed and keeps the newest entries within maxAge.
type RSS struct {
	id       string
	url      string
	maxItems int
	maxAge   time.Duration
	parser   *gofeed.Parser
	now      func() time.Time
}

func NewRSS(id, feedURL string, maxItems int, maxAge time.Duration, client *http.Client, now func() time.Time) *RSS {
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = BrowserUA
	return &RSS{id: id, url: feedURL, maxItems: maxItems, maxAge: maxAge, parser: p, now: now}
}

func (r *RSS) ID() string        { return r.id }
func (r *RSS) Kind() models.Kind { return models.KindNews }

func (r *RSS) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	feed, err := r.parser.ParseURLWithContext(r.url, ctx)
	if err != nil {
		return nil, &models.FetchError{SourceID: r.id, Reason: "parse feed: " + err.Error(), Err: err}
	}

	at := r.now()
	var cutoff time.Time
	if r.maxAge > 0 {
		cutoff = at.Add(-r.maxAge)
	}

	items := feed.Items
	if r.maxItems > 0 && len(items) > r.maxItems {
		items = items[:r.maxItems]
	}
	recs := make([]models.SourceRecord, 0, len(items))
	for _, it := range items {
		published := itemTime(it)
		if !published.IsZero() && !cutoff.IsZero() && published.Before(cutoff) {
			continue
		}
		body := it.Description
		if body == "" {
			body = it.Content
		}
		rec, err := models.NewNewsRecord(r.id, at, models.News{
			Title:       util.CollapseSpace(it.Title),
			BodySummary: util.TruncateRunes(StripHTML(body), summaryRunes),
			PublishedAt: published,
			URL:         strings.TrimSpace(it.Link),
		})
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func itemTime(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	}
	return time.Time{}
}

// StripHTML returns the text content of an HTML fragment with whitespace folded.
func StripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return util.CollapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return util.CollapseSpace(fragment)
	}
	return util.CollapseSpace(doc.Text())
}
