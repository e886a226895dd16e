package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FinPulse/internal/domain/models"
	xhttp "FinPulse/pkg/http"
	"FinPulse/pkg/util"
)

// DefaultPolicySelectors match the list layouts of the central bank and
// regulator announcement pages.
var DefaultPolicySelectors = []string{"ul.list li a", "div.newslist a", "table a"}

// shanghai is the calendar policy dates are published in.
var shanghai = loadLocation("Asia/Shanghai")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Policy scrapes an HTML announcement list by CSS selectors.
type Policy struct {
	id        string
	page      string
	selectors []string
	maxItems  int
	maxAge    time.Duration
	client    *xhttp.Client
	now       func() time.Time
}

func NewPolicy(id, page string, selectors []string, maxItems int, maxAge time.Duration, client *xhttp.Client, now func() time.Time) *Policy {
	if len(selectors) == 0 {
		selectors = DefaultPolicySelectors
	}
	return &Policy{
		id:        id,
		page:      page,
		selectors: selectors,
		maxItems:  maxItems,
		maxAge:    maxAge,
		client:    client,
		now:       now,
	}
}

func (p *Policy) ID() string        { return p.id }
func (p *Policy) Kind() models.Kind { return models.KindNews }

func (p *Policy) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	base, err := url.Parse(p.page)
	if err != nil {
		return nil, &models.FetchError{SourceID: p.id, Reason: "bad page url", Err: err}
	}
	var body []byte
	err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     p.page,
		Headers: map[string]string{"Accept": "text/html,application/xhtml+xml"},
	}, &body)
	if err != nil {
		return nil, &models.FetchError{SourceID: p.id, Reason: "fetch page: " + err.Error(), Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &models.FetchError{SourceID: p.id, Reason: "parse page: " + err.Error(), Err: err}
	}

	at := p.now()
	var cutoff time.Time
	if p.maxAge > 0 {
		y, m, d := at.Add(-p.maxAge).In(shanghai).Date()
		cutoff = time.Date(y, m, d, 0, 0, 0, 0, shanghai)
	}

	seen := map[string]bool{}
	var recs []models.SourceRecord
	doc.Find(strings.Join(p.selectors, ", ")).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if p.maxItems > 0 && len(recs) >= p.maxItems {
			return false
		}
		title := util.CollapseSpace(s.AttrOr("title", s.Text()))
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
			return true
		}
		link := resolve(base, href)
		if seen[link] {
			return true
		}
		seen[link] = true

		published, _ := util.ParseLooseDate(s.Parent().Text(), shanghai)
		if !published.IsZero() && !cutoff.IsZero() && published.Before(cutoff) {
			return true
		}
		rec, err := models.NewNewsRecord(p.id, at, models.News{
			Title:       title,
			PublishedAt: published,
			URL:         link,
		})
		if err == nil {
			recs = append(recs, rec)
		}
		return true
	})
	return recs, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
