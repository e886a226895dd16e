package assessment

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/util"
)

const (
	maxHeadlines      = 30
	maxTrendKeywords  = 10
	defaultPromptCap  = 12000
	headlineTimestamp = "01-02 15:04"
)

// SystemPrompt fixes the reply schema.
const SystemPrompt = `You are a professional financial market analyst. You read market quotes, news and policy headlines and judge near-term market sentiment and volatility. Be objective and concise.

Reply with JSON only, no other text:
{
  "sentiment_score": number from -1 (extreme fear) to 1 (extreme greed),
  "volatility_forecast": {"level": "low" | "medium" | "high", "confidence": number from 0 to 1},
  "rationale": "two to four sentences on the main drivers, policy impact and risks for the next 1-3 days"
}`

// PromptBuilder renders observations into the user prompt under a size cap.
type PromptBuilder struct {
	Keywords []string
	MaxChars int
}

// Build returns the system and user prompts. When the user prompt exceeds
// MaxChars, history lines go first, then the oldest headlines.
func (b PromptBuilder) Build(obs *models.ObservationSet, history []*models.ObservationSet) (string, string) {
	limit := b.MaxChars
	if limit <= 0 {
		limit = defaultPromptCap
	}
	quotes := quoteLines(obs)
	headlines := headlineLines(obs)
	trends := trendLine(KeywordTrends(obs.News(), b.Keywords))
	past := historyLines(history)

	user := render(obs, quotes, headlines, trends, past, len(obs.Failures()))
	for utf8.RuneCountInString(user) > limit && len(past) > 0 {
		past = past[1:]
		user = render(obs, quotes, headlines, trends, past, len(obs.Failures()))
	}
	for utf8.RuneCountInString(user) > limit && len(headlines) > 0 {
		headlines = headlines[:len(headlines)-1]
		user = render(obs, quotes, headlines, trends, past, len(obs.Failures()))
	}
	if utf8.RuneCountInString(user) > limit {
		user = util.TruncateRunes(user, limit-3)
	}
	return SystemPrompt, user
}

func render(obs *models.ObservationSet, quotes, headlines []string, trends string, past []string, failed int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Observation time: %s\n", obs.CollectedAt().UTC().Format("2006-01-02 15:04 MST"))
	if failed > 0 {
		fmt.Fprintf(&sb, "Sources unavailable this round: %d\n", failed)
	}
	section(&sb, "Market quotes", quotes)
	section(&sb, "Latest headlines", headlines)
	if trends != "" {
		sb.WriteString("\n## Keyword trends\n")
		sb.WriteString(trends)
		sb.WriteString("\n")
	}
	section(&sb, "Previous rounds", past)
	sb.WriteString("\nAssess the current market sentiment and the volatility outlook.")
	return sb.String()
}

func section(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n", title)
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
}

func quoteLines(obs *models.ObservationSet) []string {
	var out []string
	for _, r := range obs.QuoteRecords() {
		q, _ := r.Quote()
		out = append(out, fmt.Sprintf("  [%s] %s: %.2f %+.2f%% vol %.0f", r.SourceID(), q.Symbol, q.Price, q.ChangePct, q.Volume))
	}
	return out
}

// headlineLines lists unique titles, newest first.
func headlineLines(obs *models.ObservationSet) []string {
	type item struct {
		source string
		news   models.News
	}
	var items []item
	for _, r := range obs.Records() {
		if n, ok := r.News(); ok {
			items = append(items, item{source: r.SourceID(), news: n})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].news.PublishedAt.After(items[j].news.PublishedAt)
	})

	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if len(out) == maxHeadlines {
			break
		}
		if seen[it.news.Title] {
			continue
		}
		seen[it.news.Title] = true
		stamp := ""
		if !it.news.PublishedAt.IsZero() {
			stamp = " " + it.news.PublishedAt.Format(headlineTimestamp)
		}
		out = append(out, fmt.Sprintf("  [%s]%s: %s", it.source, stamp, it.news.Title))
	}
	return out
}

func trendLine(trends []KeywordCount) string {
	if len(trends) > maxTrendKeywords {
		trends = trends[:maxTrendKeywords]
	}
	parts := make([]string, len(trends))
	for i, t := range trends {
		parts[i] = fmt.Sprintf("%s(%d)", t.Keyword, t.Count)
	}
	return strings.Join(parts, ", ")
}

// historyLines compresses each past tick to its quote changes, oldest first.
func historyLines(history []*models.ObservationSet) []string {
	var out []string
	for _, h := range history {
		if h == nil {
			continue
		}
		quotes := h.Quotes()
		changes := make([]string, 0, len(quotes))
		for _, q := range quotes {
			changes = append(changes, fmt.Sprintf("%s %+.2f%%", q.Symbol, q.ChangePct))
		}
		line := fmt.Sprintf("  %s: %d headlines", h.CollectedAt().UTC().Format("01-02 15:04"), len(h.News()))
		if len(changes) > 0 {
			line += "; " + strings.Join(changes, ", ")
		}
		out = append(out, line)
	}
	return out
}
