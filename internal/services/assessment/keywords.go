package assessment

import (
	"sort"
	"strings"

	"FinPulse/internal/domain/models"
)

// DefaultKeywords are the policy and macro terms tracked in headlines.
var DefaultKeywords = []string{
	"降息", "加息", "利率", "央行", "通胀", "GDP", "贸易", "关税", "政策", "监管",
	"证监会", "美联储", "Fed", "利率决议", "经济数据", "就业", "PMI", "CPI", "PPI",
	"rate cut", "rate hike", "inflation", "tariff", "central bank",
}

type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// KeywordTrends counts, per keyword, the news items whose title or summary
// mention it. The result is sorted by count, ties kept in keyword order.
func KeywordTrends(news []models.News, keywords []string) []KeywordCount {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	counts := make([]KeywordCount, 0, len(keywords))
	for _, kw := range keywords {
		needle := strings.ToLower(kw)
		n := 0
		for _, item := range news {
			text := strings.ToLower(item.Title + " " + item.BodySummary)
			if strings.Contains(text, needle) {
				n++
			}
		}
		if n > 0 {
			counts = append(counts, KeywordCount{Keyword: kw, Count: n})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts
}
