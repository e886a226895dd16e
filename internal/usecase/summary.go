package usecase

import (
	"fmt"
	"strings"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/services/assessment"
)

const hotTopics = 5

// Summary renders the short market snapshot: up and down counts per market
// group, the hottest keywords and the verdict line.
func Summary(obs *models.ObservationSet, v *models.Verdict, groups map[string]string, keywords []string) string {
	lines := []string{"Market Snapshot"}
	if obs != nil {
		type tally struct{ up, down int }
		counts := map[string]*tally{}
		var order []string
		for _, r := range obs.QuoteRecords() {
			g := groups[r.SourceID()]
			if g == "" {
				g = "quotes"
			}
			t, ok := counts[g]
			if !ok {
				t = &tally{}
				counts[g] = t
				order = append(order, g)
			}
			q, _ := r.Quote()
			switch {
			case q.ChangePct > 0:
				t.up++
			case q.ChangePct < 0:
				t.down++
			}
		}
		for _, g := range order {
			lines = append(lines, fmt.Sprintf("%s: %d up, %d down", groupTitle(g), counts[g].up, counts[g].down))
		}

		trends := assessment.KeywordTrends(obs.News(), keywords)
		if len(trends) > hotTopics {
			trends = trends[:hotTopics]
		}
		if len(trends) > 0 {
			names := make([]string, len(trends))
			for i, t := range trends {
				names[i] = t.Keyword
			}
			lines = append(lines, "Hot topics: "+strings.Join(names, ", "))
		}
	}
	if v != nil {
		lines = append(lines, VerdictLine(v))
	}
	return strings.Join(lines, "\n")
}

// VerdictLine is the one-line form of a verdict.
func VerdictLine(v *models.Verdict) string {
	line := fmt.Sprintf("Sentiment %+.2f, volatility %s", v.SentimentScore, v.Volatility.Level)
	if c := v.Volatility.Confidence; c != nil {
		line += fmt.Sprintf(" (confidence %.2f)", *c)
	}
	return line
}

// DigestText is the plain message sent on digest ticks.
func DigestText(r *models.TickReport) string {
	var sb strings.Builder
	sb.WriteString(r.Summary)
	if r.Verdict != nil && r.Verdict.Rationale != "" {
		sb.WriteString("\n\n")
		sb.WriteString(r.Verdict.Rationale)
	}
	if n := len(r.Alerts); n > 0 {
		fmt.Fprintf(&sb, "\n\nAlerts this round: %d", n)
	}
	if n := len(r.Failures); n > 0 {
		fmt.Fprintf(&sb, "\nUnavailable sources: %d", n)
	}
	return sb.String()
}

func groupTitle(g string) string {
	switch g {
	case "stocks":
		return "Stocks"
	case "crypto":
		return "Crypto"
	case "news":
		return "News"
	}
	return strings.ToUpper(g[:1]) + g[1:]
}
