package usecase

import (
	"fmt"
	"strings"

	"FinPulse/internal/domain/models"
)

// RenderMarkdown writes the report file produced by `analyze -o`.
func RenderMarkdown(r *models.TickReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# FinPulse Market Report\n\n")
	fmt.Fprintf(&sb, "- Tick: `%s` (%s)\n", r.Tick.ID, r.Tick.Trigger)
	fmt.Fprintf(&sb, "- Generated: %s\n", r.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- Records: %d quotes, %d news\n\n", r.Quotes, r.News)

	sb.WriteString("## Summary\n\n```\n")
	sb.WriteString(r.Summary)
	sb.WriteString("\n```\n\n")

	if v := r.Verdict; v != nil {
		sb.WriteString("## Assessment\n\n")
		fmt.Fprintf(&sb, "%s\n\n%s\n\n", VerdictLine(v), v.Rationale)
		if v.Model != "" {
			fmt.Fprintf(&sb, "_Model: %s, attempts: %d_\n\n", v.Model, r.Attempts)
		}
	}

	if len(r.Alerts) > 0 {
		sb.WriteString("## Alerts\n\n| Severity | Rule | Subject | Value | Message |\n|---|---|---|---|---|\n")
		for _, a := range r.Alerts {
			fmt.Fprintf(&sb, "| %s | %s | %s | %.2f | %s |\n", a.Severity, a.RuleID, a.Subject, a.Value, a.Message)
		}
		sb.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		sb.WriteString("## Unavailable sources\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.SourceID, f.Reason)
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	return sb.String()
}
