package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"

	"github.com/dshills/prgate/internal/review"
)

// TextWriter outputs a human-readable terminal report.
type TextWriter struct {
	Color bool
}

func (t *TextWriter) Write(w io.Writer, res *review.Result) error {
	au := aurora.NewAurora(t.Color)
	ew := &errWriter{w: w}

	ew.printf("prgate review of %s#%d: %s\n", res.PR.Repo, res.PR.Number, res.PR.Title)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Decision: %s\n", decisionColor(au, res.Decision))
	ew.printf("Intent:   %s (%s, %s complexity)\n", res.Intent.Summary, res.Intent.Type, res.Intent.Complexity)
	ew.printf("Risk:     %s %d/10", riskColor(au, res.Risk.Level), res.Risk.Score)
	if len(res.Risk.Factors) > 0 {
		ew.printf(" [%s]", strings.Join(res.Risk.Factors, ", "))
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	for _, fr := range res.FileReviews {
		ew.printf("\n  %s %s\n", verdictColor(au, fr.Verdict), au.Bold(fr.Path))
		if fr.Summary != "" {
			for _, line := range wrapText(fr.Summary, 70) {
				ew.printf("    %s\n", line)
			}
		}
		for _, is := range fr.Issues {
			ew.printf("    %s %s: %s\n", severityIcon(au, is.Severity), is.Category, is.Message)
			if is.Suggestion != "" {
				for _, line := range wrapText(is.Suggestion, 66) {
					ew.printf("        %s\n", au.Faint(line))
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	for _, line := range strings.Split(res.FinalReview, "\n") {
		ew.printf("%s\n", line)
	}

	if len(res.Errors) > 0 {
		ew.printf("\n%s\n", au.Yellow(fmt.Sprintf("%d analysis steps failed:", len(res.Errors))))
		for _, e := range res.Errors {
			ew.printf("  [%s] %s %s: %s\n", e.Kind, e.Stage, e.Subject, e.Message)
		}
	}

	ew.printf("\nCompleted in %dms (intent: %dms, risk: %dms, files: %dms, summary: %dms) using %s strategy\n",
		res.Timing.TotalMs, res.Timing.IntentMs, res.Timing.RiskMs, res.Timing.FilesMs, res.Timing.SummarizeMs, res.Strategy)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func decisionColor(au aurora.Aurora, d review.Decision) aurora.Value {
	switch d {
	case review.DecisionApprove:
		return au.Green(d).Bold()
	case review.DecisionRequestChanges:
		return au.Red(d).Bold()
	default:
		return au.Cyan(d).Bold()
	}
}

func riskColor(au aurora.Aurora, l review.RiskLevel) aurora.Value {
	switch l {
	case review.RiskHigh:
		return au.Red(l)
	case review.RiskMedium:
		return au.Yellow(l)
	default:
		return au.Green(l)
	}
}

func verdictColor(au aurora.Aurora, v review.Verdict) aurora.Value {
	label := fmt.Sprintf("%-13s", v)
	switch v {
	case review.VerdictApprove:
		return au.Green(label)
	case review.VerdictMinorIssues:
		return au.Yellow(label)
	case review.VerdictNeedsChanges, review.VerdictBlocking:
		return au.Red(label)
	default:
		return au.Magenta(label)
	}
}

func severityIcon(au aurora.Aurora, s review.Severity) aurora.Value {
	switch s {
	case review.SeverityHigh:
		return au.Red("[!!]")
	case review.SeverityMedium:
		return au.Yellow("[!]")
	case review.SeverityLow:
		return au.Blue("[-]")
	default:
		return au.Gray(12, "[?]")
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
