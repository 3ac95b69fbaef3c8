package output

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dshills/prgate/internal/review"
)

// MarkdownWriter outputs the review comment body.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, res *review.Result) error {
	_, err := io.WriteString(w, CommentBody(res))
	return err
}

// CommentBody renders the markdown comment posted on the pull request.
func CommentBody(res *review.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s prgate review: %s\n\n", decisionIcon(res.Decision), decisionLabel(res.Decision))
	b.WriteString(res.FinalReview)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "**Intent:** %s (%s, %s complexity)  \n", res.Intent.Summary, res.Intent.Type, res.Intent.Complexity)
	fmt.Fprintf(&b, "**Risk:** %s (%d/10)", res.Risk.Level, res.Risk.Score)
	if len(res.Risk.Factors) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(res.Risk.Factors, ", "))
	}
	b.WriteString("\n\n")

	if len(res.FileReviews) > 0 {
		b.WriteString("| File | Verdict | Issues |\n")
		b.WriteString("|------|---------|--------|\n")
		for _, fr := range res.FileReviews {
			fmt.Fprintf(&b, "| `%s` | %s %s | %d |\n", fr.Path, verdictIcon(fr.Verdict), fr.Verdict, len(fr.Issues))
		}
		b.WriteString("\n")
	}

	for _, fr := range res.FileReviews {
		if len(fr.Issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<details>\n<summary><code>%s</code> (%d)</summary>\n\n", fr.Path, len(fr.Issues))
		for _, is := range fr.Issues {
			fmt.Fprintf(&b, "- %s **%s** %s: %s\n", mdSeverityIcon(is.Severity), strings.ToUpper(string(is.Severity)), is.Category, is.Message)
			if is.Suggestion != "" {
				writeSuggestion(&b, is.Suggestion, fr.Path)
			}
		}
		b.WriteString("\n</details>\n\n")
	}

	fmt.Fprintf(&b, "<sub>%d files reviewed in %dms", len(res.FileReviews), res.Timing.TotalMs)
	if res.RunID != "" {
		fmt.Fprintf(&b, " · run `%s`", res.RunID)
	}
	b.WriteString("</sub>\n")
	return b.String()
}

func writeSuggestion(b *strings.Builder, suggestion, filePath string) {
	if looksLikeCode(suggestion) {
		fmt.Fprintf(b, "\n  ```%s\n", inferLang(filePath))
		for _, line := range strings.Split(suggestion, "\n") {
			fmt.Fprintf(b, "  %s\n", line)
		}
		b.WriteString("  ```\n")
		return
	}
	fmt.Fprintf(b, "  > %s\n", strings.ReplaceAll(suggestion, "\n", "\n  > "))
}

func decisionLabel(d review.Decision) string {
	switch d {
	case review.DecisionApprove:
		return "Approve"
	case review.DecisionRequestChanges:
		return "Changes requested"
	default:
		return "Comment"
	}
}

func decisionIcon(d review.Decision) string {
	switch d {
	case review.DecisionApprove:
		return ":white_check_mark:"
	case review.DecisionRequestChanges:
		return ":x:"
	default:
		return ":speech_balloon:"
	}
}

func verdictIcon(v review.Verdict) string {
	switch v {
	case review.VerdictApprove:
		return ":white_check_mark:"
	case review.VerdictMinorIssues:
		return ":yellow_circle:"
	case review.VerdictNeedsChanges:
		return ":orange_circle:"
	case review.VerdictBlocking:
		return ":red_circle:"
	default:
		return ":warning:"
	}
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityHigh:
		return ":red_circle:"
	case review.SeverityMedium:
		return ":orange_circle:"
	case review.SeverityLow:
		return ":yellow_circle:"
	default:
		return ":white_circle:"
	}
}

func looksLikeCode(s string) bool {
	codeIndicators := []string{
		"func ", "if ", "for ", "return ", "var ", "const ",
		"def ", "class ", "import ", "from ",
		"{", "}", "=>", "->", ":=", "==",
		"()", "[];",
	}
	for _, indicator := range codeIndicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

var langByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".jsx":  "jsx",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".cpp":  "cpp",
	".c":    "c",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "bash",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".tf":   "hcl",
}

func inferLang(p string) string {
	return langByExt[path.Ext(p)]
}
