package review

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/exp/maps"

	"github.com/dshills/prgate/internal/pr"
)

const systemPrompt = `You are a senior software engineer reviewing a GitHub pull request.
You care about correctness, security and maintainability, and you avoid bikeshedding on style.

You MUST respond with a single JSON object inside a fenced block that starts with ` + "```json" + ` and ends with ` + "```" + `.
Do not add commentary outside the block.`

// SystemPrompt returns the system prompt shared by every stage.
func SystemPrompt() string { return systemPrompt }

const (
	intentCommitPreview = 5
	intentFilePreview   = 10
	riskFilePreview     = 15
	focusAreaPreview    = 3
)

// riskKeywords flag paths that touch sensitive areas.
var riskKeywords = []string{
	"auth", "security", "password", "token", "payment", "billing",
	"migration", "database", "db", "schema", "admin", "permission",
}

// matchRiskKeywords returns the risk keywords found in p, case-insensitively.
func matchRiskKeywords(p string) []string {
	lower := strings.ToLower(p)
	var hits []string
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func isTestFile(p string) bool {
	return strings.Contains(strings.ToLower(p), "test") || strings.HasPrefix(path.Base(p), "test_")
}

func intentPrompt(s *pr.Snapshot) string {
	var b strings.Builder
	b.WriteString("Analyse the intent of the following pull request.\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", s.Title)
	body := strings.TrimSpace(s.Body)
	if body == "" {
		body = "(no description)"
	}
	fmt.Fprintf(&b, "Description:\n%s\n\n", body)
	fmt.Fprintf(&b, "Branches: `%s` -> `%s`\n", s.Head.Branch, s.Base.Branch)
	fmt.Fprintf(&b, "Author: @%s\n\n", s.Author.Login)
	fmt.Fprintf(&b, "Stats: %d files, +%d/-%d lines, %d commits\n\n", s.ChangedFiles, s.Additions, s.Deletions, s.CommitCount)

	b.WriteString("Commits:\n")
	if len(s.Commits) == 0 {
		b.WriteString("- (no commits)\n")
	}
	for i, c := range s.Commits {
		if i == intentCommitPreview {
			fmt.Fprintf(&b, "- ... and %d more commits\n", len(s.Commits)-intentCommitPreview)
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.ShortSHA(), c.Subject())
	}

	fmt.Fprintf(&b, "\nChanged files (first %d):\n", intentFilePreview)
	for i, f := range s.Files {
		if i == intentFilePreview {
			break
		}
		fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.Kind)
	}

	b.WriteString(`
Respond with:
` + "```json" + `
{
  "type": "feature | bugfix | refactor | docs | test | chore",
  "summary": "one sentence describing the purpose of the change",
  "key_objectives": ["objective", "objective"],
  "complexity": "low | medium | high",
  "reasoning": "why you classified it this way"
}
` + "```\n")
	return b.String()
}

func extensionCounts(files []pr.FileChange) map[string]int {
	counts := make(map[string]int)
	for _, f := range files {
		counts[f.Ext()]++
	}
	return counts
}

func riskPrompt(s *pr.Snapshot, intent Intent) string {
	var b strings.Builder
	b.WriteString("Assess the risk of merging the following pull request.\n\n")
	b.WriteString("Intent (from the previous analysis):\n")
	fmt.Fprintf(&b, "- type: %s\n- summary: %s\n- complexity: %s\n\n", intent.Type, intent.Summary, intent.Complexity)
	fmt.Fprintf(&b, "Stats: %d changed lines (+%d/-%d), %d files, %d commits\n\n", s.Changes, s.Additions, s.Deletions, s.ChangedFiles, s.CommitCount)

	b.WriteString("Files by extension:\n")
	counts := extensionCounts(s.Files)
	exts := maps.Keys(counts)
	slices.Sort(exts)
	for _, ext := range exts {
		fmt.Fprintf(&b, "- .%s: %d\n", ext, counts[ext])
	}

	b.WriteString("\nSensitive paths:\n")
	var sensitive int
	for _, f := range s.Files {
		if hits := matchRiskKeywords(f.Path); len(hits) > 0 {
			sensitive++
			fmt.Fprintf(&b, "- %s (keywords: %s)\n", f.Path, strings.Join(hits, ", "))
		}
	}
	if sensitive == 0 {
		b.WriteString("- (none)\n")
	}

	var tests int
	for _, f := range s.Files {
		if isTestFile(f.Path) {
			tests++
		}
	}
	if tests > 0 {
		fmt.Fprintf(&b, "\nTests: %d test files changed\n", tests)
	} else {
		b.WriteString("\nTests: no test files changed\n")
	}

	b.WriteString("\nChanged files:\n")
	for i, f := range s.Files {
		if i == riskFilePreview {
			fmt.Fprintf(&b, "... and %d more files\n", len(s.Files)-riskFilePreview)
			break
		}
		fmt.Fprintf(&b, "- %s (%s, +%d/-%d)\n", f.Path, f.Kind, f.Additions, f.Deletions)
	}

	b.WriteString(`
Scoring: LOW is 1-3 (docs, small fixes, tests), MEDIUM is 4-7 (features, refactors),
HIGH is 8-10 (auth or security changes, schema changes, large untested changes).

Respond with:
` + "```json" + `
{
  "level": "LOW | MEDIUM | HIGH",
  "score": 5,
  "factors": ["large_changes", "critical_file_modified", "no_tests"],
  "reasoning": "why",
  "needs_careful_review": true,
  "review_focus_areas": ["area", "area"]
}
` + "```\n")
	return b.String()
}

// filePromptInput carries everything the file review prompt shows.
type filePromptInput struct {
	File          pr.FileChange
	Patch         string
	Hunks         []Hunk
	MaxPatchChars int
	Intent        Intent
	Risk          RiskAssessment
	Rules         *Rules
}

func filePrompt(in filePromptInput) string {
	f := in.File
	var b strings.Builder
	b.WriteString("Review the changes to one file of a pull request.\n\n")
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- intent: %s (%s)\n", in.Intent.Summary, in.Intent.Type)
	fmt.Fprintf(&b, "- risk: %s (score %d/10)\n", in.Risk.Level, in.Risk.Score)
	focus := in.Risk.FocusAreas
	if len(focus) > focusAreaPreview {
		focus = focus[:focusAreaPreview]
	}
	if len(focus) > 0 {
		fmt.Fprintf(&b, "- focus areas: %s\n", strings.Join(focus, ", "))
	}

	b.WriteString("\nFile:\n")
	fmt.Fprintf(&b, "- path: `%s`\n", f.Path)
	if f.PreviousPath != "" {
		fmt.Fprintf(&b, "- previous path: `%s`\n", f.PreviousPath)
	}
	fmt.Fprintf(&b, "- change: %s, +%d/-%d\n", f.Kind, f.Additions, f.Deletions)

	if len(in.Hunks) > 0 {
		b.WriteString("\nHunks:\n")
		b.WriteString(hunkOutline(in.Hunks))
	}

	patch := in.Patch
	if n := utf8.RuneCountInString(patch); in.MaxPatchChars > 0 && n > in.MaxPatchChars {
		fmt.Fprintf(&b, "\nDiff (first %d of %d characters):\n", in.MaxPatchChars, n)
		patch = truncate(patch, in.MaxPatchChars)
	} else {
		b.WriteString("\nDiff:\n")
	}
	b.WriteString("```diff\n")
	b.WriteString(patch)
	if !strings.HasSuffix(patch, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	if section := BuildRulesPromptSection(in.Rules); section != "" {
		b.WriteString(section)
	}

	b.WriteString(`
Check logic and edge cases, security (injection, auth bypass, leaked secrets),
performance, readability, and whether the change needs tests or documentation.

Severity: high for vulnerabilities, data loss or crashes; medium for ordinary bugs
and performance problems; low for style and naming.
Status: LGTM (no issues), MINOR_ISSUES (approvable), NEEDS_CHANGES, BLOCKING (must fix).

Respond with:
` + "```json" + `
{
  "filename": "` + f.Path + `",
  "status": "LGTM | MINOR_ISSUES | NEEDS_CHANGES | BLOCKING",
  "issues": [
    {"severity": "high | medium | low", "type": "bug | security | performance | style | logic", "message": "what is wrong", "suggestion": "how to fix it"}
  ],
  "suggestions": ["improvement"],
  "summary": "two or three sentences on this file"
}
` + "```\n")
	return b.String()
}

func noDiffPrompt(f pr.FileChange) string {
	return fmt.Sprintf(`Check the following file change. No diff is available (binary file or metadata-only change).

File: `+"`%s`"+`
Change: %s, +%d/-%d

Respond briefly with:
`+"```json"+`
{
  "filename": "%s",
  "status": "LGTM",
  "issues": [],
  "suggestions": [],
  "summary": "No diff - %s file"
}
`+"```\n", f.Path, f.Kind, f.Additions, f.Deletions, f.Path, f.Kind)
}

func summaryPrompt(s *pr.Snapshot, intent Intent, risk RiskAssessment, reviews []FileReview, failures int) string {
	var b strings.Builder
	b.WriteString("Write the final review of a pull request from the analysis below.\n\n")
	fmt.Fprintf(&b, "Pull request #%d: %s\n", s.Number, s.Title)
	fmt.Fprintf(&b, "Intent: %s (%s, complexity %s)\n", intent.Summary, intent.Type, intent.Complexity)
	fmt.Fprintf(&b, "Risk: %s (score %d/10)", risk.Level, risk.Score)
	if len(risk.Factors) > 0 {
		fmt.Fprintf(&b, ", factors: %s", strings.Join(risk.Factors, ", "))
	}
	b.WriteString("\n\nFile reviews:\n")
	for _, r := range reviews {
		fmt.Fprintf(&b, "- %s: %s", r.Path, r.Verdict)
		if r.Summary != "" {
			fmt.Fprintf(&b, " - %s", r.Summary)
		}
		b.WriteString("\n")
		for _, is := range r.Issues {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", is.Severity, is.Category, is.Message)
		}
	}
	if failures > 0 {
		fmt.Fprintf(&b, "\nNote: %d analysis steps failed; their results above are incomplete.\n", failures)
	}

	b.WriteString(`
Decide APPROVE when nothing needs to change, REQUEST_CHANGES when any blocking or
high severity problem exists, and COMMENT otherwise.

Respond with:
` + "```json" + `
{
  "decision": "APPROVE | REQUEST_CHANGES | COMMENT",
  "summary": "markdown narrative for the pull request author",
  "highlights": ["what is good"],
  "concerns": ["what must be addressed"]
}
` + "```\n")
	return b.String()
}
