package review

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/prgate/internal/pr"
)

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	n     int
	valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("score %q is not a number", s)
	}
	f.n, f.valid = int(v), true
	return nil
}

type intentPayload struct {
	Type       string   `json:"type"`
	Summary    string   `json:"summary"`
	Objectives []string `json:"key_objectives"`
	Complexity string   `json:"complexity"`
	Reasoning  string   `json:"reasoning"`
}

func (p intentPayload) intent() Intent {
	t := IntentType(strings.ToLower(strings.TrimSpace(p.Type)))
	switch t {
	case IntentFeature, IntentBugfix, IntentRefactor, IntentDocs, IntentTest, IntentChore:
	default:
		t = IntentUnknown
	}
	c := Complexity(strings.ToLower(strings.TrimSpace(p.Complexity)))
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		c = ComplexityMedium
	}
	objectives := p.Objectives
	if objectives == nil {
		objectives = []string{}
	}
	return Intent{Type: t, Summary: p.Summary, Objectives: objectives, Complexity: c, Reasoning: p.Reasoning}
}

type riskPayload struct {
	Level              string   `json:"level"`
	Score              flexInt  `json:"score"`
	Factors            []string `json:"factors"`
	Reasoning          string   `json:"reasoning"`
	NeedsCarefulReview bool     `json:"needs_careful_review"`
	FocusAreas         []string `json:"review_focus_areas"`
}

func (p riskPayload) assessment() RiskAssessment {
	score := p.Score.n
	if p.Score.valid {
		score = min(max(score, 1), 10)
	}
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(p.Level)))
	switch level {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		level = levelForScore(score, p.Score.valid)
	}
	if !p.Score.valid {
		score = defaultScore(level)
	}
	factors, focus := p.Factors, p.FocusAreas
	if factors == nil {
		factors = []string{}
	}
	if focus == nil {
		focus = []string{}
	}
	return RiskAssessment{
		Level:              level,
		Score:              score,
		Factors:            factors,
		Reasoning:          p.Reasoning,
		NeedsCarefulReview: p.NeedsCarefulReview,
		FocusAreas:         focus,
	}
}

func levelForScore(score int, known bool) RiskLevel {
	switch {
	case !known:
		return RiskMedium
	case score <= 3:
		return RiskLow
	case score <= 7:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func defaultScore(level RiskLevel) int {
	switch level {
	case RiskLow:
		return 2
	case RiskHigh:
		return 8
	default:
		return 5
	}
}

type issuePayload struct {
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

type filePayload struct {
	Filename    string         `json:"filename"`
	Status      string         `json:"status"`
	Issues      []issuePayload `json:"issues"`
	Suggestions []string       `json:"suggestions"`
	Summary     string         `json:"summary"`
}

func (p filePayload) review(index int, path string, rules *Rules) FileReview {
	issues := make([]Issue, 0, len(p.Issues))
	for _, ip := range p.Issues {
		cat := ip.Category
		if cat == "" {
			cat = ip.Type
		}
		issues = append(issues, Issue{
			Severity:   ParseSeverity(ip.Severity),
			Category:   strings.ToLower(strings.TrimSpace(cat)),
			Message:    ip.Message,
			Suggestion: ip.Suggestion,
		})
	}
	issues = ApplySeverityOverrides(issues, rules)
	suggestions := p.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return FileReview{
		Index:       index,
		Path:        path,
		Verdict:     NormalizeVerdict(p.Status, issues),
		Issues:      issues,
		Suggestions: suggestions,
		Summary:     p.Summary,
	}
}

type summaryPayload struct {
	Decision   string   `json:"decision"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Concerns   []string `json:"concerns"`
}

// withOutcome records the diagnostic and any error entry of out in r.
func withOutcome(out Outcome, r StageResult) StageResult {
	r.Diagnostics = append(r.Diagnostics, out.Diagnostic)
	if out.Entry != nil {
		r.Errors = append(r.Errors, *out.Entry)
	}
	return r
}

func prSubject(s *pr.Snapshot) string {
	return fmt.Sprintf("%s#%d", s.Repo, s.Number)
}

func (o *Orchestrator) analyzeIntent(ctx context.Context, st *WorkflowState) StageResult {
	s := st.Snapshot()
	var p intentPayload
	out := o.runner.Run(ctx, Call{
		Stage:     StageIntent,
		Subject:   prSubject(s),
		FileIndex: -1,
		System:    systemPrompt,
		Prompt:    intentPrompt(s),
	}, &p)

	var intent Intent
	switch {
	case out.OK():
		intent = p.intent()
	case KindOf(out.Err) == KindParse:
		intent = Intent{
			Type:       IntentUnknown,
			Summary:    truncate(out.Raw, snippetLen),
			Objectives: []string{},
			Complexity: ComplexityMedium,
			Reasoning:  "analyzer response could not be parsed",
		}
	default:
		intent = Intent{
			Type:       IntentError,
			Summary:    "Intent analysis failed",
			Objectives: []string{},
			Complexity: ComplexityMedium,
			Reasoning:  out.Err.Error(),
		}
	}
	return withOutcome(out, StageResult{Intent: &intent})
}

func (o *Orchestrator) classifyRisk(ctx context.Context, st *WorkflowState) StageResult {
	s := st.Snapshot()
	intent, _ := st.Intent()
	var p riskPayload
	out := o.runner.Run(ctx, Call{
		Stage:     StageRisk,
		Subject:   prSubject(s),
		FileIndex: -1,
		System:    systemPrompt,
		Prompt:    riskPrompt(s, intent),
	}, &p)

	var risk RiskAssessment
	switch {
	case out.OK():
		risk = p.assessment()
	case KindOf(out.Err) == KindParse:
		risk = RiskAssessment{
			Level:              RiskMedium,
			Score:              5,
			Factors:            []string{"json_parse_error"},
			Reasoning:          truncate(out.Raw, 300),
			NeedsCarefulReview: true,
			FocusAreas:         []string{},
		}
	default:
		risk = RiskAssessment{
			Level:              RiskMedium,
			Score:              5,
			Factors:            []string{"analysis_error"},
			Reasoning:          out.Err.Error(),
			NeedsCarefulReview: true,
			FocusAreas:         []string{},
		}
	}
	return withOutcome(out, StageResult{Risk: &risk})
}

func (o *Orchestrator) reviewFile(ctx context.Context, st *WorkflowState, index int) StageResult {
	f := st.Snapshot().Files[index]

	if !f.HasPatch() && f.Kind != pr.KindRemoved {
		return StageResult{FileReviews: []FileReview{{
			Index:       index,
			Path:        f.Path,
			Verdict:     VerdictApprove,
			Issues:      []Issue{},
			Suggestions: []string{},
			Summary:     fmt.Sprintf("No diff available (%s file); nothing to review.", f.Kind),
		}}}
	}

	var prompt string
	if !f.HasPatch() {
		prompt = noDiffPrompt(f)
	} else {
		intent, _ := st.Intent()
		risk, _ := st.Risk()
		red := o.redact.Patch(f.Path, f.Patch)
		if red.Replacements > 0 {
			o.logger.Debug(ctx, "redacted %d secrets from %s", red.Replacements, f.Path)
		}
		var hunks []Hunk
		if !red.PathRedacted {
			var err error
			if hunks, err = ParseHunks(f.Path, red.Text); err != nil {
				o.logger.Debug(ctx, "hunk outline skipped: %v", err)
			}
		}
		prompt = filePrompt(filePromptInput{
			File:          f,
			Patch:         red.Text,
			Hunks:         hunks,
			MaxPatchChars: o.maxPatchChars,
			Intent:        intent,
			Risk:          risk,
			Rules:         o.rules,
		})
	}

	var p filePayload
	out := o.runner.Run(ctx, Call{
		Stage:     StageFile,
		Subject:   f.Path,
		FileIndex: index,
		System:    systemPrompt,
		Prompt:    prompt,
	}, &p)

	var fr FileReview
	switch {
	case out.OK():
		fr = p.review(index, f.Path, o.rules)
	case KindOf(out.Err) == KindParse:
		fr = errorReview(index, f.Path, "parse failed: "+truncate(out.Raw, snippetLen))
	default:
		fr = errorReview(index, f.Path, "review failed: "+out.Err.Error())
	}
	return withOutcome(out, StageResult{FileReviews: []FileReview{fr}})
}

func (o *Orchestrator) summarize(ctx context.Context, st *WorkflowState) StageResult {
	s := st.Snapshot()
	intent, _ := st.Intent()
	risk, _ := st.Risk()
	reviews := st.FileReviews()
	prior := len(st.Errors())

	var p summaryPayload
	out := o.runner.Run(ctx, Call{
		Stage:     StageSummarize,
		Subject:   prSubject(s),
		FileIndex: -1,
		System:    systemPrompt,
		Prompt:    summaryPrompt(s, intent, risk, reviews, prior),
	}, &p)

	decision := DecisionComment
	var narrative string
	if out.OK() {
		if d, ok := ParseDecision(p.Decision); ok {
			decision = d
		}
		if prior > 0 {
			decision = DecisionComment
		}
		narrative = renderNarrative(p)
	} else {
		narrative = fallbackNarrative(reviews, out.Err)
	}
	if prior > 0 {
		narrative += fmt.Sprintf("\n\n_%d analysis steps failed; parts of this review are incomplete._", prior)
	}
	final := SanitizeMarkdown(narrative)
	return withOutcome(out, StageResult{FinalReview: &final, Decision: &decision})
}

func renderNarrative(p summaryPayload) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Summary))
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n\n### %s\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(it))
		}
	}
	writeList("Highlights", p.Highlights)
	writeList("Concerns", p.Concerns)
	return strings.TrimSpace(b.String())
}

func fallbackNarrative(reviews []FileReview, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The automated summary could not be produced (%s).\n\n", firstLine(cause.Error()))
	counts := CountVerdicts(reviews)
	fmt.Fprintf(&b, "%d files reviewed:", len(reviews))
	for _, v := range []Verdict{VerdictBlocking, VerdictNeedsChanges, VerdictMinorIssues, VerdictApprove, VerdictError} {
		if counts[v] > 0 {
			fmt.Fprintf(&b, " %d %s,", counts[v], v)
		}
	}
	return strings.TrimSuffix(b.String(), ",")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return truncate(line, snippetLen)
}

// SanitizeMarkdown trims md and closes an unterminated code fence so the
// text cannot swallow whatever is rendered after it.
func SanitizeMarkdown(md string) string {
	md = strings.TrimSpace(md)
	var open bool
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			open = !open
		}
	}
	if open {
		md += "\n" + fence
	}
	return md
}
