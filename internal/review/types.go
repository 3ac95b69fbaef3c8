package review

import (
	"strings"
	"time"
)

// Severity represents the severity level of an issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalises an analyzer severity. Unknown values become low.
func ParseSeverity(raw string) Severity {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return s
	default:
		return SeverityLow
	}
}

// Verdict is the outcome of reviewing one file.
type Verdict string

const (
	VerdictApprove      Verdict = "approve"
	VerdictMinorIssues  Verdict = "minor-issues"
	VerdictNeedsChanges Verdict = "needs-changes"
	VerdictBlocking     Verdict = "blocking"
	VerdictError        Verdict = "error"
)

// NormalizeVerdict maps an analyzer status onto a Verdict. Statuses it does
// not recognise are derived from the most severe issue.
func NormalizeVerdict(raw string, issues []Issue) Verdict {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "LGTM", "APPROVE", "APPROVED":
		return VerdictApprove
	case "MINOR_ISSUES":
		return VerdictMinorIssues
	case "NEEDS_CHANGES":
		return VerdictNeedsChanges
	case "BLOCKING":
		return VerdictBlocking
	}
	switch highestSeverity(issues) {
	case SeverityHigh:
		return VerdictBlocking
	case SeverityMedium:
		return VerdictNeedsChanges
	case SeverityLow:
		return VerdictMinorIssues
	default:
		return VerdictApprove
	}
}

func highestSeverity(issues []Issue) Severity {
	var top Severity
	for _, is := range issues {
		if SeverityRank(is.Severity) > SeverityRank(top) {
			top = is.Severity
		}
	}
	return top
}

// Issue is one problem raised against a file.
type Issue struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// FileReview is the review record for one changed file. Index is the file's
// position in the snapshot.
type FileReview struct {
	Index       int      `json:"index"`
	Path        string   `json:"path"`
	Verdict     Verdict  `json:"verdict"`
	Issues      []Issue  `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Summary     string   `json:"summary"`
}

// IntentType classifies what a pull request sets out to do.
type IntentType string

const (
	IntentFeature  IntentType = "feature"
	IntentBugfix   IntentType = "bugfix"
	IntentRefactor IntentType = "refactor"
	IntentDocs     IntentType = "docs"
	IntentTest     IntentType = "test"
	IntentChore    IntentType = "chore"
	IntentUnknown  IntentType = "unknown"
	IntentError    IntentType = "error"
)

// Complexity is the analyzer's estimate of change complexity.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Intent is the result of the AnalyzeIntent phase.
type Intent struct {
	Type       IntentType `json:"type"`
	Summary    string     `json:"summary"`
	Objectives []string   `json:"objectives"`
	Complexity Complexity `json:"complexity"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// RiskLevel is the coarse risk bucket of a pull request.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskAssessment is the result of the ClassifyRisk phase. Score is 1 to 10.
type RiskAssessment struct {
	Level              RiskLevel `json:"level"`
	Score              int       `json:"score"`
	Factors            []string  `json:"factors"`
	Reasoning          string    `json:"reasoning,omitempty"`
	NeedsCarefulReview bool      `json:"needsCarefulReview"`
	FocusAreas         []string  `json:"focusAreas"`
}

// Decision is the overall review decision posted back to the pull request.
type Decision string

const (
	DecisionApprove        Decision = "APPROVE"
	DecisionRequestChanges Decision = "REQUEST_CHANGES"
	DecisionComment        Decision = "COMMENT"
)

// ParseDecision recognises the three decisions, case-insensitively.
func ParseDecision(raw string) (Decision, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch d := Decision(key); d {
	case DecisionApprove, DecisionRequestChanges, DecisionComment:
		return d, true
	}
	return "", false
}

// Stage names a unit of analyzer work in logs and diagnostics.
type Stage string

const (
	StageIntent    Stage = "intent"
	StageRisk      Stage = "risk"
	StageFile      Stage = "file_review"
	StageSummarize Stage = "summarize"
)

// Diagnostic records one analyzer call. Response holds the raw text the
// analyzer returned, if any.
type Diagnostic struct {
	ID         string        `json:"id"`
	Stage      Stage         `json:"stage"`
	Subject    string        `json:"subject"`
	FileIndex  int           `json:"fileIndex"`
	Response   string        `json:"response,omitempty"`
	TokensUsed int           `json:"tokensUsed,omitempty"`
	Degraded   bool          `json:"degraded"`
	Note       string        `json:"note,omitempty"`
	Duration   time.Duration `json:"durationNs"`
	At         time.Time     `json:"at"`
}

// ErrorEntry is one recovered failure. FileIndex is -1 for stages that are
// not file scoped.
type ErrorEntry struct {
	Kind      ErrorKind `json:"kind"`
	Stage     Stage     `json:"stage"`
	Subject   string    `json:"subject"`
	FileIndex int       `json:"fileIndex"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Timing contains performance metrics for one run.
type Timing struct {
	IntentMs    int64 `json:"intentMs"`
	RiskMs      int64 `json:"riskMs"`
	FilesMs     int64 `json:"filesMs"`
	SummarizeMs int64 `json:"summarizeMs"`
	TotalMs     int64 `json:"totalMs"`
}

// VerdictCounts tallies file verdicts.
type VerdictCounts map[Verdict]int

// CountVerdicts tallies the verdicts of reviews.
func CountVerdicts(reviews []FileReview) VerdictCounts {
	c := VerdictCounts{}
	for _, r := range reviews {
		c[r.Verdict]++
	}
	return c
}
