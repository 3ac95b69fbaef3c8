package review

import (
	"context"
	"fmt"
	"time"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/oklog/ulid/v2"

	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/providers"
	"github.com/dshills/prgate/internal/redact"
)

// Phase is a state of the review workflow.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseAnalyzeIntent
	PhaseClassifyRisk
	PhaseReviewFiles
	PhaseSummarize
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseAnalyzeIntent:
		return "analyze-intent"
	case PhaseClassifyRisk:
		return "classify-risk"
	case PhaseReviewFiles:
		return "review-files"
	case PhaseSummarize:
		return "summarize"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Options configures an Orchestrator.
type Options struct {
	// Strategy runs the ReviewFiles phase. Nil selects Parallel with
	// MaxConcurrency 4.
	Strategy        FileStrategy
	AnalyzerTimeout time.Duration
	MaxTokens       int
	MaxPatchChars   int
	Rules           *Rules
	Redact          redact.Policy
	Logger          *logging.Logger
}

// PRInfo identifies the reviewed pull request in a Result.
type PRInfo struct {
	Repo    pr.Repo `json:"repo"`
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Author  string  `json:"author"`
	HeadSHA string  `json:"headSha"`
	URL     string  `json:"url,omitempty"`
}

// Result is the outcome of one review run.
type Result struct {
	RunID       string         `json:"runId"`
	PR          PRInfo         `json:"pr"`
	Strategy    string         `json:"strategy"`
	Decision    Decision       `json:"decision"`
	FinalReview string         `json:"finalReview"`
	Intent      Intent         `json:"intent"`
	Risk        RiskAssessment `json:"risk"`
	FileReviews []FileReview   `json:"fileReviews"`
	Diagnostics []Diagnostic   `json:"diagnostics"`
	Errors      []ErrorEntry   `json:"errors"`
	Degraded    bool           `json:"degraded"`
	Timing      Timing         `json:"timing"`
}

// Orchestrator runs review workflows. It holds no per-run state and may be
// shared by concurrent runs.
type Orchestrator struct {
	runner        *StageRunner
	strategy      FileStrategy
	maxPatchChars int
	rules         *Rules
	redact        redact.Policy
	logger        *logging.Logger
	now           func() time.Time
}

// New creates an Orchestrator that asks a for every analysis.
func New(a providers.Analyzer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = Parallel{MaxConcurrency: 4}
	}
	return &Orchestrator{
		runner:        NewStageRunner(a, opts.AnalyzerTimeout, opts.MaxTokens, logger),
		strategy:      strategy,
		maxPatchChars: opts.MaxPatchChars,
		rules:         opts.Rules,
		redact:        opts.Redact,
		logger:        logger,
		now:           time.Now,
	}
}

// Strategy returns the configured file review strategy.
func (o *Orchestrator) Strategy() FileStrategy { return o.strategy }

// Run reviews snapshot. Analyzer failures of any kind degrade the result but
// never abort the run; the only error returned is a *pr.ValidationError for
// a snapshot that violates its invariants.
func (o *Orchestrator) Run(ctx context.Context, snapshot *pr.Snapshot) (*Result, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	runID := ulid.Make().String()
	start := o.now()
	st := NewWorkflowState(snapshot)
	var timing Timing

	o.logger.Info(ctx, "review %s started for %s (%d files, strategy %s)",
		runID, prSubject(snapshot), len(snapshot.Files), o.strategy.Name())

	for phase := PhaseStart; phase != PhaseDone; phase = o.next(phase, st) {
		phaseStart := o.now()
		o.step(ctx, phase, st)
		elapsed := o.now().Sub(phaseStart).Milliseconds()

		switch phase {
		case PhaseAnalyzeIntent:
			timing.IntentMs += elapsed
		case PhaseClassifyRisk:
			timing.RiskMs += elapsed
		case PhaseReviewFiles:
			timing.FilesMs += elapsed
		case PhaseSummarize:
			timing.SummarizeMs += elapsed
		}
	}
	timing.TotalMs = o.now().Sub(start).Milliseconds()

	intent, _ := st.Intent()
	risk, _ := st.Risk()
	final, _ := st.FinalReview()
	decision, _ := st.Decision()
	errs := st.Errors()

	res := &Result{
		RunID: runID,
		PR: PRInfo{
			Repo:    snapshot.Repo,
			Number:  snapshot.Number,
			Title:   snapshot.Title,
			Author:  snapshot.Author.Login,
			HeadSHA: snapshot.Head.SHA,
			URL:     snapshot.HTMLURL,
		},
		Strategy:    o.strategy.Name(),
		Decision:    decision,
		FinalReview: final,
		Intent:      intent,
		Risk:        risk,
		FileReviews: st.FileReviews(),
		Diagnostics: st.Diagnostics(),
		Errors:      errs,
		Degraded:    len(errs) > 0,
		Timing:      timing,
	}

	o.logger.Info(ctx, "review %s finished: decision %s, %d files, %d errors, %dms",
		runID, res.Decision, len(res.FileReviews), len(errs), timing.TotalMs)
	return res, nil
}

// step executes one phase and merges its result into st.
func (o *Orchestrator) step(ctx context.Context, phase Phase, st *WorkflowState) {
	var res StageResult
	switch phase {
	case PhaseAnalyzeIntent:
		res = o.analyzeIntent(ctx, st)
	case PhaseClassifyRisk:
		res = o.classifyRisk(ctx, st)
	case PhaseReviewFiles:
		if filesDone(st) {
			return
		}
		before := st.Cursor()
		res = o.strategy.Step(ctx, st, o.reviewFile)
		if err := st.Apply(res); err != nil {
			o.logger.Error(ctx, "merging file reviews: %v", err)
		}
		if st.Cursor() == before {
			o.abandonFiles(ctx, st, fmt.Errorf("%s strategy made no progress at file %d", o.strategy.Name(), before))
		}
		return
	case PhaseSummarize:
		res = o.summarize(ctx, st)
	default:
		return
	}
	if err := st.Apply(res); err != nil {
		o.logger.Error(ctx, "merging %s result: %v", phase, err)
		_ = st.Apply(StageResult{Errors: []ErrorEntry{{
			Kind:      KindUnexpected,
			Stage:     stageOf(phase),
			Subject:   prSubject(st.Snapshot()),
			FileIndex: -1,
			Message:   err.Error(),
			At:        o.now(),
		}}})
	}
}

// abandonFiles gives every remaining file an error record so the phase
// always terminates with one record per file.
func (o *Orchestrator) abandonFiles(ctx context.Context, st *WorkflowState, cause error) {
	o.logger.Error(ctx, "%v", cause)
	files := st.Snapshot().Files
	var results []StageResult
	for i := st.Cursor(); i < len(files); i++ {
		results = append(results, faultResult(st, i, &UnexpectedFault{Value: cause}))
	}
	res := Combine(results...)
	res.Advance = len(files) - st.Cursor()
	if err := st.Apply(res); err != nil {
		o.logger.Error(ctx, "abandoning files: %v", err)
	}
}

// next is the workflow transition function.
func (o *Orchestrator) next(phase Phase, st *WorkflowState) Phase {
	switch phase {
	case PhaseStart:
		return PhaseAnalyzeIntent
	case PhaseAnalyzeIntent:
		return PhaseClassifyRisk
	case PhaseClassifyRisk:
		return PhaseReviewFiles
	case PhaseReviewFiles:
		if filesDone(st) {
			return PhaseSummarize
		}
		return PhaseReviewFiles
	default:
		return PhaseDone
	}
}

func stageOf(phase Phase) Stage {
	switch phase {
	case PhaseAnalyzeIntent:
		return StageIntent
	case PhaseClassifyRisk:
		return StageRisk
	case PhaseReviewFiles:
		return StageFile
	default:
		return StageSummarize
	}
}
