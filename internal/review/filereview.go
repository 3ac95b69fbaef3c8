package review

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// FileReviewFunc reviews the file at index and returns a result holding
// exactly one FileReview for it.
type FileReviewFunc func(ctx context.Context, st *WorkflowState, index int) StageResult

// FileStrategy executes the ReviewFiles phase. Step reviews one or more of
// the files at and after the state's cursor and reports how far the cursor
// moves. The orchestrator calls Step until every file has a record.
type FileStrategy interface {
	Name() string
	Step(ctx context.Context, st *WorkflowState, review FileReviewFunc) StageResult
}

// Strategy names accepted by NewStrategy.
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// NewStrategy returns the strategy called name. An empty name selects the
// parallel strategy.
func NewStrategy(name string, maxConcurrency int) (FileStrategy, error) {
	switch name {
	case "", StrategyParallel:
		return Parallel{MaxConcurrency: maxConcurrency}, nil
	case StrategySequential:
		return Sequential{}, nil
	default:
		return nil, fmt.Errorf("unknown file review strategy %q (want %s or %s)", name, StrategyParallel, StrategySequential)
	}
}

// filesDone is the guard that ends the ReviewFiles phase.
func filesDone(st *WorkflowState) bool {
	return st.Cursor() >= len(st.Snapshot().Files)
}

// Parallel reviews every pending file concurrently. MaxConcurrency bounds
// the number of in-flight analyzer calls; zero means one goroutine per file.
type Parallel struct {
	MaxConcurrency int
}

func (Parallel) Name() string { return StrategyParallel }

// Step launches one task per pending file and waits for all of them. Each
// task writes only its own slot; the slots are combined in input order
// after the pool drains.
func (p Parallel) Step(ctx context.Context, st *WorkflowState, review FileReviewFunc) StageResult {
	start := st.Cursor()
	pending := len(st.Snapshot().Files) - start
	if pending <= 0 {
		return StageResult{}
	}

	results := make([]StageResult, pending)
	workers := pool.New()
	if p.MaxConcurrency > 0 {
		workers = workers.WithMaxGoroutines(p.MaxConcurrency)
	}
	for k := range pending {
		workers.Go(func() {
			results[k] = guardedReview(ctx, st, start+k, review)
		})
	}
	workers.Wait()

	out := Combine(results...)
	out.Advance = pending
	return out
}

// Sequential reviews the file at the cursor and advances it by one.
type Sequential struct{}

func (Sequential) Name() string { return StrategySequential }

func (Sequential) Step(ctx context.Context, st *WorkflowState, review FileReviewFunc) StageResult {
	if filesDone(st) {
		return StageResult{}
	}
	res := guardedReview(ctx, st, st.Cursor(), review)
	res.Advance = 1
	return res
}

// guardedReview runs review and turns a panic into an error record.
func guardedReview(ctx context.Context, st *WorkflowState, index int, review FileReviewFunc) StageResult {
	var res StageResult
	var pc panics.Catcher
	pc.Try(func() { res = review(ctx, st, index) })
	if r := pc.Recovered(); r != nil {
		return faultResult(st, index, &UnexpectedFault{Value: r.Value, Stack: r.Stack})
	}
	if len(res.FileReviews) != 1 || res.FileReviews[0].Index != index {
		return faultResult(st, index, &UnexpectedFault{
			Value: fmt.Sprintf("file review returned %d records for file %d", len(res.FileReviews), index),
		})
	}
	return res
}

func faultResult(st *WorkflowState, index int, fault *UnexpectedFault) StageResult {
	path := st.Snapshot().Files[index].Path
	now := time.Now()
	return StageResult{
		FileReviews: []FileReview{errorReview(index, path, "review failed: "+fault.Error())},
		Diagnostics: []Diagnostic{{
			ID:        ulid.Make().String(),
			Stage:     StageFile,
			Subject:   path,
			FileIndex: index,
			Degraded:  true,
			Note:      fault.Error(),
			At:        now,
		}},
		Errors: []ErrorEntry{{
			Kind:      KindUnexpected,
			Stage:     StageFile,
			Subject:   path,
			FileIndex: index,
			Message:   fault.Error(),
			At:        now,
		}},
	}
}

func errorReview(index int, path, summary string) FileReview {
	return FileReview{
		Index:       index,
		Path:        path,
		Verdict:     VerdictError,
		Issues:      []Issue{},
		Suggestions: []string{},
		Summary:     summary,
	}
}
