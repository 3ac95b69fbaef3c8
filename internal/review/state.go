package review

import (
	"fmt"
	"sort"

	"github.com/dshills/prgate/internal/pr"
)

// StageResult is a partial update to a WorkflowState. Nil slot pointers and
// empty slices leave the state untouched.
type StageResult struct {
	Intent      *Intent
	Risk        *RiskAssessment
	FileReviews []FileReview
	// Advance moves the file cursor forward by this many files.
	Advance     int
	FinalReview *string
	Decision    *Decision
	Diagnostics []Diagnostic
	Errors      []ErrorEntry
}

// Combine concatenates results in order. Slot values from later results win,
// which only matters if callers combine results for the same slot.
func Combine(results ...StageResult) StageResult {
	var out StageResult
	for _, r := range results {
		if r.Intent != nil {
			out.Intent = r.Intent
		}
		if r.Risk != nil {
			out.Risk = r.Risk
		}
		if r.FinalReview != nil {
			out.FinalReview = r.FinalReview
		}
		if r.Decision != nil {
			out.Decision = r.Decision
		}
		out.FileReviews = append(out.FileReviews, r.FileReviews...)
		out.Advance += r.Advance
		out.Diagnostics = append(out.Diagnostics, r.Diagnostics...)
		out.Errors = append(out.Errors, r.Errors...)
	}
	return out
}

// WorkflowState accumulates the results of one review run. It is owned by a
// single Orchestrator.Run call and is only changed through Apply.
type WorkflowState struct {
	snapshot    *pr.Snapshot
	intent      *Intent
	risk        *RiskAssessment
	fileReviews []FileReview
	cursor      int
	diagnostics []Diagnostic
	errors      []ErrorEntry
	finalReview *string
	decision    *Decision
}

// NewWorkflowState creates an empty state for snapshot.
func NewWorkflowState(snapshot *pr.Snapshot) *WorkflowState {
	return &WorkflowState{snapshot: snapshot}
}

// Snapshot returns the pull request under review.
func (w *WorkflowState) Snapshot() *pr.Snapshot { return w.snapshot }

// Intent returns the intent slot.
func (w *WorkflowState) Intent() (Intent, bool) {
	if w.intent == nil {
		return Intent{}, false
	}
	return *w.intent, true
}

// Risk returns the risk slot.
func (w *WorkflowState) Risk() (RiskAssessment, bool) {
	if w.risk == nil {
		return RiskAssessment{}, false
	}
	return *w.risk, true
}

// FinalReview returns the final narrative slot.
func (w *WorkflowState) FinalReview() (string, bool) {
	if w.finalReview == nil {
		return "", false
	}
	return *w.finalReview, true
}

// Decision returns the decision slot.
func (w *WorkflowState) Decision() (Decision, bool) {
	if w.decision == nil {
		return "", false
	}
	return *w.decision, true
}

// Cursor is the index of the next file to review.
func (w *WorkflowState) Cursor() int { return w.cursor }

// FileReviews returns a copy of the file review records in input order.
func (w *WorkflowState) FileReviews() []FileReview {
	return append([]FileReview(nil), w.fileReviews...)
}

// Diagnostics returns a copy of the diagnostic log.
func (w *WorkflowState) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), w.diagnostics...)
}

// Errors returns a copy of the error log.
func (w *WorkflowState) Errors() []ErrorEntry {
	return append([]ErrorEntry(nil), w.errors...)
}

// SlotError reports an attempt to overwrite a set-once slot or an existing
// file review.
type SlotError struct {
	Slot string
}

func (e *SlotError) Error() string { return "workflow slot already set: " + e.Slot }

// Apply merges r into the state. Set-once slots may only go from unset to
// set, logs only grow and file reviews are merged in input order. Apply
// checks every rule before changing anything, so a rejected result leaves
// the state as it was.
func (w *WorkflowState) Apply(r StageResult) error {
	if r.Intent != nil && w.intent != nil {
		return &SlotError{Slot: "intent"}
	}
	if r.Risk != nil && w.risk != nil {
		return &SlotError{Slot: "risk"}
	}
	if r.FinalReview != nil && w.finalReview != nil {
		return &SlotError{Slot: "finalReview"}
	}
	if r.Decision != nil && w.decision != nil {
		return &SlotError{Slot: "decision"}
	}
	if r.Advance < 0 {
		return fmt.Errorf("workflow cursor cannot move backwards (advance %d)", r.Advance)
	}
	merged, err := mergeFileReviews(w.fileReviews, r.FileReviews)
	if err != nil {
		return err
	}

	if r.Intent != nil {
		v := *r.Intent
		w.intent = &v
	}
	if r.Risk != nil {
		v := *r.Risk
		w.risk = &v
	}
	if r.FinalReview != nil {
		v := *r.FinalReview
		w.finalReview = &v
	}
	if r.Decision != nil {
		v := *r.Decision
		w.decision = &v
	}
	w.fileReviews = merged
	w.cursor += r.Advance
	w.diagnostics = append(w.diagnostics, r.Diagnostics...)
	w.errors = append(w.errors, r.Errors...)
	return nil
}

// mergeFileReviews appends incoming to existing and orders the result by
// input index. An index that is already present is rejected.
func mergeFileReviews(existing, incoming []FileReview) ([]FileReview, error) {
	if len(incoming) == 0 {
		return existing, nil
	}
	seen := make(map[int]bool, len(existing)+len(incoming))
	for _, fr := range existing {
		seen[fr.Index] = true
	}
	for _, fr := range incoming {
		if seen[fr.Index] {
			return nil, &SlotError{Slot: fmt.Sprintf("fileReviews[%d]", fr.Index)}
		}
		seen[fr.Index] = true
	}
	out := make([]FileReview, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	out = append(out, incoming...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
