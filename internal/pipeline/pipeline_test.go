package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/review"
)

type stubCollector struct {
	snapshot *pr.Snapshot
	err      error
	gotInst  int64
}

func (s *stubCollector) CollectSnapshot(_ context.Context, _ pr.Repo, installationID int64, _ int) (*pr.Snapshot, error) {
	s.gotInst = installationID
	return s.snapshot, s.err
}

type stubReviewer struct {
	res   *review.Result
	err   error
	calls int
}

func (s *stubReviewer) Run(context.Context, *pr.Snapshot) (*review.Result, error) {
	s.calls++
	return s.res, s.err
}

// deadlineReviewer blocks until the job context ends and then returns a
// partial result, the way the orchestrator does on a job timeout.
type deadlineReviewer struct{}

func (deadlineReviewer) Run(ctx context.Context, _ *pr.Snapshot) (*review.Result, error) {
	<-ctx.Done()
	return &review.Result{Decision: review.DecisionComment, FinalReview: "Partial review.", Degraded: true}, nil
}

type stubPoster struct {
	bodies []string
	err    error
	ctxErr error
}

func (s *stubPoster) PostComment(ctx context.Context, _ pr.Repo, _ int64, _ int, body string) (github.Comment, error) {
	s.bodies = append(s.bodies, body)
	s.ctxErr = ctx.Err()
	return github.Comment{ID: 1}, s.err
}

func job() Job {
	return Job{ID: "d-1", Repo: pr.Repo{Owner: "acme", Name: "api"}, Number: 7, InstallationID: 42}
}

func result() *review.Result {
	return &review.Result{Decision: review.DecisionComment, FinalReview: "Looks reasonable."}
}

func TestReview_PostsComment(t *testing.T) {
	col := &stubCollector{snapshot: &pr.Snapshot{Number: 7}}
	rev := &stubReviewer{res: result()}
	post := &stubPoster{}

	out, err := New(col, rev, post, nil).Review(context.Background(), job())
	require.NoError(t, err)
	assert.EqualValues(t, 42, col.gotInst)
	assert.Same(t, rev.res, out.Result)
	require.NotNil(t, out.Comment)
	require.Len(t, post.bodies, 1)
	assert.Contains(t, post.bodies[0], "Looks reasonable.")
}

func TestReview_NoPoster(t *testing.T) {
	out, err := New(&stubCollector{snapshot: &pr.Snapshot{}}, &stubReviewer{res: result()}, nil, nil).Review(context.Background(), job())
	require.NoError(t, err)
	assert.NotNil(t, out.Result)
	assert.Nil(t, out.Comment)
}

func TestReview_CollectFailureSkipsReview(t *testing.T) {
	rev := &stubReviewer{res: result()}
	_, err := New(&stubCollector{err: github.ErrNotFound}, rev, nil, nil).Review(context.Background(), job())
	require.Error(t, err)
	assert.ErrorIs(t, err, github.ErrNotFound)
	assert.Contains(t, err.Error(), "collecting acme/api#7")
	assert.Zero(t, rev.calls)
}

func TestReview_InvalidSnapshot(t *testing.T) {
	verr := &pr.ValidationError{Problems: []string{"title is required"}}
	post := &stubPoster{}
	_, err := New(&stubCollector{snapshot: &pr.Snapshot{}}, &stubReviewer{err: verr}, post, nil).Review(context.Background(), job())

	var got *pr.ValidationError
	require.True(t, errors.As(err, &got))
	assert.Empty(t, post.bodies)
}

func TestReview_PostFailureKeepsResult(t *testing.T) {
	post := &stubPoster{err: errors.New("502")}
	out, err := New(&stubCollector{snapshot: &pr.Snapshot{}}, &stubReviewer{res: result()}, post, nil).Review(context.Background(), job())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posting review for acme/api#7")
	assert.NotNil(t, out.Result)
	assert.Nil(t, out.Comment)
}

func TestReview_PostsAfterJobDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	post := &stubPoster{}
	out, err := New(&stubCollector{snapshot: &pr.Snapshot{}}, deadlineReviewer{}, post, nil).Review(ctx, job())
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	require.Len(t, post.bodies, 1)
	assert.NoError(t, post.ctxErr)
	assert.Contains(t, post.bodies[0], "Partial review.")
	require.NotNil(t, out.Comment)
}
