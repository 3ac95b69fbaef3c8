// Package pipeline runs one review job end to end: collect the pull request
// snapshot, run the review workflow, and post the comment.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"

	"github.com/dshills/prgate/internal/github"
	"github.com/dshills/prgate/internal/output"
	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/review"
)

// PostTimeout bounds the comment post. Posting runs on its own deadline so a
// review that used up the job's time is still delivered.
const PostTimeout = 30 * time.Second

// Collector fetches a pull request snapshot.
type Collector interface {
	CollectSnapshot(ctx context.Context, repo pr.Repo, installationID int64, number int) (*pr.Snapshot, error)
}

// Reviewer runs the review workflow over a snapshot.
type Reviewer interface {
	Run(ctx context.Context, snapshot *pr.Snapshot) (*review.Result, error)
}

// Poster posts a comment on a pull request.
type Poster interface {
	PostComment(ctx context.Context, repo pr.Repo, installationID int64, number int, body string) (github.Comment, error)
}

// Job identifies one pull request to review.
type Job struct {
	// ID is the webhook delivery id or a generated one.
	ID             string
	Repo           pr.Repo
	Number         int
	InstallationID int64
	HeadSHA        string
	Action         string
}

func (j Job) String() string {
	return fmt.Sprintf("%s#%d", j.Repo, j.Number)
}

// Outcome is what a job produced. Result is set whenever the review ran,
// even if posting failed afterwards.
type Outcome struct {
	Job     Job
	Result  *review.Result
	Comment *github.Comment
}

// Pipeline wires a collector, a reviewer and an optional poster together.
type Pipeline struct {
	collector Collector
	reviewer  Reviewer
	poster    Poster
	logger    *logging.Logger
}

// New creates a Pipeline. A nil poster disables posting.
func New(c Collector, r Reviewer, p Poster, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Pipeline{collector: c, reviewer: r, poster: p, logger: logger}
}

// Review collects, reviews and, when a poster is configured, comments on
// the pull request named by job.
func (p *Pipeline) Review(ctx context.Context, job Job) (Outcome, error) {
	out := Outcome{Job: job}

	snapshot, err := p.collector.CollectSnapshot(ctx, job.Repo, job.InstallationID, job.Number)
	if err != nil {
		return out, fmt.Errorf("collecting %s: %w", job, err)
	}
	if job.HeadSHA != "" && snapshot.Head.SHA != "" && snapshot.Head.SHA != job.HeadSHA {
		p.logger.Info(ctx, "job %s: head moved from %.7s to %.7s since the event; reviewing the newer head",
			job.ID, job.HeadSHA, snapshot.Head.SHA)
	}

	res, err := p.reviewer.Run(ctx, snapshot)
	if err != nil {
		return out, fmt.Errorf("reviewing %s: %w", job, err)
	}
	out.Result = res

	if p.poster == nil {
		return out, nil
	}
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PostTimeout)
	defer cancel()
	comment, err := p.poster.PostComment(postCtx, job.Repo, job.InstallationID, job.Number, output.CommentBody(res))
	if err != nil {
		return out, fmt.Errorf("posting review for %s: %w", job, err)
	}
	out.Comment = &comment
	p.logger.Info(ctx, "job %s: posted %s review on %s", job.ID, res.Decision, job)
	return out, nil
}
