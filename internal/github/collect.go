package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/dshills/prgate/internal/pr"
)

// perPage is the page size for file and commit listings.
const perPage = 100

// CollectSnapshot fetches a pull request with all of its files and commits.
func (c *Client) CollectSnapshot(ctx context.Context, repo pr.Repo, installationID int64, number int) (*pr.Snapshot, error) {
	gh, err := c.rest(ctx, installationID)
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "collecting %s#%d", repo, number)

	p, _, err := gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		err = classify(err, fmt.Sprintf("PR #%d in %s", number, repo))
		c.invalidate(installationID, err)
		return nil, err
	}

	files, err := c.listFiles(ctx, gh, repo, number)
	if err != nil {
		return nil, err
	}
	commits, err := c.listCommits(ctx, gh, repo, number)
	if err != nil {
		return nil, err
	}

	s := pr.NewSnapshot(pr.Snapshot{
		Number:  p.GetNumber(),
		Title:   p.GetTitle(),
		Body:    p.GetBody(),
		State:   p.GetState(),
		Author:  pr.Author{Login: p.GetUser().GetLogin(), ID: p.GetUser().GetID()},
		Repo:    repo,
		Base:    pr.Ref{Branch: p.GetBase().GetRef(), SHA: p.GetBase().GetSHA()},
		Head:    pr.Ref{Branch: p.GetHead().GetRef(), SHA: p.GetHead().GetSHA()},
		Files:   files,
		Commits: commits,
		HTMLURL: p.GetHTMLURL(),
		DiffURL: p.GetDiffURL(),
	})
	c.logger.Info(ctx, "collected %s#%d: %d files, %d commits, +%d/-%d",
		repo, number, s.ChangedFiles, s.CommitCount, s.Additions, s.Deletions)
	return s, nil
}

func (c *Client) listFiles(ctx context.Context, gh *github.Client, repo pr.Repo, number int) ([]pr.FileChange, error) {
	var out []pr.FileChange
	opts := &github.ListOptions{PerPage: perPage}
	for {
		page, resp, err := gh.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("listing files of PR #%d", number))
		}
		for _, f := range page {
			out = append(out, c.fileChange(ctx, f))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) fileChange(ctx context.Context, f *github.CommitFile) pr.FileChange {
	kind, err := pr.ParseChangeKind(f.GetStatus())
	if err != nil {
		c.logger.Warn(ctx, "%s: %v; treating as modified", f.GetFilename(), err)
		kind = pr.KindModified
	}
	fc := pr.FileChange{
		Path:      f.GetFilename(),
		Kind:      kind,
		Additions: f.GetAdditions(),
		Deletions: f.GetDeletions(),
		Changes:   f.GetChanges(),
		Patch:     f.GetPatch(),
		BlobURL:   f.GetBlobURL(),
	}
	if kind == pr.KindRenamed {
		fc.PreviousPath = f.GetPreviousFilename()
	}
	return fc
}

func (c *Client) listCommits(ctx context.Context, gh *github.Client, repo pr.Repo, number int) ([]pr.CommitInfo, error) {
	var out []pr.CommitInfo
	opts := &github.ListOptions{PerPage: perPage}
	for {
		page, resp, err := gh.PullRequests.ListCommits(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("listing commits of PR #%d", number))
		}
		for _, rc := range page {
			out = append(out, commitInfo(rc))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// commitInfo prefers the linked GitHub account and falls back to the git
// author name.
func commitInfo(rc *github.RepositoryCommit) pr.CommitInfo {
	commit := rc.GetCommit()
	author := pr.Author{Login: rc.GetAuthor().GetLogin(), ID: rc.GetAuthor().GetID()}
	if author.Login == "" {
		author = pr.Author{Login: commit.GetAuthor().GetName()}
		if author.Login == "" {
			author.Login = "unknown"
		}
	}
	ci := pr.CommitInfo{
		SHA:     rc.GetSHA(),
		Message: commit.GetMessage(),
		Author:  author,
		URL:     rc.GetHTMLURL(),
	}
	if d := commit.GetAuthor().GetDate(); !d.IsZero() {
		t := d.Time.UTC()
		ci.Timestamp = &t
	}
	return ci
}

// Comment identifies a posted comment.
type Comment struct {
	ID      int64
	HTMLURL string
	Created time.Time
}

// PostComment posts body as an issue comment on the pull request.
func (c *Client) PostComment(ctx context.Context, repo pr.Repo, installationID int64, number int, body string) (Comment, error) {
	gh, err := c.rest(ctx, installationID)
	if err != nil {
		return Comment{}, err
	}
	ic, _, err := gh.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		err = classify(err, fmt.Sprintf("commenting on %s#%d", repo, number))
		c.invalidate(installationID, err)
		return Comment{}, err
	}
	c.logger.Info(ctx, "posted review comment on %s#%d", repo, number)
	return Comment{ID: ic.GetID(), HTMLURL: ic.GetHTMLURL(), Created: ic.GetCreatedAt().Time}, nil
}
