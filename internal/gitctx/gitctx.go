package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/dshills/prgate/internal/pr"
)

// LocalNumber is the pull request number given to local snapshots.
const LocalNumber = 1

// Options controls how a local snapshot is gathered.
type Options struct {
	// Dir is the repository directory; empty means the working directory.
	Dir  string
	Base string
	// Head defaults to HEAD.
	Head         string
	ContextLines int
	// MergeBase diffs against the merge base of Base and Head, the way a
	// pull request would.
	MergeBase bool
	Exclude   []string
	// Title overrides the title derived from the newest commit.
	Title string
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
	User   string
}

// GetRepoMeta collects repository metadata from git.
func GetRepoMeta(ctx context.Context, dir string) (RepoMeta, error) {
	root, err := gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	head, err := gitOutput(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		head = "" // new repo with no commits
	}
	branch, err := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	user, _ := gitOutput(ctx, dir, "config", "user.name")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
		User:   strings.TrimSpace(user),
	}, nil
}

// LocalSnapshot builds a snapshot of the changes from opts.Base to opts.Head.
func LocalSnapshot(ctx context.Context, opts Options) (*pr.Snapshot, error) {
	if opts.Base == "" {
		return nil, errors.New("a base revision is required")
	}
	if opts.Head == "" {
		opts.Head = "HEAD"
	}
	meta, err := GetRepoMeta(ctx, opts.Dir)
	if err != nil {
		return nil, err
	}

	baseSHA, err := revParse(ctx, opts.Dir, opts.Base)
	if err != nil {
		return nil, err
	}
	headSHA, err := revParse(ctx, opts.Dir, opts.Head)
	if err != nil {
		return nil, err
	}

	sep := ".."
	if opts.MergeBase {
		sep = "..."
	}
	diff, err := gitOutput(ctx, opts.Dir, buildDiffArgs(opts.Base+sep+opts.Head, opts.ContextLines)...)
	if err != nil {
		return nil, fmt.Errorf("git diff %s%s%s: %w", opts.Base, sep, opts.Head, err)
	}
	files, err := ParseDiff(diff)
	if err != nil {
		return nil, err
	}
	files = filterFiles(files, opts.Exclude)

	commits, err := ListCommits(ctx, opts.Dir, opts.Base+".."+opts.Head)
	if err != nil {
		return nil, err
	}

	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("Local changes %s..%s", opts.Base, opts.Head)
		if n := len(commits); n > 0 {
			title = commits[n-1].Subject()
		}
	}
	login := meta.User
	if login == "" {
		login = "local"
	}
	headBranch := opts.Head
	if opts.Head == "HEAD" && meta.Branch != "" {
		headBranch = meta.Branch
	}

	return pr.NewSnapshot(pr.Snapshot{
		Number:  LocalNumber,
		Title:   title,
		Body:    commitBodies(commits),
		State:   "local",
		Author:  pr.Author{Login: login},
		Repo:    pr.Repo{Owner: "local", Name: filepath.Base(meta.Root)},
		Base:    pr.Ref{Branch: opts.Base, SHA: baseSHA},
		Head:    pr.Ref{Branch: headBranch, SHA: headSHA},
		Files:   files,
		Commits: commits,
	}), nil
}

func buildDiffArgs(revRange string, contextLines int) []string {
	args := []string{"diff", "--no-color", "--no-ext-diff", "-M"}
	if contextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", contextLines))
	}
	return append(args, revRange, "--")
}

func revParse(ctx context.Context, dir, rev string) (string, error) {
	out, err := gitOutput(ctx, dir, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("unknown revision %q: %w", rev, err)
	}
	return strings.TrimSpace(out), nil
}

// ParseDiff converts a multi-file unified diff into file changes. Patches
// carry only the hunks, matching what the GitHub files API returns.
func ParseDiff(diff string) ([]pr.FileChange, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	files := make([]pr.FileChange, 0, len(parsed))
	for _, f := range parsed {
		fc := pr.FileChange{Path: f.NewName, Kind: pr.KindModified}
		switch {
		case f.IsNew:
			fc.Kind = pr.KindAdded
		case f.IsDelete:
			fc.Kind = pr.KindRemoved
			fc.Path = f.OldName
		case f.IsRename:
			fc.Kind = pr.KindRenamed
			fc.PreviousPath = f.OldName
		}

		var patch strings.Builder
		for _, frag := range f.TextFragments {
			fc.Additions += int(frag.LinesAdded)
			fc.Deletions += int(frag.LinesDeleted)
			patch.WriteString(fragmentHeader(frag))
			for _, line := range frag.Lines {
				patch.WriteString(line.Op.String())
				patch.WriteString(line.Line)
				if !strings.HasSuffix(line.Line, "\n") {
					patch.WriteString("\n")
				}
			}
		}
		fc.Changes = fc.Additions + fc.Deletions
		if !f.IsBinary {
			fc.Patch = patch.String()
		}
		files = append(files, fc)
	}
	return files, nil
}

func fragmentHeader(frag *gitdiff.TextFragment) string {
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", frag.OldPosition, frag.OldLines, frag.NewPosition, frag.NewLines)
	if frag.Comment != "" {
		header += " " + frag.Comment
	}
	return header + "\n"
}

func filterFiles(files []pr.FileChange, excludes []string) []pr.FileChange {
	if len(excludes) == 0 {
		return files
	}
	var result []pr.FileChange
	for _, f := range files {
		if !MatchesAny(f.Path, excludes) {
			result = append(result, f)
		}
	}
	return result
}

// MatchesAny returns true if the path matches any of the given glob patterns.
// A trailing "/**" matches everything below a directory and a leading "**/"
// matches the base name at any depth.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok && strings.HasPrefix(path, dir+"/") {
			return true
		}
		if clean, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// Field and record separators for git log output.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// ListCommits returns the commits in a revision range, oldest first.
func ListCommits(ctx context.Context, dir, revRange string) ([]pr.CommitInfo, error) {
	format := strings.Join([]string{"%H", "%an", "%aI", "%B"}, fieldSep) + recordSep
	out, err := gitOutput(ctx, dir, "log", "--reverse", "--format="+format, revRange)
	if err != nil {
		return nil, fmt.Errorf("git log %s: %w", revRange, err)
	}

	var commits []pr.CommitInfo
	for _, rec := range strings.Split(out, recordSep) {
		rec = strings.TrimLeft(rec, "\n")
		if strings.TrimSpace(rec) == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 4)
		if len(fields) != 4 {
			return nil, fmt.Errorf("unexpected git log record %q", rec)
		}
		c := pr.CommitInfo{
			SHA:     fields[0],
			Author:  pr.Author{Login: fields[1]},
			Message: strings.TrimSpace(fields[3]),
		}
		if ts, err := time.Parse(time.RFC3339, fields[2]); err == nil {
			ts = ts.UTC()
			c.Timestamp = &ts
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// commitBodies joins the commit messages into a description, since local
// changes have no pull request body.
func commitBodies(commits []pr.CommitInfo) string {
	var b strings.Builder
	for _, c := range commits {
		fmt.Fprintf(&b, "- %s\n", c.Subject())
	}
	return strings.TrimSpace(b.String())
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
