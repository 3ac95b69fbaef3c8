package pr

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ChangeKind is the kind of change applied to a file.
type ChangeKind string

const (
	KindAdded    ChangeKind = "added"
	KindModified ChangeKind = "modified"
	KindRemoved  ChangeKind = "removed"
	KindRenamed  ChangeKind = "renamed"
)

// ParseChangeKind maps a GitHub file status onto a ChangeKind.
// "copied" and "changed" carry a full diff and are treated as modifications.
func ParseChangeKind(status string) (ChangeKind, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "added":
		return KindAdded, nil
	case "modified", "changed", "copied":
		return KindModified, nil
	case "removed", "deleted":
		return KindRemoved, nil
	case "renamed":
		return KindRenamed, nil
	default:
		return "", fmt.Errorf("unknown file status %q", status)
	}
}

// Author identifies a GitHub user or a git author.
type Author struct {
	Login string `json:"login"`
	ID    int64  `json:"id,omitempty"`
}

// Ref is one side of a pull request.
type Ref struct {
	Branch string `json:"branch"`
	SHA    string `json:"sha"`
}

// Repo identifies a repository.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// FileChange is one changed file in a pull request.
type FileChange struct {
	Path         string     `json:"path"`
	Kind         ChangeKind `json:"kind"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	Changes      int        `json:"changes"`
	Patch        string     `json:"patch,omitempty"`
	PreviousPath string     `json:"previousPath,omitempty"`
	BlobURL      string     `json:"blobUrl,omitempty"`
}

// HasPatch reports whether unified-diff text is available for the file.
func (f FileChange) HasPatch() bool {
	return strings.TrimSpace(f.Patch) != ""
}

// Ext returns the file extension without the dot, or "other".
func (f FileChange) Ext() string {
	ext := path.Ext(f.Path)
	if ext == "" || ext == "." {
		return "other"
	}
	return strings.TrimPrefix(ext, ".")
}

// CommitInfo is one commit on the pull request branch.
type CommitInfo struct {
	SHA       string     `json:"sha"`
	Message   string     `json:"message"`
	Author    Author     `json:"author"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// ShortSHA returns the first seven characters of the hash.
func (c CommitInfo) ShortSHA() string {
	if len(c.SHA) > 7 {
		return c.SHA[:7]
	}
	return c.SHA
}

// Subject returns the first line of the commit message.
func (c CommitInfo) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// Snapshot is the captured state of a pull request at collection time.
type Snapshot struct {
	Number  int          `json:"number"`
	Title   string       `json:"title"`
	Body    string       `json:"body,omitempty"`
	State   string       `json:"state,omitempty"`
	Author  Author       `json:"author"`
	Repo    Repo         `json:"repo"`
	Base    Ref          `json:"base"`
	Head    Ref          `json:"head"`
	Files   []FileChange `json:"files"`
	Commits []CommitInfo `json:"commits"`

	ChangedFiles int `json:"changedFiles"`
	CommitCount  int `json:"commitCount"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	Changes      int `json:"changes"`

	HTMLURL string `json:"htmlUrl,omitempty"`
	DiffURL string `json:"diffUrl,omitempty"`
}

// NewSnapshot fills in the aggregate counts from the file and commit
// sequences so that the result always satisfies the count invariant.
func NewSnapshot(s Snapshot) *Snapshot {
	s.ChangedFiles = len(s.Files)
	s.CommitCount = len(s.Commits)
	s.Additions, s.Deletions, s.Changes = 0, 0, 0
	for _, f := range s.Files {
		s.Additions += f.Additions
		s.Deletions += f.Deletions
		s.Changes += f.Changes
	}
	return &s
}

// ValidationError lists every invariant a snapshot violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid pull request snapshot: " + strings.Join(e.Problems, "; ")
}

// Validate checks the identifying fields, the aggregate counts and the
// per-file rules. It returns nil or a *ValidationError.
func (s *Snapshot) Validate() error {
	if s == nil {
		return &ValidationError{Problems: []string{"snapshot is nil"}}
	}
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Number <= 0 {
		addf("number must be positive, got %d", s.Number)
	}
	if strings.TrimSpace(s.Title) == "" {
		addf("title is required")
	}
	if s.Author.Login == "" {
		addf("author login is required")
	}
	if s.Base.Branch == "" || s.Head.Branch == "" {
		addf("base and head branches are required")
	}

	var adds, dels, changes int
	for i, f := range s.Files {
		if f.Path == "" {
			addf("files[%d]: path is required", i)
		}
		switch f.Kind {
		case KindAdded, KindModified, KindRemoved, KindRenamed:
		default:
			addf("files[%d] %s: unknown kind %q", i, f.Path, f.Kind)
		}
		if f.Additions < 0 || f.Deletions < 0 || f.Changes < 0 {
			addf("files[%d] %s: negative line counts", i, f.Path)
		}
		if f.Kind == KindRenamed && f.PreviousPath == "" {
			addf("files[%d] %s: renamed file without previous path", i, f.Path)
		}
		if f.Kind != KindRenamed && f.PreviousPath != "" {
			addf("files[%d] %s: previous path set on %s file", i, f.Path, f.Kind)
		}
		adds += f.Additions
		dels += f.Deletions
		changes += f.Changes
	}

	if s.ChangedFiles != len(s.Files) {
		addf("changed file count %d does not match %d files", s.ChangedFiles, len(s.Files))
	}
	if s.CommitCount != len(s.Commits) {
		addf("commit count %d does not match %d commits", s.CommitCount, len(s.Commits))
	}
	if s.Additions != adds {
		addf("additions %d does not match file sum %d", s.Additions, adds)
	}
	if s.Deletions != dels {
		addf("deletions %d does not match file sum %d", s.Deletions, dels)
	}
	if s.Changes != changes {
		addf("changes %d does not match file sum %d", s.Changes, changes)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
