package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/providers"
)

const (
	intentJSON = "Here you go:\n```json\n{\"type\":\"feature\",\"summary\":\"Adds login\",\"key_objectives\":[\"login\"],\"complexity\":\"medium\",\"reasoning\":\"new endpoint\"}\n```"
	riskJSON   = "```json\n{\"level\":\"HIGH\",\"score\":8,\"factors\":[\"critical_file_modified\"],\"reasoning\":\"auth\",\"needs_careful_review\":true,\"review_focus_areas\":[\"auth\",\"errors\",\"tests\",\"perf\"]}\n```"
	lgtmJSON   = "```json\n{\"status\":\"LGTM\",\"issues\":[],\"suggestions\":[],\"summary\":\"Looks fine.\"}\n```"
)

func summaryJSON(decision string) string {
	return fmt.Sprintf("```json\n{\"decision\":%q,\"summary\":\"Overall fine.\",\"highlights\":[\"clear code\"],\"concerns\":[]}\n```", decision)
}

// fakeAnalyzer answers by request label. Unscripted file labels get LGTM.
type fakeAnalyzer struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	panics  map[string]bool
	delays  map[string]time.Duration
	block   map[string]bool
	calls   []string
}

func newFake() *fakeAnalyzer {
	return &fakeAnalyzer{
		replies: map[string]string{
			"intent":    intentJSON,
			"risk":      riskJSON,
			"summarize": summaryJSON("APPROVE"),
		},
		errs:   map[string]error{},
		panics: map[string]bool{},
		delays: map[string]time.Duration{},
		block:  map[string]bool{},
	}
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(ctx context.Context, req providers.Request) (providers.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Label)
	reply, ok := f.replies[req.Label]
	err := f.errs[req.Label]
	shouldPanic := f.panics[req.Label]
	delay := f.delays[req.Label]
	block := f.block[req.Label]
	f.mu.Unlock()

	if shouldPanic {
		panic("analyzer exploded on " + req.Label)
	}
	if block {
		<-ctx.Done()
		return providers.Response{}, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return providers.Response{}, ctx.Err()
		}
	}
	if err != nil {
		return providers.Response{}, err
	}
	if !ok {
		if !strings.HasPrefix(req.Label, "file:") {
			return providers.Response{}, errors.New("unscripted label " + req.Label)
		}
		reply = lgtmJSON
	}
	return providers.Response{Content: reply, TokensUsed: 10}, nil
}

func (f *fakeAnalyzer) calledWith(label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == label {
			return true
		}
	}
	return false
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func patchFor(name string) string {
	return "@@ -1,2 +1,3 @@ func " + name + "()\n line\n-old\n+new\n+more\n"
}

func snapshotWith(files ...pr.FileChange) *pr.Snapshot {
	return pr.NewSnapshot(pr.Snapshot{
		Number: 7,
		Title:  "Add login",
		Body:   "Implements login.",
		Author: pr.Author{Login: "octocat"},
		Repo:   pr.Repo{Owner: "acme", Name: "api"},
		Base:   pr.Ref{Branch: "main", SHA: "base"},
		Head:   pr.Ref{Branch: "login", SHA: "head"},
		Files:  files,
		Commits: []pr.CommitInfo{
			{SHA: "1111111aaaa", Message: "first"},
		},
	})
}

func modified(path string) pr.FileChange {
	return pr.FileChange{Path: path, Kind: pr.KindModified, Additions: 2, Deletions: 1, Changes: 3, Patch: patchFor(path)}
}

func strategies() map[string]FileStrategy {
	return map[string]FileStrategy{
		"parallel":   Parallel{MaxConcurrency: 3},
		"unbounded":  Parallel{},
		"sequential": Sequential{},
	}
}
