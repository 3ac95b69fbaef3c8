package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/prgate/internal/pipeline"
	"github.com/dshills/prgate/internal/review"
)

var testSecret = []byte("s3cret")

type recordingRunner struct {
	mu    sync.Mutex
	jobs  []pipeline.Job
	err   error
	panic bool
	block chan struct{}
}

func (r *recordingRunner) Review(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return pipeline.Outcome{Job: job}, ctx.Err()
		}
	}
	if r.panic {
		panic("analyzer exploded")
	}
	if r.err != nil {
		return pipeline.Outcome{Job: job}, r.err
	}
	return pipeline.Outcome{Job: job, Result: &review.Result{Decision: review.DecisionApprove}}, nil
}

func (r *recordingRunner) seen() []pipeline.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Job(nil), r.jobs...)
}

func newTestServer(t *testing.T, runner Runner, skipDrafts bool) *Server {
	t.Helper()
	s, err := New(runner, Options{Secret: testSecret, SkipDrafts: skipDrafts, ReviewTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, s *Server, event, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func prPayload(action string, draft bool) string {
	payload := map[string]any{
		"action": action,
		"number": 12,
		"pull_request": map[string]any{
			"number": 12,
			"draft":  draft,
			"head":   map[string]any{"sha": "abc123", "ref": "feature"},
		},
		"repository": map[string]any{
			"name":  "api",
			"owner": map[string]any{"login": "acme"},
		},
		"installation": map[string]any{"id": 99},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func drain(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
}

func TestNew_RequiresSecretAndRunner(t *testing.T) {
	_, err := New(&recordingRunner{}, Options{})
	assert.ErrorContains(t, err, "webhook secret is required")

	_, err = New(nil, Options{Secret: testSecret})
	assert.ErrorContains(t, err, "runner is required")
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestServer(t, runner, true)
	body := prPayload("opened", false)

	rec := deliver(t, s, "pull_request", body, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = deliver(t, s, "pull_request", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	drain(t, s)
	assert.Empty(t, runner.seen())
}

func TestWebhook_Ping(t *testing.T) {
	s := newTestServer(t, &recordingRunner{}, true)
	body := `{"zen":"Keep it logically awesome."}`
	rec := deliver(t, s, "ping", body, sign([]byte(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestWebhook_AcceptsPullRequest(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestServer(t, runner, true)
	body := prPayload("synchronize", false)

	rec := deliver(t, s, "pull_request", body, sign([]byte(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted"`)

	drain(t, s)
	jobs := runner.seen()
	require.Len(t, jobs, 1)
	assert.Equal(t, "delivery-1", jobs[0].ID)
	assert.Equal(t, "acme/api", jobs[0].Repo.String())
	assert.Equal(t, 12, jobs[0].Number)
	assert.EqualValues(t, 99, jobs[0].InstallationID)
	assert.Equal(t, "abc123", jobs[0].HeadSHA)
	assert.Equal(t, "synchronize", jobs[0].Action)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Accepted)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 0, stats.Running)
}

func TestWebhook_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
		body  string
		draft bool
	}{
		{name: "other event", event: "issues", body: `{"action":"opened"}`},
		{name: "closed action", event: "pull_request", body: prPayload("closed", false)},
		{name: "labeled action", event: "pull_request", body: prPayload("labeled", false)},
		{name: "draft", event: "pull_request", body: prPayload("opened", true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			s := newTestServer(t, runner, true)
			rec := deliver(t, s, tt.event, tt.body, sign([]byte(tt.body)))
			assert.Equal(t, http.StatusAccepted, rec.Code)
			assert.Contains(t, rec.Body.String(), "ignored")
			drain(t, s)
			assert.Empty(t, runner.seen())
			assert.EqualValues(t, 1, s.Stats().Ignored)
		})
	}
}

func TestWebhook_DraftsReviewedWhenNotSkipped(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestServer(t, runner, false)
	body := prPayload("opened", true)
	rec := deliver(t, s, "pull_request", body, sign([]byte(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	drain(t, s)
	assert.Len(t, runner.seen(), 1)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	s := newTestServer(t, &recordingRunner{}, true)
	body := `{"action": 5}`
	rec := deliver(t, s, "pull_request", body, sign([]byte(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRun_CountsFailuresAndPanics(t *testing.T) {
	failing := &recordingRunner{err: errors.New("collector down")}
	s := newTestServer(t, failing, true)
	body := prPayload("opened", false)
	deliver(t, s, "pull_request", body, sign([]byte(body)))
	drain(t, s)
	assert.EqualValues(t, 1, s.Stats().Failed)

	panicking := &recordingRunner{panic: true}
	s = newTestServer(t, panicking, true)
	deliver(t, s, "pull_request", body, sign([]byte(body)))
	drain(t, s)
	assert.EqualValues(t, 1, s.Stats().Failed)
	assert.EqualValues(t, 0, s.Stats().Completed)
}

func TestDrain_RejectsNewDeliveries(t *testing.T) {
	s := newTestServer(t, &recordingRunner{}, true)
	drain(t, s)

	body := prPayload("opened", false)
	rec := deliver(t, s, "pull_request", body, sign([]byte(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDrain_CancelsJobsOnDeadline(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	s := newTestServer(t, runner, true)
	body := prPayload("opened", false)
	deliver(t, s, "pull_request", body, sign([]byte(body)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &recordingRunner{}, true)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, Stats{}, stats)
}
