package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/google/go-github/v68/github"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"

	"github.com/dshills/prgate/internal/pipeline"
	"github.com/dshills/prgate/internal/pr"
)

// DefaultReviewTimeout bounds one background review when Options leaves it unset.
const DefaultReviewTimeout = 10 * time.Minute

var reviewActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// Runner runs one review job.
type Runner interface {
	Review(ctx context.Context, job pipeline.Job) (pipeline.Outcome, error)
}

// Options configures a Server.
type Options struct {
	// Secret is the webhook secret shared with GitHub. Required.
	Secret        []byte
	ReviewTimeout time.Duration
	SkipDrafts    bool
	Logger        *logging.Logger
}

// Stats are the job counters reported by /healthz.
type Stats struct {
	Accepted  int64 `json:"accepted"`
	Ignored   int64 `json:"ignored"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Server is the webhook receiver.
type Server struct {
	runner Runner
	opts   Options
	logger *logging.Logger
	mux    *http.ServeMux

	// base is the parent context of every job. Cancelled by Close.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closing bool
	jobs    *conc.WaitGroup

	accepted  atomic.Int64
	ignored   atomic.Int64
	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a Server that hands accepted deliveries to runner.
func New(runner Runner, opts Options) (*Server, error) {
	if runner == nil {
		return nil, errors.New("server: runner is required")
	}
	// go-github skips signature checks when the secret is empty.
	if len(opts.Secret) == 0 {
		return nil, errors.New("server: webhook secret is required")
	}
	if opts.ReviewTimeout <= 0 {
		opts.ReviewTimeout = DefaultReviewTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner: runner,
		opts:   opts,
		logger: opts.Logger,
		mux:    http.NewServeMux(),
		base:   base,
		cancel: cancel,
		jobs:   conc.NewWaitGroup(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /github/webhook", s.handleWebhook)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Stats returns a snapshot of the job counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:  s.accepted.Load(),
		Ignored:   s.ignored.Load(),
		Running:   s.running.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then stops accepting
// connections and waits for running reviews.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info(shutdownCtx, "shutting down; waiting for %d running reviews", s.running.Load())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(shutdownCtx, "http shutdown: %v", err)
	}
	return s.Drain(shutdownCtx)
}

// Drain stops accepting new jobs and waits for the running ones. If ctx ends
// first the remaining jobs are cancelled and Drain returns ctx.Err().
func (s *Server) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Close cancels every running job without waiting.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := github.ValidatePayload(r, s.opts.Secret)
	if err != nil {
		s.logger.Warn(ctx, "rejected webhook delivery: %v", err)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	delivery := github.DeliveryID(r)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	eventType := github.WebHookType(r)

	switch eventType {
	case "ping":
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case "pull_request":
	default:
		s.ignore(ctx, w, delivery, "event "+eventType)
		return
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload: "+err.Error())
		return
	}
	prEvent, ok := event.(*github.PullRequestEvent)
	if !ok {
		writeError(w, http.StatusBadRequest, "unexpected payload type")
		return
	}

	job, reason := s.jobFor(delivery, prEvent)
	if reason != "" {
		s.ignore(ctx, w, delivery, reason)
		return
	}
	if !s.enqueue(job) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	s.logger.Info(ctx, "delivery %s: queued review of %s (%s)", delivery, job, job.Action)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "delivery": delivery})
}

// jobFor builds a job from the event, or returns why the event is ignored.
func (s *Server) jobFor(delivery string, ev *github.PullRequestEvent) (pipeline.Job, string) {
	action := ev.GetAction()
	if !reviewActions[action] {
		return pipeline.Job{}, "action " + action
	}
	pull := ev.GetPullRequest()
	if s.opts.SkipDrafts && pull.GetDraft() {
		return pipeline.Job{}, "draft pull request"
	}
	repo := ev.GetRepo()
	number := ev.GetNumber()
	if number == 0 {
		number = pull.GetNumber()
	}
	if repo.GetOwner().GetLogin() == "" || repo.GetName() == "" || number <= 0 {
		return pipeline.Job{}, "missing repository or pull request number"
	}
	return pipeline.Job{
		ID:             delivery,
		Repo:           pr.Repo{Owner: repo.GetOwner().GetLogin(), Name: repo.GetName()},
		Number:         number,
		InstallationID: ev.GetInstallation().GetID(),
		HeadSHA:        pull.GetHead().GetSHA(),
		Action:         action,
	}, ""
}

func (s *Server) ignore(ctx context.Context, w http.ResponseWriter, delivery, reason string) {
	s.ignored.Inc()
	s.logger.Debug(ctx, "delivery %s ignored: %s", delivery, reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "reason": reason})
}

func (s *Server) enqueue(job pipeline.Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return false
	}
	s.accepted.Inc()
	s.jobs.Go(func() { s.run(job) })
	return true
}

func (s *Server) run(job pipeline.Job) {
	s.running.Inc()
	defer s.running.Dec()

	ctx, cancel := context.WithTimeout(s.base, s.opts.ReviewTimeout)
	defer cancel()

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		var out pipeline.Outcome
		out, err = s.runner.Review(ctx, job)
		if err == nil && out.Result != nil {
			s.logger.Info(ctx, "job %s: %s on %s in %dms", job.ID, out.Result.Decision, job, out.Result.Timing.TotalMs)
		}
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		s.failed.Inc()
		s.logger.Error(ctx, "job %s: %v", job.ID, err)
		return
	}
	s.completed.Inc()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
