package providers

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/prgate/internal/cache"
)

// rewriteTransport rewrites all request URLs to point at the test server.
type rewriteTransport struct {
	base    http.RoundTripper
	baseURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.baseURL[len("http://"):]
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func fastBackoff(t *testing.T) {
	t.Helper()
	orig := backoffBase
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = orig })
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("nope", "m")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNew_MissingKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	for _, name := range []string{"anthropic", "openai", "gemini"} {
		_, err := New(name, "m")
		assert.Error(t, err, name)
	}
	_, err := New("dspy", "")
	assert.ErrorContains(t, err, "requires a model id")
}

func TestNewDSPy_RejectsSecondModel(t *testing.T) {
	dspyMu.Lock()
	prev := dspyModel
	dspyModel = "ollama:llama3.1"
	dspyMu.Unlock()
	t.Cleanup(func() {
		dspyMu.Lock()
		dspyModel = prev
		dspyMu.Unlock()
	})

	_, err := NewDSPy("ollama:qwen2.5-coder")
	assert.ErrorContains(t, err, "already configured with model ollama:llama3.1")
}

func TestRetryWithBackoff_RetriesTransient(t *testing.T) {
	fastBackoff(t)
	var calls int
	err := retryWithBackoff(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return &serverError{statusCode: 502, body: "bad gateway"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	fastBackoff(t)
	var calls int
	err := retryWithBackoff(context.Background(), 3, func() error {
		calls++
		return &authError{message: "nope"}
	})
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryWithBackoff(ctx, 3, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&rateLimitError{}))
	assert.True(t, isRetryable(&serverError{statusCode: 500}))
	assert.False(t, isRetryable(&authError{}))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, IsRateLimited(&rateLimitError{}))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "rate limited", (&rateLimitError{}).Error())
	assert.Equal(t, "server error: oops", (&serverError{body: "oops"}).Error())
	assert.Equal(t, "authentication error: denied", (&authError{message: "denied"}).Error())
}

type countingAnalyzer struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingAnalyzer) Name() string { return "fake" }

func (c *countingAnalyzer) Analyze(_ context.Context, req Request) (Response, error) {
	c.calls.Add(1)
	if c.fail {
		return Response{}, errors.New("unavailable")
	}
	return Response{Content: "echo:" + req.Prompt, TokensUsed: 7}, nil
}

func TestWithCache_MemoisesSuccess(t *testing.T) {
	store, err := cache.New(true, t.TempDir(), 3600)
	require.NoError(t, err)

	inner := &countingAnalyzer{}
	a := WithCache(inner, "m", store)
	var hits []string
	a.(*Cached).OnHit = func(label string) { hits = append(hits, label) }

	req := Request{System: "s", Prompt: "p", Label: "intent"}
	first, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, []string{"intent"}, hits)
	assert.Equal(t, "fake", a.Name())
}

func TestWithCache_DoesNotStoreFailures(t *testing.T) {
	store, err := cache.New(true, t.TempDir(), 3600)
	require.NoError(t, err)

	inner := &countingAnalyzer{fail: true}
	a := WithCache(inner, "m", store)
	for i := 0; i < 2; i++ {
		_, err := a.Analyze(context.Background(), Request{Prompt: "p"})
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestWithCache_DisabledPassThrough(t *testing.T) {
	store, err := cache.New(false, "", 0)
	require.NoError(t, err)
	inner := &countingAnalyzer{}
	assert.Same(t, Analyzer(inner), WithCache(inner, "m", store))
	assert.Same(t, Analyzer(inner), WithCache(inner, "m", nil))
}
