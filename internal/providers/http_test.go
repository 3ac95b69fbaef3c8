package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, tokens int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: content}}},
			Usage:   openaiUsage{TotalTokens: tokens},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropic_Analyze(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicBlock{{Type: "text", Text: "```json\n{}"}, {Type: "text", Text: "\n```"}},
			Usage:   anthropicUsage{InputTokens: 100, OutputTokens: 10},
		})
	}))
	defer srv.Close()

	a := &Anthropic{
		apiKey: "test-key",
		model:  "claude-sonnet-4-20250514",
		client: &http.Client{Transport: &rewriteTransport{base: srv.Client().Transport, baseURL: srv.URL}},
	}

	resp, err := a.Analyze(context.Background(), Request{System: "sys", Prompt: "review this", Label: "intent"})
	require.NoError(t, err)
	assert.Equal(t, "```json\n{}\n```", resp.Content)
	assert.Equal(t, 110, resp.TokensUsed)
	assert.Equal(t, 4096, got.MaxTokens)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "review this", got.Messages[0].Content)
}

func TestAnthropic_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	a := &Anthropic{
		apiKey: "bad-key",
		client: &http.Client{Transport: &rewriteTransport{base: srv.Client().Transport, baseURL: srv.URL}},
	}
	_, err := a.Analyze(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestOpenAI_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, 10, req.MaxTokens)
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}},
			Usage:   openaiUsage{TotalTokens: 50},
		})
	}))
	defer srv.Close()

	o := &OpenAI{apiKey: "test-key", model: "gpt-4o", baseURL: srv.URL, client: srv.Client()}
	resp, err := o.Analyze(context.Background(), Request{System: "s", Prompt: "p", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, Response{Content: "ok", TokensUsed: 50}, resp)
}

func TestOpenAI_RateLimitThenSuccess(t *testing.T) {
	fastBackoff(t)
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "[]"}}}})
	}))
	defer srv.Close()

	o := &OpenAI{apiKey: "k", baseURL: srv.URL, client: srv.Client()}
	resp, err := o.Analyze(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Content)
	assert.Equal(t, 3, attempts)
}

func TestGemini_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates:    []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "a"}, {Text: "b"}}}}},
			UsageMetadata: geminiUsage{TotalTokenCount: 75},
		})
	}))
	defer srv.Close()

	g := &Gemini{
		apiKey: "test-key",
		model:  "gemini-2.0-flash",
		client: &http.Client{Transport: &rewriteTransport{base: srv.Client().Transport, baseURL: srv.URL}},
	}
	resp, err := g.Analyze(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Content)
	assert.Equal(t, 75, resp.TokensUsed)
}

func TestJSONMode(t *testing.T) {
	var chat openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chat = got
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "{}"}}}})
	}))
	defer srv.Close()

	o := &OpenAI{apiKey: "k", baseURL: srv.URL, client: srv.Client()}
	_, err := o.Analyze(context.Background(), Request{Prompt: "p", JSON: true})
	require.NoError(t, err)
	require.NotNil(t, chat.ResponseFormat)
	assert.Equal(t, "json_object", chat.ResponseFormat.Type)

	_, err = o.Analyze(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Nil(t, chat.ResponseFormat)

	var gem geminiRequest
	gsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		gem = got
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "{}"}}}}},
		})
	}))
	defer gsrv.Close()

	g := &Gemini{
		apiKey: "k",
		model:  "gemini-2.5-flash",
		client: &http.Client{Transport: &rewriteTransport{base: gsrv.Client().Transport, baseURL: gsrv.URL}},
	}
	_, err = g.Analyze(context.Background(), Request{Prompt: "p", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gem.GenerationConfig.ResponseMimeType)
}

func TestGemini_BlockedCandidate(t *testing.T) {
	_, err := geminiResponse{Candidates: []geminiCandidate{{FinishReason: "SAFETY"}}}.text()
	assert.ErrorContains(t, err, "finish reason SAFETY")

	_, err = geminiResponse{}.text()
	assert.ErrorContains(t, err, "no candidates")
}

func TestOllama_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Content: "[]"}}},
			Usage:   openaiUsage{TotalTokens: 100},
		})
	}))
	defer srv.Close()

	o := &Ollama{model: "llama3", baseURL: srv.URL, client: srv.Client()}
	resp, err := o.Analyze(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.TokensUsed)
}

func TestOllama_WithAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer local-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "x"}}}})
	}))
	defer srv.Close()

	o := &Ollama{apiKey: "local-key", baseURL: srv.URL, client: srv.Client()}
	_, err := o.Analyze(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
}

func TestOllama_ServerErrorRetries(t *testing.T) {
	fastBackoff(t)
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal"}`))
	}))
	defer srv.Close()

	o := &Ollama{baseURL: srv.URL, client: srv.Client()}
	_, err := o.Analyze(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 4, attempts, "one call plus three retries")
}

func TestOllama_EmptyChoices(t *testing.T) {
	srv := chatServer(t, "", 0)
	o := &Ollama{baseURL: srv.URL, client: srv.Client()}
	_, err := o.Analyze(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestNormalizeOllamaURL(t *testing.T) {
	want := "http://localhost:11434/v1/chat/completions"
	for _, in := range []string{"", "http://localhost:11434/", "http://localhost:11434/v1", want} {
		assert.Equal(t, want, normalizeOllamaURL(in), in)
	}
	assert.Equal(t, "http://10.0.0.5:11434/v1/chat/completions", normalizeOllamaURL("http://10.0.0.5:11434"))
}

func TestFactory_OllamaAliases(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	for _, name := range []string{"ollama", "lmstudio"} {
		a, err := New(name, "llama3")
		require.NoError(t, err)
		assert.Equal(t, "ollama", a.Name())
	}
}

func TestChatCompletion_Defaults(t *testing.T) {
	srv := chatServer(t, "hello", 3)
	resp, err := chatCompletion(context.Background(), srv.Client(), srv.URL, nil, "m", Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
}
