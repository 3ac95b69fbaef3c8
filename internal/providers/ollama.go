package providers

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama implements the Analyzer interface for Ollama and LM Studio through
// their OpenAI-compatible endpoint.
type Ollama struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOllama creates a new Ollama provider. No API key is required by default.
func NewOllama(model string) (*Ollama, error) {
	return &Ollama{
		apiKey:  os.Getenv("PRGATE_OLLAMA_API_KEY"),
		model:   model,
		baseURL: normalizeOllamaURL(os.Getenv("OLLAMA_HOST")),
		client:  &http.Client{Timeout: 300 * time.Second},
	}, nil
}

// normalizeOllamaURL accepts a bare host, a /v1 prefix or the full
// completions path and returns the completions endpoint.
func normalizeOllamaURL(raw string) string {
	if raw == "" {
		raw = defaultOllamaURL
	}
	raw = strings.TrimRight(raw, "/")
	raw = strings.TrimSuffix(raw, "/v1/chat/completions")
	raw = strings.TrimSuffix(raw, "/v1")
	return raw + "/v1/chat/completions"
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Analyze(ctx context.Context, req Request) (Response, error) {
	var headers map[string]string
	if o.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + o.apiKey}
	}
	return chatCompletion(ctx, o.client, o.baseURL, headers, o.model, req)
}
