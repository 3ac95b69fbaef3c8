package providers

import (
	"context"
	"fmt"
	"strings"
)

// Request is a single prompt sent to an analyzer.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks for a bare JSON object on backends with a JSON output mode.
	// Others ignore it and rely on the prompt.
	JSON bool

	// Label names the unit of work ("intent", "file:src/a.go") for logs.
	// Backends never send it to the model.
	Label string
}

// Response contains the raw text returned by an analyzer.
type Response struct {
	Content    string
	TokensUsed int
}

// Analyzer turns a prompt into raw text. Implementations must be safe for
// concurrent use: the review engine calls them from several goroutines.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Names lists the provider names accepted by New.
var Names = []string{"anthropic", "openai", "gemini", "google", "ollama", "lmstudio", "dspy"}

// New creates an analyzer by provider name.
func New(provider, model string) (Analyzer, error) {
	switch strings.ToLower(provider) {
	case "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model)
	case "gemini", "google":
		return NewGemini(model)
	case "ollama", "lmstudio":
		return NewOllama(model)
	case "dspy":
		return NewDSPy(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func maxTokensOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
