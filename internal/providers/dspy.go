package providers

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/XiaoConstantine/dspy-go/pkg/core"
	"github.com/XiaoConstantine/dspy-go/pkg/llms"
)

// dspy-go keeps a single default LLM per process.
var (
	dspyMu    sync.Mutex
	dspyModel string
)

// DSPy routes prompts through the dspy-go default LLM. The model is a
// dspy-go model ID such as "ollama:llama3" or "llamacpp:".
type DSPy struct {
	model string
	llm   core.LLM
}

// NewDSPy configures the dspy-go default LLM on first use and wraps it.
// Asking for a different model later in the same process is an error.
func NewDSPy(model string) (*DSPy, error) {
	if model == "" {
		return nil, fmt.Errorf("dspy provider requires a model id")
	}
	dspyMu.Lock()
	defer dspyMu.Unlock()
	switch dspyModel {
	case "":
		llms.EnsureFactory()
		if err := core.ConfigureDefaultLLM(os.Getenv("PRGATE_DSPY_API_KEY"), core.ModelID(model)); err != nil {
			return nil, fmt.Errorf("configuring dspy model %s: %w", model, err)
		}
		dspyModel = model
	case model:
	default:
		return nil, fmt.Errorf("dspy is already configured with model %s; cannot switch to %s", dspyModel, model)
	}
	llm := core.GetDefaultLLM()
	if llm == nil {
		return nil, fmt.Errorf("dspy default LLM is not configured")
	}
	return &DSPy{model: model, llm: llm}, nil
}

func (d *DSPy) Name() string { return "dspy" }

func (d *DSPy) Analyze(ctx context.Context, req Request) (Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	out, err := d.llm.Generate(ctx, prompt, core.WithMaxTokens(maxTokensOr(req.MaxTokens, 4096)))
	if err != nil {
		return Response{}, fmt.Errorf("dspy generation failed: %w", err)
	}
	return Response{Content: out.Content}, nil
}
