// Package providers implements the Analyzer interface for each supported LLM
// backend.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini),
// Ollama / LMStudio for local models, and any model reachable through the
// dspy-go LLM factory.
//
// The HTTP providers share a common retry helper with exponential back-off for
// rate limits and 5xx responses. HTTP clients are injected via a transport
// field so that tests can redirect calls to local httptest servers without
// making live API requests.
//
// An Analyzer is a pure text-in/text-out collaborator: it knows nothing about
// review stages or response formats. Use [New] to obtain one by provider name
// and [WithCache] to memoise successful responses.
package providers
