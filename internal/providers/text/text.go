// Package text implements the TextCompletion provider contract: a single
// chat-style call producing a JSON-mode plan response, plus a token-based
// cost estimate.
package text

import "context"

// ChatOptions configures a single Chat call.
type ChatOptions struct {
	// JSONMode requests a response-format constraint from providers that
	// support one. Providers that don't support it fall back to instructing
	// JSON output purely through the prompt.
	JSONMode bool
}

// ChatResult carries the model's raw content plus token usage, so callers
// can refine cost estimates after the fact.
type ChatResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Completion is the TextCompletion capability (spec.md §4.1/§6): a single
// request/response call, no streaming, no conversation state kept by the
// adapter between calls.
type Completion interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (*ChatResult, error)

	// EstimateCost returns a rough (inputTokens, outputTokens) projection for
	// the given prompts, used by Project cost estimation before a real call
	// is made.
	EstimateCost(systemPrompt, userPrompt string) (inputTokens, outputTokens int)
}
