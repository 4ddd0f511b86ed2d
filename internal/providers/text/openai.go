package text

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"

	"clipforge/internal/domain"
)

// OpenAICompletion adapts an OpenAI-compatible chat endpoint (OpenAI itself,
// or any self-hosted gateway speaking the same wire format) to Completion.
type OpenAICompletion struct {
	client *openai.Client
	model  string
}

// NewOpenAICompletion builds a client against endpoint with token, using
// model for both completion and token estimation. An empty endpoint uses
// go-openai's default (api.openai.com).
func NewOpenAICompletion(endpoint, token, model string) *OpenAICompletion {
	cfg := openai.DefaultConfig(token)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &OpenAICompletion{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAICompletion) Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (*ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &domain.ProviderError{Retryable: true, Message: "empty completion response", Capability: string(domain.CapabilityText)}
	}

	return &ChatResult{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAICompletion) EstimateCost(systemPrompt, userPrompt string) (inputTokens, outputTokens int) {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return estimateByWordCount(systemPrompt, userPrompt)
		}
	}
	inputTokens = len(enc.Encode(systemPrompt, nil, nil)) + len(enc.Encode(userPrompt, nil, nil))
	// Plans run a few hundred output tokens per scene/shot; without a prior
	// sample this is a coarse multiple of input size, refined once real
	// Usage comes back from a call.
	outputTokens = inputTokens * 3
	return inputTokens, outputTokens
}

func estimateByWordCount(systemPrompt, userPrompt string) (int, int) {
	words := len(systemPrompt)/5 + len(userPrompt)/5
	return words, words * 3
}

// classifyOpenAIError maps a transport/HTTP error from go-openai into the
// Retryable/HTTPStatus shape the orchestrator's retry loop expects.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if e, ok := err.(*openai.APIError); ok {
		apiErr = e
	}
	if apiErr == nil {
		return &domain.ProviderError{Retryable: true, Message: err.Error(), Capability: string(domain.CapabilityText)}
	}
	retryable := apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	return &domain.ProviderError{
		Retryable:  retryable,
		HTTPStatus: apiErr.HTTPStatusCode,
		Message:    fmt.Sprintf("%v", apiErr.Message),
		Capability: string(domain.CapabilityText),
	}
}

var _ Completion = (*OpenAICompletion)(nil)
