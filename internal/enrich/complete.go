package enrich

import (
	"context"

	"github.com/sells-group/leads-cli/pkg/anthropic"
	"github.com/sells-group/leads-cli/pkg/openai"
)

const systemPrompt = `You identify business contacts from web search results. Answer only from the evidence given. If the evidence does not clearly identify the person, say so instead of guessing.`

// Completer answers a single prompt with text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnthropicCompleter adapts the Anthropic messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter wraps an Anthropic client.
func NewAnthropicCompleter(c anthropic.Client, model string, maxTokens int64) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicCompleter{client: c, model: model, maxTokens: maxTokens}
}

// Name implements Completer.
func (a *AnthropicCompleter) Name() string { return "anthropic" }

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.model, "enrich")
	return resp.Text(), nil
}

// OpenAICompleter adapts any OpenAI-compatible chat endpoint.
type OpenAICompleter struct {
	client    openai.Client
	maxTokens int
}

// NewOpenAICompleter wraps an OpenAI client.
func NewOpenAICompleter(c openai.Client, maxTokens int) *OpenAICompleter {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &OpenAICompleter{client: c, maxTokens: maxTokens}
}

// Name implements Completer.
func (o *OpenAICompleter) Name() string { return "openai" }

// Complete implements Completer.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Complete(ctx, openai.CompletionRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
