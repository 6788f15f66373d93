package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/leads-cli/pkg/anthropic/mocks"
	"github.com/sells-group/leads-cli/pkg/openai"
	openaimocks "github.com/sells-group/leads-cli/pkg/openai/mocks"
)

func TestAnthropicCompleter(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 512 &&
			req.System == systemPrompt &&
			len(req.Messages) == 1 && req.Messages[0].Content == "who?"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"url": null}`}},
	}, nil)

	c := NewAnthropicCompleter(client, "claude-haiku-4-5-20251001", 0)
	assert.Equal(t, "anthropic", c.Name())

	text, err := c.Complete(context.Background(), "who?")
	require.NoError(t, err)
	assert.Equal(t, `{"url": null}`, text)
}

func TestAnthropicCompleter_Error(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropic.StatusError{StatusCode: 529, Err: errors.New("overloaded")})

	_, err := NewAnthropicCompleter(client, "m", 100).Complete(context.Background(), "x")
	var se *anthropic.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 529, se.HTTPStatus())
}

func TestOpenAICompleter(t *testing.T) {
	client := openaimocks.NewMockClient(t)
	client.On("Complete", mock.Anything, openai.CompletionRequest{
		System:    systemPrompt,
		Prompt:    "who?",
		MaxTokens: 256,
	}).Return(&openai.CompletionResponse{Content: "2"}, nil)

	c := NewOpenAICompleter(client, 256)
	assert.Equal(t, "openai", c.Name())

	text, err := c.Complete(context.Background(), "who?")
	require.NoError(t, err)
	assert.Equal(t, "2", text)
}
