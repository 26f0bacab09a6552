package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"filing-rag/internal/config"
	"filing-rag/internal/models"
)

type fakeModel struct {
	failures int
	calls    int
	reply    string
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	if f.calls <= f.failures {
		return nil, errors.New("upstream timeout")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestClient_Generate(t *testing.T) {
	m := &fakeModel{reply: "<think>scratch work</think>\nRevenue rose 20%."}
	c := NewClient(m, &config.LLMConfig{Temperature: 0.2}, 2)

	out, err := c.Generate(context.Background(), "What happened?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue rose 20%.", out)

	require.Len(t, m.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "What happened?"}, m.messages[1].Parts[0])
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	m := &fakeModel{failures: 1, reply: "ok"}
	out, err := NewClient(m, &config.LLMConfig{}, 2).Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, m.calls)
}

func TestClient_AttemptsAreBounded(t *testing.T) {
	m := &fakeModel{failures: 10}
	_, err := NewClient(m, &config.LLMConfig{}, 2).Generate(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGenerationService)
	assert.Equal(t, 2, m.calls)
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(&config.LLMConfig{Provider: "hash"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
