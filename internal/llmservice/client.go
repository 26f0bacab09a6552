package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"filing-rag/internal/config"
	"filing-rag/internal/models"
)

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ServiceError reports a generation call that failed on every attempt. It
// matches models.ErrGenerationService.
type ServiceError struct {
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() []error { return []error{models.ErrGenerationService, e.Err} }

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Client is a Generator backed by a langchaingo chat model.
type Client struct {
	llm          llms.Model
	systemPrompt string
	temperature  float64
	maxTokens    int
	attempts     int
}

func NewClient(llm llms.Model, cfg *config.LLMConfig, attempts int) *Client {
	return &Client{
		llm:          llm,
		systemPrompt: models.AnalystSystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		attempts:     max(attempts, 1),
	}
}

// NewModel builds the chat model named by cfg.Provider.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, models.ConfigError("init openai model: %v", err)
		}
		return llm, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, models.ConfigError("init ollama model: %v", err)
		}
		return llm, nil
	default:
		return nil, models.ConfigError("unknown inference provider %q", cfg.Provider)
	}
}

// Generate sends the analyst system prompt and prompt to the model and
// returns the first choice with any <think> block removed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		res, err := c.llm.GenerateContent(ctx, msgContent, opts...)
		if err == nil && (res == nil || len(res.Choices) == 0) {
			err = errors.New("empty response from model")
		}
		if err == nil {
			return cleanResponse(res.Choices[0].Content), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", &ServiceError{Attempts: attempt, Err: fmt.Errorf("%w: %v", ctx.Err(), err)}
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Generation failed")
	}
	return "", &ServiceError{Attempts: c.attempts, Err: lastErr}
}

func cleanResponse(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
