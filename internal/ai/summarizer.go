package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 512
	// summaries and titles work on a bounded prefix to keep token cost flat.
	maxInputChars = 4000

	summarizeSystemPrompt = "You summarize archived content. Reply with a single concise paragraph, no preamble."
	titleSystemPrompt     = "You write titles for archived content. Reply with one short title of at most 32 characters, no quotes."
)

// Summarizer is a thin one-shot wrapper around an OpenAI-compatible chat
// endpoint. It is optional: a nil *Summarizer is a valid "AI off" state.
type Summarizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewSummarizer(cfg config.AIConfig) (*Summarizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("ai api key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	logs.Info("[ai] summarizer ready: model=%s", model)
	return &Summarizer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (s *Summarizer) Available() bool {
	return s != nil && s.client != nil
}

// Summarize produces a one-paragraph note for the content.
func (s *Summarizer) Summarize(ctx context.Context, content string) (string, error) {
	return s.complete(ctx, summarizeSystemPrompt, content)
}

// Title produces a short title for the content.
func (s *Summarizer) Title(ctx context.Context, content string) (string, error) {
	title, err := s.complete(ctx, titleSystemPrompt, content)
	if err != nil {
		return "", err
	}
	return strings.Trim(title, `"'`), nil
}

func (s *Summarizer) complete(ctx context.Context, systemPrompt, content string) (string, error) {
	if !s.Available() {
		return "", errors.New("summarizer is not configured")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("content is empty")
	}
	if len(content) > maxInputChars {
		content = content[:maxInputChars] + "\n...[truncated]"
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
