// Package llm generates answers with an OpenAI-compatible completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/neonspire/docqa/internal/config"
)

// ErrEmptyCompletion is returned when the endpoint replies without choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// StopSequences end generation when the model starts a new question.
var StopSequences = []string{"\nQ:", "\nQuestion:"}

// Completer completes a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter calls /completions on an OpenAI-compatible server such as llama.cpp.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates a completer for cfg.
func NewOpenAICompleter(cfg config.LLMConfig) *OpenAICompleter {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete returns the trimmed text of the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:     c.model,
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
		Stop:      StopSequences,
	})
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}
