package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"imagine-chat/internal/config"
	"imagine-chat/internal/service/llm"
)

// MockTextCompleter is a mock implementation of llm.TextCompleter for testing
type MockTextCompleter struct {
	CompleteFunc func(ctx context.Context, history []llm.Message) (string, error)

	mu    sync.Mutex
	calls [][]llm.Message
}

func (m *MockTextCompleter) Complete(ctx context.Context, history []llm.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]llm.Message(nil), history...))
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, history)
	}
	return "", errors.New("not implemented")
}

// Calls returns the histories passed to Complete
func (m *MockTextCompleter) Calls() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llm.Message(nil), m.calls...)
}

// MockImageGenerator is a mock implementation of llm.ImageGenerator for testing
type MockImageGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (*llm.GeneratedImage, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockImageGenerator) Generate(ctx context.Context, prompt string) (*llm.GeneratedImage, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return nil, errors.New("not implemented")
}

// Prompts returns the prompts passed to Generate
func (m *MockImageGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// ImageAt returns a generator that always succeeds with url
func ImageAt(url string) *MockImageGenerator {
	return &MockImageGenerator{
		GenerateFunc: func(_ context.Context, prompt string) (*llm.GeneratedImage, error) {
			return &llm.GeneratedImage{
				URL:      url,
				Model:    "dall-e-3",
				Size:     "1024x1024",
				Quality:  "standard",
				Duration: 1500 * time.Millisecond,
			}, nil
		},
	}
}

// Replying returns a completer that always answers reply
func Replying(reply string) *MockTextCompleter {
	return &MockTextCompleter{
		CompleteFunc: func(context.Context, []llm.Message) (string, error) {
			return reply, nil
		},
	}
}

// NewMockConfig creates an AppConfig with test defaults
func NewMockConfig() *config.AppConfig {
	return &config.AppConfig{
		AI: config.AIConfig{
			APIKey:       "test-api-key",
			TextModel:    "gpt-4o-mini",
			MaxTokens:    1000,
			Temperature:  0.7,
			SystemPrompt: "You are a helpful assistant.",
			ImageModel:   "dall-e-3",
			ImageSize:    "1024x1024",
			ImageQuality: "standard",
			ImageStyle:   "vivid",
			Timeout:      5 * time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:       []byte("test-secret-key-with-at-least-32-bytes"),
			TokenExpiration: time.Hour,
		},
		Sync: config.DefaultSyncConfig(),
	}
}
