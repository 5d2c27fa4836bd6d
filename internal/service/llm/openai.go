package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"imagine-chat/internal/config"
	"imagine-chat/internal/logger"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider implements TextCompleter and ImageGenerator against an
// OpenAI-compatible API
type OpenAIProvider struct {
	client *openai.Client
	config config.AIConfig
}

// NewOpenAIProvider creates a provider from the AI configuration
func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Complete sends the system prompt followed by history and returns the reply
func (p *OpenAIProvider) Complete(ctx context.Context, history []Message) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if p.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.config.SystemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.TextModel,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: float32(p.config.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion returned")
	}

	logger.Log.WithFields(logrus.Fields{
		"model":        p.config.TextModel,
		"messages":     len(history),
		"total_tokens": resp.Usage.TotalTokens,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Debug("Chat completion received")

	return content, nil
}

// Generate requests one image with the configured model, size, quality and style
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (*GeneratedImage, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.config.ImageModel,
		N:              1,
		Size:           p.config.ImageSize,
		Quality:        p.config.ImageQuality,
		Style:          p.config.ImageStyle,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("no image returned")
	}

	image := &GeneratedImage{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
		Model:         p.config.ImageModel,
		Size:          p.config.ImageSize,
		Quality:       p.config.ImageQuality,
		Duration:      time.Since(start),
	}

	logger.Log.WithFields(logrus.Fields{
		"model":       image.Model,
		"size":        image.Size,
		"duration_ms": image.Duration.Milliseconds(),
	}).Debug("Image generated")

	return image, nil
}

func (p *OpenAIProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

var (
	_ TextCompleter  = (*OpenAIProvider)(nil)
	_ ImageGenerator = (*OpenAIProvider)(nil)
)
