package llm

import (
	"context"
	"time"
)

// Message is one turn of the history sent for completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GeneratedImage describes the single image returned by a generation call
type GeneratedImage struct {
	URL           string
	RevisedPrompt string
	Model         string
	Size          string
	Quality       string
	Duration      time.Duration
}

// TextCompleter produces the next assistant reply for a history. Model, token
// limit and temperature are fixed by configuration.
type TextCompleter interface {
	Complete(ctx context.Context, history []Message) (string, error)
}

// ImageGenerator renders exactly one image for a prompt
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*GeneratedImage, error)
}
