package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits applied to chat input
const (
	MaxContentLength = 10000
	MaxPromptLength  = 4000
	MaxTitleLength   = 200
	DefaultTitle     = "New Conversation"
)

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateContent validates the content of a message
func (v *ChatRequestValidator) ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}

	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return fmt.Errorf("content must be at most %d characters long, got %d", MaxContentLength, n)
	}
	return nil
}

// ValidateRole validates the role of a message; an empty role means user
func (v *ChatRequestValidator) ValidateRole(role string) error {
	switch role {
	case "", "user", "assistant":
		return nil
	default:
		return fmt.Errorf("role must be one of: user, assistant; got %s", role)
	}
}

// ValidatePrompt validates an image prompt
func (v *ChatRequestValidator) ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt cannot be empty")
	}

	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return fmt.Errorf("prompt must be at most %d characters long, got %d", MaxPromptLength, n)
	}
	return nil
}

// ValidateMessageRequest validates content and role together
func (v *ChatRequestValidator) ValidateMessageRequest(content, role string) error {
	if err := v.ValidateContent(content); err != nil {
		return err
	}

	if err := v.ValidateRole(role); err != nil {
		return err
	}

	return nil
}

// NormalizeTitle trims a title, substitutes the default for an empty one and
// truncates it to MaxTitleLength characters
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}

	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
	}
	return title
}
