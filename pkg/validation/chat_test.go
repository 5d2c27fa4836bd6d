package validation

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestValidator_ValidateContent(t *testing.T) {
	validator := NewChatRequestValidator()

	tests := []struct {
		name    string
		content string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid content",
			content: "Hello, world!",
			wantErr: false,
		},
		{
			name:    "content at the limit",
			content: strings.Repeat("я", MaxContentLength),
			wantErr: false,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
			errMsg:  "content cannot be empty",
		},
		{
			name:    "whitespace content",
			content: " \n\t ",
			wantErr: true,
			errMsg:  "content cannot be empty",
		},
		{
			name:    "content over the limit",
			content: strings.Repeat("a", MaxContentLength+1),
			wantErr: true,
			errMsg:  "content must be at most 10000 characters long, got 10001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateContent(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContent() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && err.Error() != tt.errMsg {
				t.Errorf("ValidateContent() error message = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestChatRequestValidator_ValidateRole(t *testing.T) {
	validator := NewChatRequestValidator()

	for _, role := range []string{"", "user", "assistant"} {
		if err := validator.ValidateRole(role); err != nil {
			t.Errorf("ValidateRole(%q) unexpected error: %v", role, err)
		}
	}
	for _, role := range []string{"system", "tool", "USER"} {
		if err := validator.ValidateRole(role); err == nil {
			t.Errorf("ValidateRole(%q) expected error", role)
		}
	}
}

func TestChatRequestValidator_ValidatePrompt(t *testing.T) {
	validator := NewChatRequestValidator()

	assert.NoError(t, validator.ValidatePrompt("a red fox in snow"))
	assert.EqualError(t, validator.ValidatePrompt("  "), "prompt cannot be empty")
	assert.Error(t, validator.ValidatePrompt(strings.Repeat("a", MaxPromptLength+1)))
}

func TestChatRequestValidator_ValidateMessageRequest(t *testing.T) {
	validator := NewChatRequestValidator()

	assert.NoError(t, validator.ValidateMessageRequest("hi", "user"))
	assert.EqualError(t, validator.ValidateMessageRequest("", "system"), "content cannot be empty")
	assert.Error(t, validator.ValidateMessageRequest("hi", "system"))
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "plain", title: "Trip to Rome", want: "Trip to Rome"},
		{name: "trimmed", title: "  Trip  ", want: "Trip"},
		{name: "empty", title: "", want: DefaultTitle},
		{name: "whitespace", title: "   ", want: DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.title))
		})
	}

	long := NormalizeTitle(strings.Repeat("ü", MaxTitleLength+50))
	assert.Equal(t, MaxTitleLength, utf8.RuneCountInString(long))
	assert.True(t, utf8.ValidString(long))
}

type sampleRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Action      string          `json:"action" validate:"required,oneof=rename delete"`
	AvatarURL   *string         `json:"avatar_url" validate:"omitempty,url"`
	Preferences json.RawMessage `json:"preferences" validate:"omitempty,json"`
}

func TestStruct(t *testing.T) {
	bad := "not a url"

	tests := []struct {
		name   string
		req    sampleRequest
		errMsg string
	}{
		{name: "valid", req: sampleRequest{Email: "a@b.co", Action: "rename"}},
		{name: "missing email", req: sampleRequest{Action: "rename"}, errMsg: "email is required"},
		{name: "bad email", req: sampleRequest{Email: "x", Action: "rename"}, errMsg: "invalid email format"},
		{name: "bad action", req: sampleRequest{Email: "a@b.co", Action: "archive"}, errMsg: "action must be one of: rename, delete"},
		{name: "bad url", req: sampleRequest{Email: "a@b.co", Action: "delete", AvatarURL: &bad}, errMsg: "avatar_url must be a valid URL"},
		{name: "bad json", req: sampleRequest{Email: "a@b.co", Action: "delete", Preferences: json.RawMessage(`{`)}, errMsg: "preferences must be valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errMsg, err.Error())
		})
	}
}
