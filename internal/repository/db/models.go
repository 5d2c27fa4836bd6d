package db

import (
	"encoding/json"
	"strconv"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message types
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Profile is the account of one end user
type Profile struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name"`
	AvatarURL    *string         `json:"avatar_url,omitempty"`
	Preferences  json.RawMessage `json:"preferences,omitempty"`
	PasswordHash string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

// ProfileUpdate carries the mutable profile fields; nil fields are left untouched
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
	Preferences json.RawMessage
}

// Conversation groups messages of one owner
type Conversation struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Message is a single chat turn. For image messages Content holds the image URL.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	ImageID        *string    `json:"image_id,omitempty"`
	MessageOrder   int64      `json:"message_order"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// NewMessage is the insert payload for a message
type NewMessage struct {
	ConversationID string
	Role           string
	Content        string
	MessageType    string
	ImageID        *string
}

// Image is a generated picture owned by a profile
type Image struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	MessageID      *string    `json:"message_id,omitempty"`
	Prompt         string     `json:"prompt"`
	ImageURL       string     `json:"image_url"`
	Model          string     `json:"model"`
	Size           string     `json:"size"`
	Quality        string     `json:"quality"`
	GenerationTime int        `json:"generation_time_ms"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// NewImage is the insert payload for an image
type NewImage struct {
	OwnerID        string
	MessageID      *string
	Prompt         string
	ImageURL       string
	Model          string
	Size           string
	Quality        string
	GenerationTime int
}

// Cursor marks the oldest message of a loaded page. The next page holds
// messages strictly older than it.
type Cursor struct {
	Order     int64     `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// String encodes the cursor for the wire
func (c Cursor) String() string {
	return strconv.FormatInt(c.Order, 10)
}

// ParseCursor decodes a wire cursor. An empty string yields nil.
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	order, err := strconv.ParseInt(s, 10, 64)
	if err != nil || order < 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Order: order}, nil
}

// MessagePage is one page of history, newest message first
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *Cursor   `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
