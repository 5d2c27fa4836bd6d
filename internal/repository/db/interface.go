package db

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for rows that are missing, soft-deleted, or hidden
	// behind a soft-deleted parent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated
	ErrConflict = errors.New("already exists")
	// ErrInvalidCursor is returned for malformed pagination cursors
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Database is the Entity Store contract. Every read filters soft-deleted rows,
// including rows whose parent is soft-deleted.
type Database interface {
	// Profiles
	CreateProfile(ctx context.Context, email, displayName, passwordHash string) (*Profile, error)
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Profile, error)
	SoftDeleteProfile(ctx context.Context, id string, at time.Time) error
	// ListOrphanedProfiles returns deleted profiles that still own active conversations or images
	ListOrphanedProfiles(ctx context.Context, limit int) ([]string, error)

	// Conversations
	CreateConversation(ctx context.Context, ownerID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string, page, pageSize int) ([]Conversation, int, error)
	UpdateConversationTitle(ctx context.Context, id, title string) (*Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	SoftDeleteConversation(ctx context.Context, id string, at time.Time) (*Conversation, error)
	SoftDeleteConversationsByOwner(ctx context.Context, ownerID string, at time.Time) ([]string, error)
	// ListOrphanedConversations returns deleted conversations that still hold active messages
	ListOrphanedConversations(ctx context.Context, limit int) ([]string, error)

	// Messages
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, before *int64, limit int) ([]Message, error)
	ListAllMessages(ctx context.Context, conversationID string) ([]Message, error)
	SoftDeleteMessagesByConversation(ctx context.Context, conversationID string, at time.Time) (int64, error)

	// Images
	CreateImage(ctx context.Context, img NewImage) (*Image, error)
	ListImages(ctx context.Context, ownerID string, limit int) ([]Image, error)
	SoftDeleteImagesByOwner(ctx context.Context, ownerID string, at time.Time) (int64, error)
}
