package chat

import (
	"context"
	"strings"
	"time"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"
	"imagine-chat/internal/service/mutation"
	"imagine-chat/internal/service/pagination"
	"imagine-chat/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendResult is returned by SendMessage and GenerateImage. AIMessage is nil
// when no assistant reply was requested or none could be stored.
type SendResult struct {
	UserMessage db.Message  `json:"userMessage"`
	AIMessage   *db.Message `json:"aiMessage"`
	Image       *db.Image   `json:"image,omitempty"`
}

// ChatService handles sending messages, image generation and history reads
type ChatService struct {
	db           db.Database
	coordinator  *mutation.Coordinator
	pages        *pagination.Manager
	orchestrator *Orchestrator
	validator    *validation.ChatRequestValidator
	log          *logrus.Entry
}

// NewChatService creates a new ChatService
func NewChatService(database db.Database, coordinator *mutation.Coordinator, pages *pagination.Manager, orchestrator *Orchestrator) *ChatService {
	return &ChatService{
		db:           database,
		coordinator:  coordinator,
		pages:        pages,
		orchestrator: orchestrator,
		validator:    validation.NewChatRequestValidator(),
		log:          logger.Component("chat"),
	}
}

// Messages returns one page of a conversation's history, newest first
func (s *ChatService) Messages(ctx context.Context, ownerID, conversationID, cursor string, limit int) (db.MessagePage, error) {
	if err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return db.MessagePage{}, err
	}
	return s.pages.Page(ctx, ownerID, conversationID, cursor, limit)
}

// SendMessage stores a message and, for user messages, the assistant reply
func (s *ChatService) SendMessage(ctx context.Context, ownerID, conversationID, content, role string) (*SendResult, error) {
	if role == "" {
		role = db.RoleUser
	}

	msg, err := s.appendMessage(ctx, ownerID, conversationID, role, content, func() error {
		return s.validator.ValidateMessageRequest(content, role)
	})
	if err != nil {
		return nil, err
	}

	result := &SendResult{UserMessage: *msg}
	if role != db.RoleUser {
		s.invalidate(ownerID, conversationID, false)
		return result, nil
	}

	outcome, err := s.orchestrator.Respond(ctx, ownerID, *msg)
	s.applyOutcome(result, outcome, err)
	s.invalidate(ownerID, conversationID, result.Image != nil)
	return result, nil
}

// GenerateImage stores prompt as a user message and runs image generation
// for it without classification
func (s *ChatService) GenerateImage(ctx context.Context, ownerID, conversationID, prompt string) (*SendResult, error) {
	msg, err := s.appendMessage(ctx, ownerID, conversationID, db.RoleUser, prompt, func() error {
		return s.validator.ValidatePrompt(prompt)
	})
	if err != nil {
		return nil, err
	}

	result := &SendResult{UserMessage: *msg}
	outcome, err := s.orchestrator.RespondImage(ctx, ownerID, *msg, prompt)
	s.applyOutcome(result, outcome, err)
	s.invalidate(ownerID, conversationID, result.Image != nil)
	return result, nil
}

// appendMessage inserts one message through the coordinator, showing it in
// the cached newest page until the store confirms it
func (s *ChatService) appendMessage(ctx context.Context, ownerID, conversationID, role, content string, validate func() error) (*db.Message, error) {
	key := querykey.MessagePages(ownerID, conversationID)
	now := time.Now().UTC()
	optimistic := db.Message{
		ID:             "temp-" + uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		MessageType:    db.MessageTypeText,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return mutation.Run(ctx, s.coordinator, mutation.Mutation[*db.Message]{
		Kind:  "send_message",
		Locks: []string{conversationID},
		Validate: func(ctx context.Context) error {
			if err := validate(); err != nil {
				return mutation.Validation(err)
			}
			return s.authorize(ctx, ownerID, conversationID)
		},
		Keys: func(*cache.Store) []querykey.Key { return []querykey.Key{key} },
		Apply: func(store *cache.Store) {
			store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
				if !ok {
					return nil, false
				}
				pages := v.(cache.MessagePages)
				pages.Prepend(optimistic)
				return pages, true
			})
		},
		Remote: func(ctx context.Context) (*db.Message, error) {
			return s.db.CreateMessage(ctx, db.NewMessage{
				ConversationID: conversationID,
				Role:           role,
				Content:        strings.TrimSpace(content),
				MessageType:    db.MessageTypeText,
			})
		},
		Reconcile: func(store *cache.Store, msg *db.Message) {
			store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
				if !ok {
					return nil, false
				}
				pages := v.(cache.MessagePages)
				pages.ReplaceMessage(optimistic.ID, *msg)
				return pages, true
			})
		},
	})
}

func (s *ChatService) applyOutcome(result *SendResult, outcome *Outcome, err error) {
	if err != nil {
		s.log.WithError(err).WithField("message_id", result.UserMessage.ID).Error("No assistant message stored")
	}
	if outcome == nil {
		return
	}
	result.AIMessage = outcome.Message
	result.Image = outcome.Image
}

// invalidate refreshes everything an exchange can change. The conversation
// list moves because the conversation was touched.
func (s *ChatService) invalidate(ownerID, conversationID string, imageCreated bool) {
	store := s.coordinator.Store()
	store.Invalidate(querykey.MessagePages(ownerID, conversationID))
	store.Invalidate(querykey.ConversationList(ownerID))
	if imageCreated {
		store.Invalidate(querykey.Gallery(ownerID))
	}
}

// authorize fails with db.ErrNotFound unless the conversation is active and
// owned by ownerID
func (s *ChatService) authorize(ctx context.Context, ownerID, conversationID string) error {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.OwnerID != ownerID {
		return mutation.Unauthorized(db.ErrNotFound)
	}
	return nil
}
