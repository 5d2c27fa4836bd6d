package conversation

import (
	"context"
	"fmt"
	"time"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/config"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"
	"imagine-chat/internal/service/mutation"
	"imagine-chat/internal/service/softdelete"
	"imagine-chat/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Update actions
const (
	ActionRename = "rename"
	ActionDelete = "delete"
)

// ListResult is one page of an owner's conversations
type ListResult struct {
	Data     []db.Conversation `json:"data"`
	Count    int               `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ConversationService handles the business logic for conversation management
type ConversationService struct {
	db          db.Database
	coordinator *mutation.Coordinator
	policy      *softdelete.Policy
	cfg         config.SyncConfig
	log         *logrus.Entry
}

// NewConversationService creates a new ConversationService
func NewConversationService(database db.Database, coordinator *mutation.Coordinator, policy *softdelete.Policy, cfg config.SyncConfig) *ConversationService {
	return &ConversationService{
		db:          database,
		coordinator: coordinator,
		policy:      policy,
		cfg:         cfg,
		log:         logger.Component("conversation"),
	}
}

func (s *ConversationService) store() *cache.Store {
	return s.coordinator.Store()
}

// PageSize clamps a requested page size
func (s *ConversationService) PageSize(pageSize int) int {
	if pageSize <= 0 {
		return s.cfg.ConversationPageSize
	}
	if pageSize > s.cfg.MaxConversationPageSize {
		return s.cfg.MaxConversationPageSize
	}
	return pageSize
}

// List returns one page of the owner's conversations, most recently updated first
func (s *ConversationService) List(ctx context.Context, ownerID string, page, pageSize int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	pageSize = s.PageSize(pageSize)

	v, err := s.store().Fetch(ctx, querykey.ConversationListPage(ownerID, page, pageSize), func(ctx context.Context) (cache.Value, error) {
		conversations, count, err := s.db.ListConversations(ctx, ownerID, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve conversations: %w", err)
		}
		return cache.ConversationList{Conversations: conversations, Count: count, Page: page, PageSize: pageSize}, nil
	})
	if err != nil && v == nil {
		return nil, err
	}

	list := v.(cache.ConversationList)
	data := list.Conversations
	if data == nil {
		data = []db.Conversation{}
	}
	return &ListResult{Data: data, Count: list.Count, Page: list.Page, PageSize: list.PageSize}, nil
}

// Get returns one conversation of the owner
func (s *ConversationService) Get(ctx context.Context, ownerID, id string) (*db.Conversation, error) {
	v, err := s.store().Fetch(ctx, querykey.ConversationDetail(ownerID, id), func(ctx context.Context) (cache.Value, error) {
		conv, err := s.owned(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		return cache.ConversationDetail{Conversation: *conv}, nil
	})
	if err != nil && v == nil {
		return nil, err
	}

	conv := v.(cache.ConversationDetail).Conversation
	return &conv, nil
}

// Create starts a conversation. It shows up at the top of cached first pages
// under a temporary id until the store assigns the real one.
func (s *ConversationService) Create(ctx context.Context, ownerID, title string) (*db.Conversation, error) {
	title = validation.NormalizeTitle(title)
	now := time.Now().UTC()
	optimistic := db.Conversation{
		ID:        "temp-" + uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var firstPages []querykey.Key
	tempDetail := querykey.ConversationDetail(ownerID, optimistic.ID)

	return mutation.Run(ctx, s.coordinator, mutation.Mutation[*db.Conversation]{
		Kind:  "create_conversation",
		Locks: []string{ownerID},
		Keys: func(store *cache.Store) []querykey.Key {
			firstPages = s.firstPages(store, ownerID)
			return append(firstPages[:len(firstPages):len(firstPages)], tempDetail)
		},
		Apply: func(store *cache.Store) {
			for _, key := range firstPages {
				store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
					if !ok {
						return nil, false
					}
					list := v.(cache.ConversationList)
					list.Conversations = append([]db.Conversation{optimistic}, list.Conversations...)
					if list.PageSize > 0 && len(list.Conversations) > list.PageSize {
						list.Conversations = list.Conversations[:list.PageSize]
					}
					list.Count++
					return list, true
				})
			}
			store.Set(tempDetail, cache.ConversationDetail{Conversation: optimistic})
		},
		Remote: func(ctx context.Context) (*db.Conversation, error) {
			return s.db.CreateConversation(ctx, ownerID, title)
		},
		Reconcile: func(store *cache.Store, conv *db.Conversation) {
			for _, key := range firstPages {
				s.replaceRow(store, key, optimistic.ID, *conv)
			}
			store.Remove(tempDetail)
			store.Set(querykey.ConversationDetail(ownerID, conv.ID), cache.ConversationDetail{Conversation: *conv})
		},
		Invalidate: func(*db.Conversation) []querykey.Key {
			return []querykey.Key{querykey.ConversationList(ownerID)}
		},
	})
}

// Rename changes a conversation's title
func (s *ConversationService) Rename(ctx context.Context, ownerID, id, title string) (*db.Conversation, error) {
	title = validation.NormalizeTitle(title)
	var pages []querykey.Key
	detail := querykey.ConversationDetail(ownerID, id)

	return mutation.Run(ctx, s.coordinator, mutation.Mutation[*db.Conversation]{
		Kind:  "rename_conversation",
		Locks: []string{id},
		Validate: func(ctx context.Context) error {
			_, err := s.owned(ctx, ownerID, id)
			return err
		},
		Keys: func(store *cache.Store) []querykey.Key {
			pages = store.Keys(querykey.ConversationListPages(ownerID))
			return append(pages[:len(pages):len(pages)], detail)
		},
		Apply: func(store *cache.Store) {
			rename := func(c db.Conversation) db.Conversation {
				c.Title = title
				return c
			}
			for _, key := range pages {
				store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
					if !ok {
						return nil, false
					}
					list := v.(cache.ConversationList)
					for i := range list.Conversations {
						if list.Conversations[i].ID == id {
							list.Conversations[i] = rename(list.Conversations[i])
						}
					}
					return list, true
				})
			}
			store.Update(detail, func(v cache.Value, ok bool) (cache.Value, bool) {
				if !ok {
					return nil, false
				}
				return cache.ConversationDetail{Conversation: rename(v.(cache.ConversationDetail).Conversation)}, true
			})
		},
		Remote: func(ctx context.Context) (*db.Conversation, error) {
			return s.db.UpdateConversationTitle(ctx, id, title)
		},
		Reconcile: func(store *cache.Store, conv *db.Conversation) {
			for _, key := range pages {
				s.replaceRow(store, key, id, *conv)
			}
			store.Set(detail, cache.ConversationDetail{Conversation: *conv})
		},
		Invalidate: func(*db.Conversation) []querykey.Key {
			return []querykey.Key{querykey.ConversationList(ownerID)}
		},
	})
}

// Delete soft-deletes a conversation and its messages. The conversation
// disappears from every cached view at once and reappears if the store
// rejects the delete.
func (s *ConversationService) Delete(ctx context.Context, ownerID, id string) (*db.Conversation, error) {
	var pages []querykey.Key
	detail := querykey.ConversationDetail(ownerID, id)
	messages := querykey.MessagePages(ownerID, id)

	return mutation.Run(ctx, s.coordinator, mutation.Mutation[*db.Conversation]{
		Kind:  "delete_conversation",
		Locks: []string{id},
		Validate: func(ctx context.Context) error {
			_, err := s.owned(ctx, ownerID, id)
			return err
		},
		Keys: func(store *cache.Store) []querykey.Key {
			pages = store.Keys(querykey.ConversationListPages(ownerID))
			return append(pages[:len(pages):len(pages)], detail, messages)
		},
		Apply: func(store *cache.Store) {
			for _, key := range pages {
				store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
					if !ok {
						return nil, false
					}
					list := v.(cache.ConversationList)
					list.Drop(id)
					return list, true
				})
			}
			store.Remove(detail)
			store.Remove(messages)
		},
		Remote: func(ctx context.Context) (*db.Conversation, error) {
			conv, report, err := s.policy.DeleteConversation(ctx, id)
			if err != nil {
				return nil, err
			}
			s.log.WithFields(logrus.Fields{
				"conversation_id": id,
				"messages":        report.Messages,
				"failed_steps":    report.FailedSteps,
			}).Info("Conversation deleted")
			return conv, nil
		},
		Invalidate: func(*db.Conversation) []querykey.Key {
			return []querykey.Key{querykey.ConversationList(ownerID)}
		},
	})
}

// Update applies a rename or delete action
func (s *ConversationService) Update(ctx context.Context, ownerID, id, action, title string) (*db.Conversation, error) {
	switch action {
	case ActionRename:
		return s.Rename(ctx, ownerID, id, title)
	case ActionDelete:
		return s.Delete(ctx, ownerID, id)
	default:
		return nil, mutation.Validation(fmt.Errorf("unknown action %q", action))
	}
}

// owned fails with db.ErrNotFound unless the conversation is active and owned by ownerID
func (s *ConversationService) owned(ctx context.Context, ownerID, id string) (*db.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, mutation.Unauthorized(db.ErrNotFound)
	}
	return conv, nil
}

// firstPages returns the cached first pages of the owner's list, one per page size
func (s *ConversationService) firstPages(store *cache.Store, ownerID string) []querykey.Key {
	var keys []querykey.Key
	for _, key := range store.Keys(querykey.ConversationListPages(ownerID)) {
		if page, _, ok := querykey.PageOf(key); ok && page == 1 {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *ConversationService) replaceRow(store *cache.Store, key querykey.Key, id string, conv db.Conversation) {
	store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
		if !ok {
			return nil, false
		}
		list := v.(cache.ConversationList)
		list.Replace(id, conv)
		return list, true
	})
}
