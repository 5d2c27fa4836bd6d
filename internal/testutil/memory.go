package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"imagine-chat/internal/repository/db"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory db.Database with the same visibility rules as
// the PostgreSQL store. Any method can be made to fail with FailOn.
type MemoryStore struct {
	mu            sync.Mutex
	profiles      map[string]*db.Profile
	conversations map[string]*db.Conversation
	messages      map[string]*db.Message
	images        map[string]*db.Image
	orders        map[string]int64

	clock    time.Time
	failures map[string]error
	calls    map[string]int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]*db.Profile),
		conversations: make(map[string]*db.Conversation),
		messages:      make(map[string]*db.Message),
		images:        make(map[string]*db.Image),
		orders:        make(map[string]int64),
		clock:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
	}
}

// FailOn makes every later call of method return err. A nil err clears it.
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Calls returns how many times method was called
func (s *MemoryStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// RawMessages returns every message of a conversation including deleted ones, oldest first
func (s *MemoryStore) RawMessages(conversationID string) []db.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []db.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageOrder < out[j].MessageOrder })
	return out
}

// RawImages returns every image of an owner including deleted ones
func (s *MemoryStore) RawImages(ownerID string) []db.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []db.Image
	for _, img := range s.images {
		if img.OwnerID == ownerID {
			out = append(out, *img)
		}
	}
	return out
}

// RawConversation returns a conversation whatever its state
func (s *MemoryStore) RawConversation(id string) (db.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return db.Conversation{}, false
	}
	return *c, true
}

// enter records the call and returns the injected failure, if any. Callers hold s.mu.
func (s *MemoryStore) enter(method string) error {
	s.calls[method]++
	return s.failures[method]
}

// now advances a deterministic clock so updated_at orderings are strict
func (s *MemoryStore) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *MemoryStore) activeProfile(id string) (*db.Profile, bool) {
	p, ok := s.profiles[id]
	return p, ok && p.DeletedAt == nil
}

func (s *MemoryStore) activeConversation(id string) (*db.Conversation, bool) {
	c, ok := s.conversations[id]
	if !ok || c.DeletedAt != nil {
		return nil, false
	}
	if _, ok := s.activeProfile(c.OwnerID); !ok {
		return nil, false
	}
	return c, true
}

func (s *MemoryStore) activeMessages(conversationID string) []db.Message {
	if _, ok := s.activeConversation(conversationID); !ok {
		return []db.Message{}
	}
	out := []db.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.DeletedAt == nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageOrder < out[j].MessageOrder })
	return out
}

// Profiles

func (s *MemoryStore) CreateProfile(_ context.Context, email, displayName, passwordHash string) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateProfile"); err != nil {
		return nil, err
	}

	for _, p := range s.profiles {
		if p.DeletedAt == nil && strings.EqualFold(p.Email, email) {
			return nil, db.ErrConflict
		}
	}

	now := s.now()
	p := &db.Profile{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.profiles[p.ID] = p
	out := *p
	return &out, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetProfile"); err != nil {
		return nil, err
	}

	p, ok := s.activeProfile(id)
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) GetProfileByEmail(_ context.Context, email string) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetProfileByEmail"); err != nil {
		return nil, err
	}

	for _, p := range s.profiles {
		if p.DeletedAt == nil && strings.EqualFold(p.Email, email) {
			out := *p
			return &out, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id string, update db.ProfileUpdate) (*db.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateProfile"); err != nil {
		return nil, err
	}

	p, ok := s.activeProfile(id)
	if !ok {
		return nil, db.ErrNotFound
	}
	if update.DisplayName != nil {
		p.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		url := *update.AvatarURL
		p.AvatarURL = &url
	}
	if update.Preferences != nil {
		p.Preferences = append([]byte(nil), update.Preferences...)
	}
	p.UpdatedAt = s.now()
	out := *p
	return &out, nil
}

func (s *MemoryStore) SoftDeleteProfile(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SoftDeleteProfile"); err != nil {
		return err
	}

	p, ok := s.activeProfile(id)
	if !ok {
		return db.ErrNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	return nil
}

func (s *MemoryStore) ListOrphanedProfiles(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListOrphanedProfiles"); err != nil {
		return nil, err
	}

	orphaned := map[string]bool{}
	for _, c := range s.conversations {
		if c.DeletedAt == nil {
			if p, ok := s.profiles[c.OwnerID]; ok && p.DeletedAt != nil {
				orphaned[p.ID] = true
			}
		}
	}
	for _, img := range s.images {
		if img.DeletedAt == nil {
			if p, ok := s.profiles[img.OwnerID]; ok && p.DeletedAt != nil {
				orphaned[p.ID] = true
			}
		}
	}
	return limitIDs(orphaned, limit), nil
}

// Conversations

func (s *MemoryStore) CreateConversation(_ context.Context, ownerID, title string) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateConversation"); err != nil {
		return nil, err
	}

	if _, ok := s.activeProfile(ownerID); !ok {
		return nil, db.ErrNotFound
	}
	now := s.now()
	c := &db.Conversation{ID: uuid.New().String(), OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	out := *c
	return &out, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetConversation"); err != nil {
		return nil, err
	}

	c, ok := s.activeConversation(id)
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, ownerID string, page, pageSize int) ([]db.Conversation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListConversations"); err != nil {
		return nil, 0, err
	}

	all := []db.Conversation{}
	for id, c := range s.conversations {
		if c.OwnerID != ownerID {
			continue
		}
		if _, ok := s.activeConversation(id); ok {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return append([]db.Conversation{}, all[start:end]...), len(all), nil
}

func (s *MemoryStore) UpdateConversationTitle(_ context.Context, id, title string) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateConversationTitle"); err != nil {
		return nil, err
	}

	c, ok := s.activeConversation(id)
	if !ok {
		return nil, db.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = s.now()
	out := *c
	return &out, nil
}

func (s *MemoryStore) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("TouchConversation"); err != nil {
		return err
	}

	c, ok := s.activeConversation(id)
	if !ok {
		return db.ErrNotFound
	}
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SoftDeleteConversation(_ context.Context, id string, at time.Time) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SoftDeleteConversation"); err != nil {
		return nil, err
	}

	c, ok := s.conversations[id]
	if !ok || c.DeletedAt != nil {
		return nil, db.ErrNotFound
	}
	c.DeletedAt = &at
	c.UpdatedAt = at
	out := *c
	return &out, nil
}

func (s *MemoryStore) SoftDeleteConversationsByOwner(_ context.Context, ownerID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SoftDeleteConversationsByOwner"); err != nil {
		return nil, err
	}

	ids := []string{}
	for _, c := range s.conversations {
		if c.OwnerID == ownerID && c.DeletedAt == nil {
			deletedAt := at
			c.DeletedAt = &deletedAt
			c.UpdatedAt = at
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListOrphanedConversations(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListOrphanedConversations"); err != nil {
		return nil, err
	}

	orphaned := map[string]bool{}
	for _, m := range s.messages {
		if m.DeletedAt != nil {
			continue
		}
		if c, ok := s.conversations[m.ConversationID]; ok && c.DeletedAt != nil {
			orphaned[c.ID] = true
		}
	}
	return limitIDs(orphaned, limit), nil
}

// Messages

func (s *MemoryStore) CreateMessage(_ context.Context, msg db.NewMessage) (*db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateMessage"); err != nil {
		return nil, err
	}

	c, ok := s.activeConversation(msg.ConversationID)
	if !ok {
		return nil, db.ErrNotFound
	}

	s.orders[msg.ConversationID]++
	now := s.now()
	m := &db.Message{
		ID:             uuid.New().String(),
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		ImageID:        msg.ImageID,
		MessageOrder:   s.orders[msg.ConversationID],
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.messages[m.ID] = m
	c.MessageCount++
	out := *m
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, before *int64, limit int) ([]db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListMessages"); err != nil {
		return nil, err
	}

	all := s.activeMessages(conversationID)
	out := []db.Message{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && all[i].MessageOrder >= *before {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) ListAllMessages(_ context.Context, conversationID string) ([]db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListAllMessages"); err != nil {
		return nil, err
	}
	return s.activeMessages(conversationID), nil
}

func (s *MemoryStore) SoftDeleteMessagesByConversation(_ context.Context, conversationID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SoftDeleteMessagesByConversation"); err != nil {
		return 0, err
	}

	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.DeletedAt == nil {
			deletedAt := at
			m.DeletedAt = &deletedAt
			m.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// Images

func (s *MemoryStore) CreateImage(_ context.Context, img db.NewImage) (*db.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateImage"); err != nil {
		return nil, err
	}

	if _, ok := s.activeProfile(img.OwnerID); !ok {
		return nil, db.ErrNotFound
	}
	now := s.now()
	out := &db.Image{
		ID:             uuid.New().String(),
		OwnerID:        img.OwnerID,
		MessageID:      img.MessageID,
		Prompt:         img.Prompt,
		ImageURL:       img.ImageURL,
		Model:          img.Model,
		Size:           img.Size,
		Quality:        img.Quality,
		GenerationTime: img.GenerationTime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.images[out.ID] = out
	cp := *out
	return &cp, nil
}

func (s *MemoryStore) ListImages(_ context.Context, ownerID string, limit int) ([]db.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListImages"); err != nil {
		return nil, err
	}

	out := []db.Image{}
	for _, img := range s.images {
		if img.OwnerID == ownerID && img.DeletedAt == nil {
			out = append(out, *img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SoftDeleteImagesByOwner(_ context.Context, ownerID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SoftDeleteImagesByOwner"); err != nil {
		return 0, err
	}

	var n int64
	for _, img := range s.images {
		if img.OwnerID == ownerID && img.DeletedAt == nil {
			deletedAt := at
			img.DeletedAt = &deletedAt
			img.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func limitIDs(set map[string]bool, limit int) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

var _ db.Database = (*MemoryStore)(nil)
