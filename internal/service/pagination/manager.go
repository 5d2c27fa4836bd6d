// Package pagination serves message history newest first in fixed-size pages
// addressed by an opaque cursor.
package pagination

import (
	"context"
	"errors"
	"fmt"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/config"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// Manager loads message pages from the Entity Store and keeps the loaded
// history of each conversation under querykey.MessagePages.
type Manager struct {
	db          db.Database
	store       *cache.Store
	defaultSize int
	maxSize     int
	log         *logrus.Entry
}

// NewManager creates a Manager
func NewManager(database db.Database, store *cache.Store, cfg config.SyncConfig) *Manager {
	return &Manager{
		db:          database,
		store:       store,
		defaultSize: cfg.MessagePageSize,
		maxSize:     cfg.MaxMessagePageSize,
		log:         logger.Component("pagination"),
	}
}

// PageSize clamps a requested size to 1..max, substituting the default for
// non-positive values
func (m *Manager) PageSize(limit int) int {
	if limit <= 0 {
		return m.defaultSize
	}
	if limit > m.maxSize {
		return m.maxSize
	}
	return limit
}

// FetchPage reads one page strictly older than cursor. A nil cursor reads the
// newest page. One row beyond the page is requested to learn whether more
// exist; the cursor of a page is its oldest returned message.
func (m *Manager) FetchPage(ctx context.Context, conversationID string, cursor *db.Cursor, limit int) (db.MessagePage, error) {
	limit = m.PageSize(limit)

	var before *int64
	if cursor != nil {
		order := cursor.Order
		before = &order
	}

	rows, err := m.db.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return db.MessagePage{}, fmt.Errorf("failed to load messages: %w", err)
	}

	page := db.MessagePage{Messages: rows}
	if len(rows) > limit {
		page.Messages = rows[:limit]
		page.HasMore = true
		oldest := page.Messages[limit-1]
		page.NextCursor = &db.Cursor{Order: oldest.MessageOrder, CreatedAt: oldest.CreatedAt}
	}
	return page, nil
}

func (m *Manager) firstPageFetcher(conversationID string) cache.FetchFunc {
	return func(ctx context.Context) (cache.Value, error) {
		page, err := m.FetchPage(ctx, conversationID, nil, m.defaultSize)
		if err != nil {
			return nil, err
		}
		return cache.MessagePages{Pages: []db.MessagePage{page}}, nil
	}
}

// Observe keeps the cached history of a conversation current; invalidations
// reload its newest page in the background
func (m *Manager) Observe(ownerID, conversationID string, l cache.Listener) func() {
	return m.store.Observe(querykey.MessagePages(ownerID, conversationID), m.firstPageFetcher(conversationID), l)
}

// LoadFirst replaces the cached history with the newest page
func (m *Manager) LoadFirst(ctx context.Context, ownerID, conversationID string) (cache.MessagePages, error) {
	v, err := m.store.Refresh(ctx, querykey.MessagePages(ownerID, conversationID), m.firstPageFetcher(conversationID))
	if err != nil && v == nil {
		return cache.MessagePages{}, err
	}
	return v.(cache.MessagePages), nil
}

// Loaded returns the cached history, loading the newest page if absent or stale
func (m *Manager) Loaded(ctx context.Context, ownerID, conversationID string) (cache.MessagePages, error) {
	v, err := m.store.Fetch(ctx, querykey.MessagePages(ownerID, conversationID), m.firstPageFetcher(conversationID))
	if err != nil && v == nil {
		return cache.MessagePages{}, err
	}
	return v.(cache.MessagePages), nil
}

// errMoved reports that the cached history changed while a page was loading
var errMoved = errors.New("message history changed while loading")

// LoadMore appends the page after the oldest loaded page. It is a no-op once
// the last page has no more messages. On failure the loaded pages stay intact,
// the error is recorded on the cached value and a later call retries.
func (m *Manager) LoadMore(ctx context.Context, ownerID, conversationID string) (cache.MessagePages, error) {
	key := querykey.MessagePages(ownerID, conversationID)

	current, err := m.Loaded(ctx, ownerID, conversationID)
	if err != nil {
		return cache.MessagePages{}, err
	}
	last, ok := current.Last()
	if !ok || !last.HasMore || last.NextCursor == nil {
		return current, nil
	}
	cursor := *last.NextCursor

	page, err := m.FetchPage(ctx, conversationID, &cursor, m.defaultSize)
	if err != nil {
		m.store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
			if !ok {
				return nil, false
			}
			pages := v.(cache.MessagePages)
			pages.LoadMoreErr = err.Error()
			return pages, true
		})
		m.log.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to load more messages")
		current.LoadMoreErr = err.Error()
		return current, err
	}

	var result cache.MessagePages
	moved := false
	m.store.Update(key, func(v cache.Value, ok bool) (cache.Value, bool) {
		if !ok {
			moved = true
			return nil, false
		}
		pages := v.(cache.MessagePages)
		tail, _ := pages.Last()
		if tail.NextCursor == nil || tail.NextCursor.Order != cursor.Order {
			moved = true
			result = pages
			return pages, true
		}
		pages.Pages = append(pages.Pages, page)
		pages.LoadMoreErr = ""
		result = pages
		return pages, true
	})
	if moved {
		return result, errMoved
	}
	return result, nil
}

// Page serves one page to a client. The newest page and pages that continue
// the cached history go through the cache; other cursors read the store
// directly.
func (m *Manager) Page(ctx context.Context, ownerID, conversationID, rawCursor string, limit int) (db.MessagePage, error) {
	cursor, err := db.ParseCursor(rawCursor)
	if err != nil {
		return db.MessagePage{}, err
	}
	limit = m.PageSize(limit)

	if limit != m.defaultSize {
		return m.FetchPage(ctx, conversationID, cursor, limit)
	}

	if cursor == nil {
		pages, err := m.Loaded(ctx, ownerID, conversationID)
		if err != nil {
			return db.MessagePage{}, err
		}
		if len(pages.Pages) == 0 {
			return db.MessagePage{Messages: []db.Message{}}, nil
		}
		return pages.Pages[0], nil
	}

	if v, ok := m.store.Get(querykey.MessagePages(ownerID, conversationID)); ok {
		pages := v.(cache.MessagePages)
		for i, p := range pages.Pages {
			if p.NextCursor != nil && p.NextCursor.Order == cursor.Order && i+1 < len(pages.Pages) {
				return pages.Pages[i+1], nil
			}
		}
		if last, ok := pages.Last(); ok && last.NextCursor != nil && last.NextCursor.Order == cursor.Order {
			more, err := m.LoadMore(ctx, ownerID, conversationID)
			switch {
			case err == nil:
				next, _ := more.Last()
				return next, nil
			case !errors.Is(err, errMoved):
				return db.MessagePage{}, err
			}
		}
	}
	return m.FetchPage(ctx, conversationID, cursor, limit)
}

// Flatten returns every loaded message newest first, without duplicates
func Flatten(pages cache.MessagePages) []db.Message {
	seen := make(map[string]bool)
	out := make([]db.Message, 0)
	for _, p := range pages.Pages {
		for _, msg := range p.Messages {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			out = append(out, msg)
		}
	}
	return out
}

// Chronological returns every loaded message oldest first
func Chronological(pages cache.MessagePages) []db.Message {
	out := Flatten(pages)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
