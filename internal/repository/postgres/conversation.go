package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"imagine-chat/internal/logger"
	"imagine-chat/internal/repository/db"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const conversationColumns = `c.id, c.owner_id, c.title, c.message_count, c.created_at, c.updated_at, c.deleted_at`

// activeConversation restricts c to live conversations of live profiles
const activeConversation = `c.deleted_at IS NULL AND EXISTS (SELECT 1 FROM profiles p WHERE p.id = c.owner_id AND p.deleted_at IS NULL)`

func scanConversation(row scanner) (*db.Conversation, error) {
	var c db.Conversation
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation creates a new conversation for a profile
func (p *PostgresDB) CreateConversation(ctx context.Context, ownerID, title string) (*db.Conversation, error) {
	query := `
	INSERT INTO conversations AS c (id, owner_id, title)
	SELECT $1, $2, $3
	WHERE EXISTS (SELECT 1 FROM profiles p WHERE p.id = $2 AND p.deleted_at IS NULL)
	RETURNING ` + conversationColumns

	conv, err := scanConversation(p.conn.QueryRowContext(ctx, query, uuid.New().String(), ownerID, title))
	if err != nil {
		return nil, notFound(fmt.Errorf("error creating conversation: %w", err))
	}

	logger.Log.WithFields(logrus.Fields{"conversation_id": conv.ID, "owner_id": ownerID}).Info("Created new conversation")
	return conv, nil
}

// GetConversation retrieves an active conversation
func (p *PostgresDB) GetConversation(ctx context.Context, id string) (*db.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = $1 AND ` + activeConversation

	conv, err := scanConversation(p.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return conv, nil
}

// ListConversations returns one page of active conversations, most recently
// updated first, together with the total active count
func (p *PostgresDB) ListConversations(ctx context.Context, ownerID string, page, pageSize int) ([]db.Conversation, int, error) {
	var total int
	countQuery := `SELECT count(*) FROM conversations c WHERE c.owner_id = $1 AND ` + activeConversation
	if err := p.conn.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting conversations: %w", err)
	}

	query := `
	SELECT ` + conversationColumns + `
	FROM conversations c
	WHERE c.owner_id = $1 AND ` + activeConversation + `
	ORDER BY c.updated_at DESC, c.id
	LIMIT $2 OFFSET $3
	`

	rows, err := p.conn.QueryContext(ctx, query, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]db.Conversation, 0, pageSize)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, total, nil
}

// UpdateConversationTitle renames an active conversation
func (p *PostgresDB) UpdateConversationTitle(ctx context.Context, id, title string) (*db.Conversation, error) {
	query := `
	UPDATE conversations AS c
	SET title = $2, updated_at = CURRENT_TIMESTAMP
	WHERE c.id = $1 AND ` + activeConversation + `
	RETURNING ` + conversationColumns

	conv, err := scanConversation(p.conn.QueryRowContext(ctx, query, id, title))
	if err != nil {
		return nil, notFound(err)
	}

	logger.Log.WithField("conversation_id", id).Debug("Renamed conversation")
	return conv, nil
}

// TouchConversation bumps updated_at so the conversation sorts first
func (p *PostgresDB) TouchConversation(ctx context.Context, id string) error {
	query := `UPDATE conversations AS c SET updated_at = CURRENT_TIMESTAMP WHERE c.id = $1 AND ` + activeConversation

	res, err := p.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("error updating conversation timestamp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// SoftDeleteConversation marks one conversation deleted. Its messages are left
// to the cascade; reads already hide them through the parent join.
func (p *PostgresDB) SoftDeleteConversation(ctx context.Context, id string, at time.Time) (*db.Conversation, error) {
	query := `
	UPDATE conversations AS c
	SET deleted_at = $2, updated_at = $2
	WHERE c.id = $1 AND c.deleted_at IS NULL
	RETURNING ` + conversationColumns

	conv, err := scanConversation(p.conn.QueryRowContext(ctx, query, id, at))
	if err != nil {
		return nil, notFound(err)
	}

	logger.Log.WithField("conversation_id", id).Info("Soft-deleted conversation")
	return conv, nil
}

// SoftDeleteConversationsByOwner marks every active conversation of an owner
// deleted and returns their ids
func (p *PostgresDB) SoftDeleteConversationsByOwner(ctx context.Context, ownerID string, at time.Time) ([]string, error) {
	query := `
	UPDATE conversations
	SET deleted_at = $2, updated_at = $2
	WHERE owner_id = $1 AND deleted_at IS NULL
	RETURNING id
	`

	ids, err := p.queryIDs(ctx, query, ownerID, at)
	if err != nil {
		return nil, fmt.Errorf("error deleting conversations: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"owner_id": ownerID, "count": len(ids)}).Info("Soft-deleted conversations of owner")
	return ids, nil
}

// ListOrphanedConversations returns deleted conversations that still hold active messages
func (p *PostgresDB) ListOrphanedConversations(ctx context.Context, limit int) ([]string, error) {
	query := `
	SELECT c.id
	FROM conversations c
	WHERE c.deleted_at IS NOT NULL
	  AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.deleted_at IS NULL)
	ORDER BY c.deleted_at
	LIMIT $1
	`

	ids, err := p.queryIDs(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing orphaned conversations: %w", err)
	}
	return ids, nil
}

// lockActiveConversation locks the conversation row for the rest of tx
func lockActiveConversation(ctx context.Context, tx *sql.Tx, id string) error {
	query := `SELECT c.id FROM conversations c WHERE c.id = $1 AND ` + activeConversation + ` FOR UPDATE`

	var locked string
	if err := tx.QueryRowContext(ctx, query, id).Scan(&locked); err != nil {
		return notFound(err)
	}
	return nil
}
