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

const messageColumns = `m.id, m.conversation_id, m.role, m.content, m.message_type, m.image_id, m.message_order, m.created_at, m.updated_at, m.deleted_at`

// activeMessage restricts m to live messages under a live conversation
const activeMessage = `m.deleted_at IS NULL AND EXISTS (
	SELECT 1 FROM conversations c
	WHERE c.id = m.conversation_id AND ` + activeConversation + `)`

func scanMessage(row scanner) (*db.Message, error) {
	var m db.Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.MessageType, &m.ImageID, &m.MessageOrder, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage appends a message to an active conversation. The conversation
// row is locked so message_order is strictly increasing per conversation.
func (p *PostgresDB) CreateMessage(ctx context.Context, msg db.NewMessage) (*db.Message, error) {
	var created *db.Message

	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockActiveConversation(ctx, tx, msg.ConversationID); err != nil {
			return err
		}

		query := `
		INSERT INTO messages AS m (id, conversation_id, role, content, message_type, image_id, message_order)
		VALUES ($1, $2, $3, $4, $5, $6,
			COALESCE((SELECT MAX(message_order) FROM messages WHERE conversation_id = $2), 0) + 1)
		RETURNING ` + messageColumns

		m, err := scanMessage(tx.QueryRowContext(ctx, query, uuid.New().String(), msg.ConversationID, msg.Role, msg.Content, msg.MessageType, msg.ImageID))
		if err != nil {
			return fmt.Errorf("error adding message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET message_count = message_count + 1 WHERE id = $1`, msg.ConversationID); err != nil {
			return fmt.Errorf("error updating message count: %w", err)
		}

		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": msg.ConversationID,
		"message_id":      created.ID,
		"role":            created.Role,
		"type":            created.MessageType,
		"order":           created.MessageOrder,
	}).Debug("Added message to conversation")

	return created, nil
}

// ListMessages returns up to limit active messages older than before, newest first
func (p *PostgresDB) ListMessages(ctx context.Context, conversationID string, before *int64, limit int) ([]db.Message, error) {
	query := `
	SELECT ` + messageColumns + `
	FROM messages m
	WHERE m.conversation_id = $1 AND ` + activeMessage + `
	  AND ($2::bigint IS NULL OR m.message_order < $2)
	ORDER BY m.message_order DESC
	LIMIT $3
	`

	return p.queryMessages(ctx, query, conversationID, before, limit)
}

// ListAllMessages returns every active message of a conversation, oldest first
func (p *PostgresDB) ListAllMessages(ctx context.Context, conversationID string) ([]db.Message, error) {
	query := `
	SELECT ` + messageColumns + `
	FROM messages m
	WHERE m.conversation_id = $1 AND ` + activeMessage + `
	ORDER BY m.message_order ASC
	`

	return p.queryMessages(ctx, query, conversationID)
}

// SoftDeleteMessagesByConversation marks every active message of a
// conversation deleted, whatever the conversation's own state
func (p *PostgresDB) SoftDeleteMessagesByConversation(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	query := `UPDATE messages SET deleted_at = $2, updated_at = $2 WHERE conversation_id = $1 AND deleted_at IS NULL`

	res, err := p.conn.ExecContext(ctx, query, conversationID, at)
	if err != nil {
		return 0, fmt.Errorf("error deleting messages: %w", err)
	}
	n, _ := res.RowsAffected()

	logger.Log.WithFields(logrus.Fields{"conversation_id": conversationID, "count": n}).Debug("Soft-deleted messages of conversation")
	return n, nil
}

func (p *PostgresDB) queryMessages(ctx context.Context, query string, args ...any) ([]db.Message, error) {
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []db.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
