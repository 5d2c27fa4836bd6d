package postgres

import (
	"context"
	"fmt"
	"time"

	"imagine-chat/internal/logger"
	"imagine-chat/internal/repository/db"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const imageColumns = `i.id, i.owner_id, i.message_id, i.prompt, i.image_url, i.model, i.size, i.quality, i.generation_time_ms, i.created_at, i.updated_at, i.deleted_at`

func scanImage(row scanner) (*db.Image, error) {
	var i db.Image
	if err := row.Scan(&i.ID, &i.OwnerID, &i.MessageID, &i.Prompt, &i.ImageURL, &i.Model, &i.Size, &i.Quality, &i.GenerationTime, &i.CreatedAt, &i.UpdatedAt, &i.DeletedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateImage records a generated image for an active profile
func (p *PostgresDB) CreateImage(ctx context.Context, img db.NewImage) (*db.Image, error) {
	query := `
	INSERT INTO images AS i (id, owner_id, message_id, prompt, image_url, model, size, quality, generation_time_ms)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
	WHERE EXISTS (SELECT 1 FROM profiles p WHERE p.id = $2 AND p.deleted_at IS NULL)
	RETURNING ` + imageColumns

	image, err := scanImage(p.conn.QueryRowContext(ctx, query,
		uuid.New().String(), img.OwnerID, img.MessageID, img.Prompt, img.ImageURL, img.Model, img.Size, img.Quality, img.GenerationTime))
	if err != nil {
		return nil, notFound(fmt.Errorf("error creating image: %w", err))
	}

	logger.Log.WithFields(logrus.Fields{"image_id": image.ID, "owner_id": img.OwnerID, "model": img.Model}).Info("Stored generated image")
	return image, nil
}

// ListImages returns the owner's active images, newest first
func (p *PostgresDB) ListImages(ctx context.Context, ownerID string, limit int) ([]db.Image, error) {
	query := `
	SELECT ` + imageColumns + `
	FROM images i
	JOIN profiles p ON p.id = i.owner_id AND p.deleted_at IS NULL
	WHERE i.owner_id = $1 AND i.deleted_at IS NULL
	ORDER BY i.created_at DESC, i.id
	LIMIT $2
	`

	rows, err := p.conn.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying images: %w", err)
	}
	defer rows.Close()

	images := []db.Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return images, nil
}

// SoftDeleteImagesByOwner marks every active image of an owner deleted
func (p *PostgresDB) SoftDeleteImagesByOwner(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query := `UPDATE images SET deleted_at = $2, updated_at = $2 WHERE owner_id = $1 AND deleted_at IS NULL`

	res, err := p.conn.ExecContext(ctx, query, ownerID, at)
	if err != nil {
		return 0, fmt.Errorf("error deleting images: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
