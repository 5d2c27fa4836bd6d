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

const profileColumns = `id, email, display_name, avatar_url, preferences, password_hash, created_at, updated_at, deleted_at`

func scanProfile(row scanner) (*db.Profile, error) {
	var p db.Profile
	var prefs []byte
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.AvatarURL, &prefs, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		p.Preferences = prefs
	}
	return &p, nil
}

// CreateProfile inserts the profile created by the sign-up trigger
func (p *PostgresDB) CreateProfile(ctx context.Context, email, displayName, passwordHash string) (*db.Profile, error) {
	query := `
	INSERT INTO profiles (id, email, display_name, password_hash)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + profileColumns

	profile, err := scanProfile(p.conn.QueryRowContext(ctx, query, uuid.New().String(), email, displayName, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, db.ErrConflict
		}
		return nil, fmt.Errorf("error creating profile: %w", err)
	}

	logger.Log.WithField("profile_id", profile.ID).Info("Created profile")
	return profile, nil
}

// GetProfile retrieves an active profile by id
func (p *PostgresDB) GetProfile(ctx context.Context, id string) (*db.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 AND deleted_at IS NULL`

	profile, err := scanProfile(p.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return profile, nil
}

// GetProfileByEmail retrieves an active profile by email
func (p *PostgresDB) GetProfileByEmail(ctx context.Context, email string) (*db.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1) AND deleted_at IS NULL`

	profile, err := scanProfile(p.conn.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, notFound(err)
	}
	return profile, nil
}

// UpdateProfile applies the non-nil fields of update
func (p *PostgresDB) UpdateProfile(ctx context.Context, id string, update db.ProfileUpdate) (*db.Profile, error) {
	var prefs any
	if update.Preferences != nil {
		prefs = []byte(update.Preferences)
	}

	query := `
	UPDATE profiles
	SET display_name = COALESCE($2, display_name),
	    avatar_url = COALESCE($3, avatar_url),
	    preferences = COALESCE($4::jsonb, preferences),
	    updated_at = CURRENT_TIMESTAMP
	WHERE id = $1 AND deleted_at IS NULL
	RETURNING ` + profileColumns

	profile, err := scanProfile(p.conn.QueryRowContext(ctx, query, id, update.DisplayName, update.AvatarURL, prefs))
	if err != nil {
		return nil, notFound(err)
	}
	return profile, nil
}

// SoftDeleteProfile marks the profile deleted. Children are handled by the cascade.
func (p *PostgresDB) SoftDeleteProfile(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE profiles SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	res, err := p.conn.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("error deleting profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound
	}

	logger.Log.WithField("profile_id", id).Info("Soft-deleted profile")
	return nil
}

// ListOrphanedProfiles returns deleted profiles whose cascade did not finish
func (p *PostgresDB) ListOrphanedProfiles(ctx context.Context, limit int) ([]string, error) {
	query := `
	SELECT p.id
	FROM profiles p
	WHERE p.deleted_at IS NOT NULL
	  AND (EXISTS (SELECT 1 FROM conversations c WHERE c.owner_id = p.id AND c.deleted_at IS NULL)
	    OR EXISTS (SELECT 1 FROM images i WHERE i.owner_id = p.id AND i.deleted_at IS NULL))
	ORDER BY p.deleted_at
	LIMIT $1
	`

	ids, err := p.queryIDs(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing orphaned profiles: %w", err)
	}
	if len(ids) > 0 {
		logger.Log.WithFields(logrus.Fields{"count": len(ids)}).Debug("Found profiles with unfinished cascade")
	}
	return ids, nil
}

func (p *PostgresDB) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
