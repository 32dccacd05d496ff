package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
)

// Engineer is a roster entry offered when filing or issuing stock
type Engineer struct {
	ID    string `db:"user_id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email,omitempty"`
}

// UserCacheRepository handles the local copy of users fed by user events
type UserCacheRepository struct {
	db *database.DB
}

// NewUserCacheRepository creates a new user cache repository
func NewUserCacheRepository(db *database.DB) *UserCacheRepository {
	return &UserCacheRepository{db: db}
}

// Set creates or updates a cached user
func (r *UserCacheRepository) Set(ctx context.Context, user *actor.UserCache) error {
	query := `
		INSERT INTO user_cache (user_id, name, email, role_name, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET name = $2, email = $3, role_name = $4, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, user.UserID, user.Name, user.Email, user.RoleName); err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}
	return nil
}

// Get gets a cached user by ID
func (r *UserCacheRepository) Get(ctx context.Context, userID string) (*actor.UserCache, error) {
	var user actor.UserCache
	query := `SELECT user_id, name, email, role_name, updated_at FROM user_cache WHERE user_id = $1`
	err := r.db.GetContext(ctx, &user, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached user: %w", err)
	}
	return &user, nil
}

// Delete deletes a cached user
func (r *UserCacheRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_cache WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete cached user: %w", err)
	}
	return nil
}

// ListByRole lists cached users holding a role, by name
func (r *UserCacheRepository) ListByRole(ctx context.Context, role string) ([]*Engineer, error) {
	var engineers []*Engineer
	query := `SELECT user_id, name, email FROM user_cache WHERE role_name = $1 ORDER BY name, user_id`
	if err := r.db.SelectContext(ctx, &engineers, query, role); err != nil {
		return nil, fmt.Errorf("failed to list cached users: %w", err)
	}
	return engineers, nil
}
