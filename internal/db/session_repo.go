package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"simplenotes/internal/types"
)

// SessionRepository provides data access for login sessions. Tokens are
// looked up by their SHA-256 hash; raw tokens are never stored.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByTokenHash returns the session and its owner's email. Expired sessions
// are reported as auth_token_expired.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*types.Session, string, error) {
	var (
		s     types.Session
		email string
	)
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.token_hash, s.expires_at, s.created_at, u.email
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = $1`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
		}
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	if !s.ExpiresAt.After(now) {
		return nil, "", types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}
	return &s, email, nil
}

// Delete removes a session by ID. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired purges sessions that expired before now and returns how many
// were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
