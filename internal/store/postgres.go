package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) SaveCredentials(ctx context.Context, creds Credentials, expiresAt time.Time) error {
	var tokenExpiry any
	if !creds.Expiry.IsZero() {
		tokenExpiry = creds.Expiry
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_credentials (session_id, subject, email, access_token, refresh_token, token_expiry, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			subject=EXCLUDED.subject,
			email=EXCLUDED.email,
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			token_expiry=EXCLUDED.token_expiry,
			expires_at=EXCLUDED.expires_at
	`, creds.SessionID, creds.Subject, creds.Email, creds.AccessToken, creds.RefreshToken, tokenExpiry, expiresAt)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupCredentials(ctx context.Context, sessionID string) (Credentials, error) {
	var (
		creds       Credentials
		tokenExpiry sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, subject, email, access_token, refresh_token, token_expiry, created_at
		FROM session_credentials
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID).Scan(&creds.SessionID, &creds.Subject, &creds.Email, &creds.AccessToken, &creds.RefreshToken, &tokenExpiry, &creds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, fmt.Errorf("lookup credentials: %w", ErrNotFound)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("lookup credentials: %w", err)
	}
	if tokenExpiry.Valid {
		creds.Expiry = tokenExpiry.Time
	}
	return creds, nil
}

// RevokeCredentials deletes the session row; its refresh tokens cascade.
func (s *PostgresStore) RevokeCredentials(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_credentials WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("revoke credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, sessionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, session_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET session_id=EXCLUDED.session_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, sessionID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup refresh session: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}
	return sessionID, nil
}

// SaveDraft overwrites the owner's single draft slot.
func (s *PostgresStore) SaveDraft(ctx context.Context, owner string, draft Draft) (Draft, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO drafts (owner, slot, title, content, saved_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner, slot) DO UPDATE SET title=EXCLUDED.title, content=EXCLUDED.content, saved_at=EXCLUDED.saved_at
		RETURNING saved_at
	`, owner, DraftSlot, draft.Title, draft.Content).Scan(&draft.SavedAt)
	if err != nil {
		return Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

func (s *PostgresStore) LoadDraft(ctx context.Context, owner string) (Draft, error) {
	var draft Draft
	err := s.db.QueryRowContext(ctx, `
		SELECT title, content, saved_at FROM drafts WHERE owner=$1 AND slot=$2
	`, owner, DraftSlot).Scan(&draft.Title, &draft.Content, &draft.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, fmt.Errorf("load draft: %w", ErrNotFound)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	return draft, nil
}
