// Package session provides storage backends for session credentials, refresh
// tokens and drafts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"letters/api/internal/store"
)

// TokenData holds the data stored for each refresh token
type TokenData struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

type credentialData struct {
	Subject      string    `json:"subject"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RedisStore keeps credentials and refresh tokens with a TTL and drafts
// without one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the connection so other Redis-backed components can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func credentialKey(sessionID string) string { return "session:" + sessionID }
func refreshKey(tokenHash string) string    { return "refresh:" + tokenHash }
func draftKey(owner string) string          { return "draft:" + owner }

func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour // Default 30 days
	}
	return ttl
}

func (s *RedisStore) SaveCredentials(ctx context.Context, creds store.Credentials, expiresAt time.Time) error {
	data := credentialData{
		Subject:      creds.Subject,
		Email:        creds.Email,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
		CreatedAt:    time.Now(),
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := s.client.Set(ctx, credentialKey(creds.SessionID), jsonData, ttlUntil(expiresAt)).Err(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupCredentials(ctx context.Context, sessionID string) (store.Credentials, error) {
	jsonData, err := s.client.Get(ctx, credentialKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Credentials{}, fmt.Errorf("lookup credentials: %w", store.ErrNotFound)
	}
	if err != nil {
		return store.Credentials{}, fmt.Errorf("lookup credentials: %w", err)
	}
	var data credentialData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return store.Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return store.Credentials{
		SessionID:    sessionID,
		Subject:      data.Subject,
		Email:        data.Email,
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		Expiry:       data.Expiry,
		CreatedAt:    data.CreatedAt,
	}, nil
}

func (s *RedisStore) RevokeCredentials(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, credentialKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("revoke credentials: %w", err)
	}
	return nil
}

// SaveRefreshSession stores a refresh token with expiration
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, sessionID string, expiresAt time.Time) error {
	jsonData, err := json.Marshal(TokenData{SessionID: sessionID, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}
	if err := s.client.Set(ctx, refreshKey(tokenHash), jsonData, ttlUntil(expiresAt)).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the session a refresh token belongs to
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	jsonData, err := s.client.Get(ctx, refreshKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("lookup refresh token: %w", store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}
	var data TokenData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return "", fmt.Errorf("unmarshal token data: %w", err)
	}
	return data.SessionID, nil
}

// RevokeRefreshSession deletes a refresh token
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, refreshKey(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveDraft(ctx context.Context, owner string, draft store.Draft) (store.Draft, error) {
	draft.SavedAt = time.Now().UTC()
	jsonData, err := json.Marshal(draft)
	if err != nil {
		return store.Draft{}, fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(owner), jsonData, 0).Err(); err != nil {
		return store.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

func (s *RedisStore) LoadDraft(ctx context.Context, owner string) (store.Draft, error) {
	jsonData, err := s.client.Get(ctx, draftKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Draft{}, fmt.Errorf("load draft: %w", store.ErrNotFound)
	}
	if err != nil {
		return store.Draft{}, fmt.Errorf("load draft: %w", err)
	}
	var draft store.Draft
	if err := json.Unmarshal(jsonData, &draft); err != nil {
		return store.Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
