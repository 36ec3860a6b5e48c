package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"letters/api/internal/auth"
	"letters/api/internal/config"
	"letters/api/internal/docsync"
	"letters/api/internal/export"
	"letters/api/internal/lock"
	"letters/api/internal/logging"
	"letters/api/internal/oauth"
	"letters/api/internal/store"
	"letters/api/internal/util"
)

// Session is an authenticated API session together with the provider
// credentials every gateway call is made with.
type Session struct {
	Token        string
	RefreshToken string
	SessionID    string
	Subject      string
	Email        string
	JTI          string
	ExpiresAt    time.Time
	Provider     docsync.Session
}

type CreateLetterInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  string `json:"format"`
}

type UpdateLetterInput struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

type CreatedLetter struct {
	DocumentID  string `json:"documentId"`
	DocumentURL string `json:"documentUrl"`
}

type LetterView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	RevisionID string `json:"revisionId,omitempty"`
}

// defaultSaveTimeout bounds a save when no save lock TTL is configured.
const defaultSaveTimeout = 90 * time.Second

// CredentialStore holds provider credentials and API refresh tokens.
type CredentialStore interface {
	SaveCredentials(context.Context, store.Credentials, time.Time) error
	LookupCredentials(context.Context, string) (store.Credentials, error)
	RevokeCredentials(context.Context, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(context.Context) error
}

type DraftStore interface {
	SaveDraft(context.Context, string, store.Draft) (store.Draft, error)
	LoadDraft(context.Context, string) (store.Draft, error)
	Ping(context.Context) error
}

type Dependencies struct {
	Credentials CredentialStore
	Drafts      DraftStore
	Provider    docsync.Provider
	Login       oauth.Provider
	Saves       lock.Guard
	Logger      *slog.Logger
}

type Service struct {
	cfg         config.Config
	credentials CredentialStore
	drafts      DraftStore
	provider    docsync.Provider
	login       oauth.Provider
	saves       lock.Guard
	sync        *docsync.Synchronizer
	exporter    *export.Service
	logger      *slog.Logger
	now         func() time.Time
}

func New(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	saves := deps.Saves
	if saves == nil {
		saves = lock.NewMemory()
	}
	sync := docsync.New(docsync.GoogleDocsPolicy)
	return &Service{
		cfg:         cfg,
		credentials: deps.Credentials,
		drafts:      deps.Drafts,
		provider:    deps.Provider,
		login:       deps.Login,
		saves:       saves,
		sync:        sync,
		exporter:    export.NewService(deps.Provider, sync),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) secret() []byte {
	return []byte(s.cfg.JWTSecret)
}

// AuthURL returns the provider consent URL carrying a signed state value.
func (s *Service) AuthURL() (string, error) {
	state, err := auth.IssueState(s.secret(), util.NewID("st"), s.cfg.StateTTL)
	if err != nil {
		return "", err
	}
	return s.login.AuthCodeURL(state), nil
}

// CompleteLogin exchanges the authorization code, records the provider
// credentials and opens an API session for them.
func (s *Service) CompleteLogin(ctx context.Context, code, state string) (Session, error) {
	if err := auth.ParseState(s.secret(), state); err != nil {
		return Session{}, errInvalidState
	}
	if strings.TrimSpace(code) == "" {
		return Session{}, badRequest("Authorization code is required")
	}

	provider, err := s.login.Exchange(ctx, code)
	if err != nil {
		return Session{}, err
	}
	identity, err := s.provider.Identify(ctx, provider)
	if err != nil {
		return Session{}, fmt.Errorf("identify account: %w", err)
	}
	if identity.Subject != "" {
		provider.Subject = identity.Subject
	}
	if provider.Subject == "" {
		return Session{}, fmt.Errorf("%w: provider returned no account id", docsync.ErrAuth)
	}

	now := s.now()
	creds := store.Credentials{
		SessionID:    util.NewID("ses"),
		Subject:      provider.Subject,
		Email:        identity.Email,
		AccessToken:  provider.AccessToken,
		RefreshToken: provider.RefreshToken,
		Expiry:       provider.Expiry,
		CreatedAt:    now,
	}
	if err := s.credentials.SaveCredentials(ctx, creds, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "session opened", "session_id", creds.SessionID, "subject", creds.Subject)
	return s.issueSession(ctx, creds)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, badRequest("Refresh token is required")
	}
	tokenHash := auth.HashToken(refreshToken)
	sessionID, err := s.credentials.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.credentials.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	creds, err := s.credentials.LookupCredentials(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	// Sliding expiry: an active session keeps its provider credentials.
	if err := s.credentials.SaveCredentials(ctx, creds, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, creds)
}

func (s *Service) issueSession(ctx context.Context, creds store.Credentials) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken(s.secret(), auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creds.SessionID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:  auth.KindAccess,
		Email: creds.Email,
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.credentials.SaveRefreshSession(ctx, auth.HashToken(refresh), creds.SessionID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	session := sessionFromCredentials(creds)
	session.Token = token
	session.RefreshToken = refresh
	session.JTI = jti
	session.ExpiresAt = expiresAt
	return session, nil
}

func sessionFromCredentials(creds store.Credentials) Session {
	return Session{
		SessionID: creds.SessionID,
		Subject:   creds.Subject,
		Email:     creds.Email,
		Provider: docsync.Session{
			ID:           creds.SessionID,
			Subject:      creds.Subject,
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       creds.Expiry,
		},
	}
}

// SessionFromToken resolves an API access token. A token whose credentials
// were revoked is rejected even before it expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret(), token, auth.KindAccess)
	if err != nil {
		return Session{}, err
	}
	creds, err := s.credentials.LookupCredentials(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	session := sessionFromCredentials(creds)
	session.Token = token
	session.JTI = claims.ID
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.SessionID != "" {
		if err := s.credentials.RevokeCredentials(ctx, session.SessionID); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := s.credentials.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.WarnContext(ctx, "refresh token revoke failed", "session_id", session.SessionID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "session closed", "session_id", session.SessionID)
	return nil
}

// providerFailure drops the stored credentials once the provider refuses
// them, so the next request fails fast with 401 instead of calling out again.
func (s *Service) providerFailure(ctx context.Context, session Session, op string, err error) error {
	if errors.Is(err, docsync.ErrAuth) && session.SessionID != "" {
		if revokeErr := s.credentials.RevokeCredentials(context.WithoutCancel(ctx), session.SessionID); revokeErr != nil {
			s.logger.WarnContext(ctx, "revoke credentials failed", "session_id", session.SessionID, "error", revokeErr)
		}
	}
	s.logger.WarnContext(ctx, op+" failed", "session_id", session.SessionID, "error", err)
	return err
}

func (s *Service) ListLetters(ctx context.Context, session Session) ([]docsync.File, error) {
	files, err := s.provider.ListDocuments(ctx, session.Provider)
	if err != nil {
		return nil, s.providerFailure(ctx, session, "list letters", err)
	}
	if files == nil {
		files = []docsync.File{}
	}
	return files, nil
}

// CreateLetter creates the remote document and writes the initial content.
// The provider calls outlive a disconnected client.
func (s *Service) CreateLetter(ctx context.Context, session Session, input CreateLetterInput) (CreatedLetter, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return CreatedLetter{}, validationError("Title is required")
	}
	format, err := docsync.ParseFormat(input.Format)
	if err != nil {
		return CreatedLetter{}, err
	}

	saveCtx, cancel := s.saveContext(ctx)
	defer cancel()
	letter := docsync.NewLetter(title, input.Content)
	if err := s.sync.Save(saveCtx, s.provider, session.Provider, letter, format); err != nil {
		var partial *docsync.PartialCreateError
		if errors.As(err, &partial) {
			s.logger.ErrorContext(ctx, "letter created without content", "document_id", partial.DocumentID, "error", partial.Err)
		}
		return CreatedLetter{}, s.providerFailure(ctx, session, "create letter", err)
	}

	s.logger.InfoContext(ctx, "letter created", "document_id", letter.ID, "subject", session.Subject)
	return CreatedLetter{DocumentID: letter.ID, DocumentURL: docsync.DocumentURL(letter.ID)}, nil
}

func (s *Service) GetLetter(ctx context.Context, session Session, documentID string) (LetterView, error) {
	doc, content, err := s.sync.Load(ctx, s.provider, session.Provider, documentID)
	if err != nil {
		return LetterView{}, s.providerFailure(ctx, session, "load letter", err)
	}
	return LetterView{ID: doc.ID, Title: doc.Title, Content: content, RevisionID: doc.RevisionID}, nil
}

// saveContext detaches a save from the client connection and bounds it to
// three quarters of the save lock TTL, so the lock cannot lapse mid-save.
func (s *Service) saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := defaultSaveTimeout
	if ttl := s.cfg.SaveLockTTL; ttl > 0 {
		timeout = ttl - ttl/4
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// UpdateLetter replaces the body of an existing letter. Only one save per
// letter runs at a time; a concurrent one is refused, not queued.
func (s *Service) UpdateLetter(ctx context.Context, session Session, documentID string, input UpdateLetterInput) error {
	format, err := docsync.ParseFormat(input.Format)
	if err != nil {
		return err
	}
	release, err := s.saves.TryAcquire(ctx, documentID)
	if errors.Is(err, lock.ErrBusy) {
		return errSaveInProgress
	}
	if err != nil {
		return err
	}
	defer release()

	saveCtx, cancel := s.saveContext(ctx)
	defer cancel()
	letter := docsync.ExistingLetter(documentID, input.Content)
	if err := s.sync.Save(saveCtx, s.provider, session.Provider, letter, format); err != nil {
		return s.providerFailure(ctx, session, "update letter", err)
	}
	s.logger.InfoContext(ctx, "letter updated", "document_id", documentID, "subject", session.Subject)
	return nil
}

func (s *Service) ExportLetter(ctx context.Context, session Session, documentID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, session.Provider, export.Request{DocumentID: documentID, Format: parsed})
	if err != nil {
		return nil, s.providerFailure(ctx, session, "export letter", err)
	}
	return result, nil
}

// SaveDraft stores the identity's single local draft, replacing any previous one.
func (s *Service) SaveDraft(ctx context.Context, session Session, draft store.Draft) (store.Draft, error) {
	return s.drafts.SaveDraft(ctx, session.Subject, draft)
}

func (s *Service) LoadDraft(ctx context.Context, session Session) (store.Draft, error) {
	return s.drafts.LoadDraft(ctx, session.Subject)
}

// Ping checks the health of the credential and draft stores.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"sessions": s.credentials.Ping(ctx),
		"drafts":   s.drafts.Ping(ctx),
	}
}
