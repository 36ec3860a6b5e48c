// Package oauth performs the provider login: it builds the consent URL and
// exchanges the returned authorization code for a credential pair.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"letters/api/internal/docsync"
	"letters/api/internal/memdocs"
)

// Scopes requested at consent: profile and email to identify the account,
// drive.file to list files this app created, documents to read and edit them.
var Scopes = []string{
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/documents",
}

// Provider is the login half of a document backend.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (docsync.Session, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides google.Endpoint. Tests point it at a local server.
	Endpoint oauth2.Endpoint
}

type Google struct {
	cfg *oauth2.Config
}

func NewGoogle(cfg Config) *Google {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &Google{cfg: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}}
}

// OAuth2Config is shared with the API adapter so refreshed tokens use the
// same client credentials.
func (g *Google) OAuth2Config() *oauth2.Config {
	return g.cfg
}

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is issued on every login.
func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *Google) Exchange(ctx context.Context, code string) (docsync.Session, error) {
	if strings.TrimSpace(code) == "" {
		return docsync.Session{}, fmt.Errorf("%w: authorization code is required", docsync.ErrValidation)
	}
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return docsync.Session{}, fmt.Errorf("%w: exchange code: %s", docsync.ErrAuth, retrieveErr.ErrorCode)
		}
		return docsync.Session{}, fmt.Errorf("%w: exchange code: %v", docsync.ErrTransient, err)
	}
	return docsync.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// Local skips the consent screen and sends the browser straight back to the
// callback. It pairs with the in-memory document provider.
type Local struct {
	RedirectURL string
}

func (l Local) AuthCodeURL(state string) string {
	values := url.Values{"code": {"local"}, "state": {state}}
	return l.RedirectURL + "?" + values.Encode()
}

func (l Local) Exchange(_ context.Context, code string) (docsync.Session, error) {
	if strings.TrimSpace(code) == "" {
		return docsync.Session{}, fmt.Errorf("%w: authorization code is required", docsync.ErrValidation)
	}
	return docsync.Session{AccessToken: "local-" + code, Subject: memdocs.LocalSubject}, nil
}
