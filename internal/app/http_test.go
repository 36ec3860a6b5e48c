package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"letters/api/internal/docsync"
	"letters/api/internal/session"
)

type failingPing struct {
	*session.MemoryStore
	err error
}

func (f failingPing) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T) (*Service, http.Handler) {
	t.Helper()
	svc, _ := newTestService(t, newTestProvider())
	return svc, NewHTTPServer(svc, svc.cfg.CORSOrigins, nil).Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestRootReportsActive(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doRequest(t, handler, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["activeStatus"] != true || payload["error"] != false {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doRequest(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload)
	}
}

func TestReadyEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	checks, _ := payload["checks"].(map[string]any)
	if len(checks) != 2 {
		t.Fatalf("expected sessions and drafts checks, got %v", checks)
	}
}

func TestReadyEndpointReportsFailingStore(t *testing.T) {
	svc, _ := newTestService(t, newTestProvider())
	svc.drafts = failingPing{MemoryStore: session.NewMemoryStore(), err: errors.New("connection refused")}
	handler := NewHTTPServer(svc, nil, nil).Handler()

	rr := doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	drafts := checks["drafts"].(map[string]any)
	if drafts["status"] != "error" || drafts["error"] != "connection refused" {
		t.Fatalf("unexpected drafts check %v", drafts)
	}
}

func TestLoginFlowRedirectsWithTokens(t *testing.T) {
	_, handler := newTestServer(t)

	rr := doRequest(t, handler, http.MethodGet, "/api/auth/google/url", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	consent, err := url.Parse(decodeResponse(t, rr)["url"].(string))
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}

	callback := "/api/auth/callback/google?" + consent.RawQuery
	rr = doRequest(t, handler, http.MethodGet, callback, "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d body=%s", rr.Code, rr.Body.String())
	}
	location, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Host != "client.test" || location.Path != "/letters" {
		t.Fatalf("unexpected redirect target %s", location)
	}
	token := location.Query().Get("access_token")
	if token == "" || location.Query().Get("refresh_token") == "" {
		t.Fatalf("expected tokens in redirect, got %s", location.RawQuery)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/session", token, nil)
	payload := decodeResponse(t, rr)
	if payload["authenticated"] != true || payload["email"] != "local-user@localhost" {
		t.Fatalf("unexpected session payload %v", payload)
	}
}

func TestCallbackKeepsClientURLQuery(t *testing.T) {
	svc, handler := newTestServer(t)
	svc.cfg.ClientURL = "http://client.test/letters?tab=new"

	consent, err := url.Parse(decodeResponse(t, doRequest(t, handler, http.MethodGet, "/api/auth/google/url", "", nil))["url"].(string))
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	rr := doRequest(t, handler, http.MethodGet, "/api/auth/callback/google?"+consent.RawQuery, "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d body=%s", rr.Code, rr.Body.String())
	}
	location, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Path != "/letters" || location.Query().Get("tab") != "new" {
		t.Fatalf("client query lost in %s", location)
	}
	if location.Query().Get("access_token") == "" {
		t.Fatalf("expected access token in %s", location)
	}
}

func TestClientRedirectMergesQuery(t *testing.T) {
	values := url.Values{"error": {"access_denied"}}
	tests := map[string]string{
		"http://client.test/letters":               "http://client.test/letters?error=access_denied",
		"http://client.test/letters?tab=new":       "http://client.test/letters?error=access_denied&tab=new",
		"http://client.test/letters?error=old#top": "http://client.test/letters?error=access_denied#top",
	}
	for in, want := range tests {
		if got := clientRedirect(in, values); got != want {
			t.Errorf("clientRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCallbackWithBadStateRedirectsWithError(t *testing.T) {
	_, handler := newTestServer(t)

	rr := doRequest(t, handler, http.MethodGet, "/api/auth/callback/google?code=local&state=forged", "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	location, _ := url.Parse(rr.Header().Get("Location"))
	if got := location.Query().Get("error"); got != "invalid_state" {
		t.Fatalf("expected invalid_state, got %q", got)
	}
	if location.Query().Get("access_token") != "" {
		t.Fatalf("failed login must not carry a token")
	}
}

func TestCallbackWithProviderDenial(t *testing.T) {
	_, handler := newTestServer(t)

	rr := doRequest(t, handler, http.MethodGet, "/api/auth/callback/google?error=access_denied", "", nil)
	location, _ := url.Parse(rr.Header().Get("Location"))
	if got := location.Query().Get("error"); got != "access_denied" {
		t.Fatalf("expected access_denied, got %q", got)
	}
}

func TestSessionWithoutTokenIsAnonymous(t *testing.T) {
	_, handler := newTestServer(t)
	payload := decodeResponse(t, doRequest(t, handler, http.MethodGet, "/api/session", "", nil))
	if payload["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", payload)
	}
}

func TestProtectedRouteWithoutBearerIsClientError(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doRequest(t, handler, http.MethodGet, "/api/letters", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", code)
	}
}

func TestProtectedRouteWithBadBearerIsUnauthorized(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doRequest(t, handler, http.MethodGet, "/api/letters", "garbage", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestLetterEndpoints(t *testing.T) {
	svc, handler := newTestServer(t)
	token := login(t, svc).Token

	rr := doRequest(t, handler, http.MethodPost, "/api/letters", token, map[string]string{"title": "Hi", "content": "<p>Hello</p>"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeResponse(t, rr)
	id, _ := created["documentId"].(string)
	if id == "" || created["documentUrl"] != docsync.DocumentURL(id) || created["message"] == "" {
		t.Fatalf("unexpected create payload %v", created)
	}

	rr = doRequest(t, handler, http.MethodPut, "/api/letters/"+id, token, map[string]string{"content": "Goodbye", "format": "text"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/letters/"+id, token, nil)
	letter := decodeResponse(t, rr)
	if letter["id"] != id || letter["title"] != "Hi" || letter["content"] != "Goodbye" {
		t.Fatalf("unexpected letter %v", letter)
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/letters", token, nil)
	letters, _ := decodeResponse(t, rr)["letters"].([]any)
	if len(letters) != 1 {
		t.Fatalf("expected one letter, got %v", letters)
	}
	first := letters[0].(map[string]any)
	if first["id"] != id || first["name"] != "Hi" || first["webViewLink"] != docsync.DocumentURL(id) {
		t.Fatalf("unexpected listing entry %v", first)
	}
}

func TestUnknownLetterIsNotFound(t *testing.T) {
	svc, handler := newTestServer(t)
	token := login(t, svc).Token

	rr := doRequest(t, handler, http.MethodGet, "/api/letters/doc_missing", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	svc, handler := newTestServer(t)
	sess := login(t, svc)
	created, err := svc.CreateLetter(context.Background(), sess, CreateLetterInput{Title: "Thank You", Content: "Thanks!", Format: "text"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rr := doRequest(t, handler, http.MethodGet, "/api/letters/"+created.DocumentID+"/export?format=txt", sess.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Thank-You.txt") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rr.Body.String() != "Thanks!" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/letters/"+created.DocumentID+"/export?format=odt", sess.Token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown format, got %d", rr.Code)
	}
}

func TestDraftEndpoints(t *testing.T) {
	svc, handler := newTestServer(t)
	token := login(t, svc).Token

	rr := doRequest(t, handler, http.MethodGet, "/api/draft", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any save, got %d", rr.Code)
	}

	rr = doRequest(t, handler, http.MethodPut, "/api/draft", token, map[string]string{"title": "T", "content": "C"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, handler, http.MethodGet, "/api/draft", token, nil)
	draft := decodeResponse(t, rr)
	if draft["title"] != "T" || draft["content"] != "C" {
		t.Fatalf("unexpected draft %v", draft)
	}
}

func TestCORSAllowsConfiguredOriginOnly(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/letters", nil)
	req.Header.Set("Origin", "http://client.test")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://client.test" {
		t.Fatalf("expected origin echo, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/letters", nil)
	req.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}
}

func TestMapErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{docsync.ErrAuth, http.StatusUnauthorized, "UNAUTHORIZED"},
		{docsync.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{docsync.ErrConflict, http.StatusConflict, "CONFLICT"},
		{docsync.ErrQuota, http.StatusServiceUnavailable, "QUOTA_EXCEEDED"},
		{docsync.ErrTransient, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{docsync.ErrValidation, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{&docsync.PartialCreateError{DocumentID: "doc_1", Err: docsync.ErrTransient}, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{fmt.Errorf("fetch document: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		status, code, _, _ := mapError(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("mapError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
