package sessionkit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClock is an adjustable clock shared between a test and its session.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// testConfig returns a Config pointing at srv with per-test credential files.
func testConfig(t *testing.T, srv *httptest.Server) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		BaseURL:              srv.URL,
		Profile:              "test",
		CredentialFile:       filepath.Join(dir, "credentials.json"),
		LegacyCredentialFile: filepath.Join(dir, "legacy.json"),
	}
}

// newTestSession builds a Session against handler. The capability probe hits
// the handler too, so handlers decide the mode by how they answer
// GET /auth/secure-check (a 404 mux default means local fallback).
func newTestSession(t *testing.T, handler http.Handler, opts ...Option) (*Session, Config) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv)
	sess, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	return sess, cfg
}

// newTestStore builds a bare credential store (no Session) against srvURL.
func newTestStore(t *testing.T, srvURL string, cfg Config, now func() time.Time) (*credentialStore, *broadcaster) {
	t.Helper()

	rc, err := retry.NewClient()
	require.NoError(t, err)

	auth := &authClient{baseURL: srvURL, client: rc, now: now}
	events := newBroadcaster(zerolog.Nop())
	return newCredentialStore(cfg, zerolog.Nop(), now, auth, events), events
}

// writeTokenJSON writes a bare-shape token response.
func writeTokenJSON(w http.ResponseWriter, access, refresh string, ttlSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"token_expiry":  ttlSeconds,
	})
}

// writeAuthError writes an OAuth-style error response.
func writeAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
