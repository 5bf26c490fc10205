// Package sessionkit is the secure session and request-authorization layer of
// the admin client. It acquires, stores, and refreshes credentials in either
// secure-cookie or local-fallback mode, attaches bearer and anti-forgery
// headers to outbound requests, collapses concurrent refreshes into a single
// call, and bounds credential retries so no request can loop.
package sessionkit

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/rs/zerolog"
)

// SessionState is the derived lifecycle state of a Session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateRefreshPending
	StateSessionEnded
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshPending:
		return "refresh-pending"
	case StateSessionEnded:
		return "session-ended"
	default:
		return "unauthenticated"
	}
}

// Option configures a Session.
type Option func(*Session)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Session) {
		s.now = nowFunc
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added
// if the client has none, since secure-cookie mode depends on one.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.httpClient = c
	}
}

// Session owns one authenticated session against the admin API: credential
// store, anti-forgery guard, refresh coordination, and the request pipeline.
// Construct it once at process start and share it; dispose with Close.
type Session struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	httpClient *http.Client
	auth       *authClient
	store      *credentialStore
	guard      *antiForgeryGuard
	refresher  *refreshCoordinator
	events     *broadcaster
	pipe       *pipeline

	ended       atomic.Bool
	closed      atomic.Bool
	unsubscribe func()
}

// New builds a Session: probes the credential storage mode, migrates any
// legacy credential, and restores a persisted one. The context bounds only
// the startup probe.
func New(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg: cfg,
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if strings.HasPrefix(strings.ToLower(cfg.BaseURL), "http://") {
		s.log.Warn().Msg("using HTTP instead of HTTPS, credentials travel in plaintext")
	}

	if s.httpClient == nil {
		s.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if s.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		s.httpClient.Jar = jar
	}

	retryClient, err := retry.NewBackgroundClient(retry.WithHTTPClient(s.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	s.events = newBroadcaster(s.log)
	s.auth = &authClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  retryClient,
		now:     s.now,
	}
	s.store = newCredentialStore(cfg, s.log, s.now, s.auth, s.events)
	s.guard = newAntiForgeryGuard(s.auth, s.now, cfg.DisableCSRF)
	s.refresher = newRefreshCoordinator(s.auth, s.store, s.events, s.log, s.now)
	s.pipe = &pipeline{
		client:    retryClient,
		store:     s.store,
		guard:     s.guard,
		refresher: s.refresher,
		log:       s.log,
	}

	s.unsubscribe = s.events.subscribe(func(ev Event) {
		if ev.Kind == EventSessionEnded {
			s.ended.Store(true)
		}
	})

	s.store.probe(ctx)
	newLegacyMigrator(cfg.LegacyCredentialFile, s.store, s.log, s.now).Run()
	s.store.load()

	return s, nil
}

// Login authenticates with username and password and stores the resulting
// credential. In secure-cookie mode the server sets the tokens as httpOnly
// cookies and the client records only the expiry.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	tok, err := s.auth.token(ctx, pathLogin, "", form)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := s.store.Set(ctx, tok.AccessToken, tok.RefreshToken, tok.Expiry.Sub(s.now())); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	s.ended.Store(false)
	s.events.publish(Event{Kind: EventLoggedIn})
	return nil
}

// Logout tells the server to end the session, best-effort, then always
// clears the local credential. Server-side failures are logged and ignored.
func (s *Session) Logout(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	req, err := s.NewRequest(ctx, http.MethodPost, pathLogout, nil)
	if err == nil {
		resp, doErr := s.pipe.Do(req)
		switch {
		case doErr != nil:
			s.log.Warn().Err(doErr).Msg("logout request failed, clearing local credential anyway")
		case resp.StatusCode != http.StatusOK:
			s.log.Warn().Int("status", resp.StatusCode).Msg("logout rejected by server, clearing local credential anyway")
			drainBody(resp)
		default:
			drainBody(resp)
		}
	}

	s.store.Clear()
	s.guard.Invalidate()
	s.events.publish(Event{Kind: EventLoggedOut})
	return nil
}

// Do executes req through the request pipeline.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.pipe.Do(req)
}

// NewRequest builds a request against the configured API origin. path must
// begin with "/".
func (s *Session) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, s.auth.baseURL+path, body)
}

// sessionTransport adapts the pipeline to http.RoundTripper so the generated
// SDK can consume the session as a plain *http.Client.
type sessionTransport struct {
	s *Session
}

func (t sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.s.Do(req)
}

// Client returns an *http.Client whose transport routes through the session.
func (s *Session) Client() *http.Client {
	return &http.Client{Transport: sessionTransport{s}}
}

// Subscribe registers fn for session lifecycle events and returns a cancel
// func. This is the sole notification channel from the session to its UI
// collaborators.
func (s *Session) Subscribe(fn func(Event)) func() {
	return s.events.subscribe(fn)
}

// Mode returns the current credential storage mode.
func (s *Session) Mode() Mode {
	return s.store.Mode()
}

// ExpiresAt returns the current credential expiry, zero if none is held.
func (s *Session) ExpiresAt() time.Time {
	return s.store.expiresAt()
}

// State derives the session lifecycle state.
func (s *Session) State() SessionState {
	switch {
	case s.refresher.inFlight():
		return StateRefreshPending
	case s.ended.Load():
		return StateSessionEnded
	case s.store.hasCredential():
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Close disposes the session. It does not clear credentials; that is
// Logout's job.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.unsubscribe()
}
