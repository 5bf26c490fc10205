package sessionkit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// csrfHeader carries the anti-forgery token on mutating requests.
const csrfHeader = "X-CSRF-Token"

// antiForgeryGuard caches the short-lived anti-forgery token and attaches it
// to state-mutating requests. Safe methods never carry it.
type antiForgeryGuard struct {
	auth *authClient
	now  func() time.Time

	// disabled turns every method into a no-op, for backends without
	// anti-forgery support. One flag, checked atomically.
	disabled atomic.Bool

	sf singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newAntiForgeryGuard(auth *authClient, now func() time.Time, disabled bool) *antiForgeryGuard {
	g := &antiForgeryGuard{auth: auth, now: now}
	g.disabled.Store(disabled)
	return g
}

// Token returns a cached non-expired anti-forgery token, fetching a fresh one
// when needed. Concurrent callers during a fetch share the single in-flight
// call.
func (g *antiForgeryGuard) Token(ctx context.Context) (string, error) {
	if g.disabled.Load() {
		return "", nil
	}

	if tok, ok := g.cached(); ok {
		return tok, nil
	}

	v, err, _ := g.sf.Do("csrf", func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have refilled
		// the cache just before the flight started.
		if tok, ok := g.cached(); ok {
			return tok, nil
		}

		tok, expiresAt, err := g.auth.fetchCSRF(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}

		g.mu.Lock()
		g.token = tok
		g.expiresAt = expiresAt
		g.mu.Unlock()

		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *antiForgeryGuard) cached() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" || !g.expiresAt.After(g.now()) {
		return "", false
	}
	return g.token, true
}

// Attach sets the anti-forgery header on req if its method mutates state.
func (g *antiForgeryGuard) Attach(ctx context.Context, req *http.Request) error {
	if g.disabled.Load() || isSafeMethod(req.Method) {
		return nil
	}

	tok, err := g.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set(csrfHeader, tok)
	return nil
}

// Invalidate drops the cached token so the next Token call fetches anew.
// Called when the server reports the token as rejected.
func (g *antiForgeryGuard) Invalidate() {
	if g.disabled.Load() {
		return
	}
	g.mu.Lock()
	g.token = ""
	g.expiresAt = time.Time{}
	g.mu.Unlock()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
