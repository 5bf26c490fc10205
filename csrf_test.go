package sessionkit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/require"
)

// newTestGuard builds a guard against a server that counts token fetches.
func newTestGuard(t *testing.T, now func() time.Time, disabled bool, delay time.Duration) (*antiForgeryGuard, *atomic.Int32) {
	t.Helper()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathCSRFToken, r.URL.Path)
		n := fetches.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"csrf_token":"csrf-%d"}`, n)
	}))
	t.Cleanup(srv.Close)

	rc, err := retry.NewClient()
	require.NoError(t, err)

	auth := &authClient{baseURL: srv.URL, client: rc, now: now}
	return newAntiForgeryGuard(auth, now, disabled), &fetches
}

func TestAntiForgeryGuard_CachesToken(t *testing.T) {
	guard, fetches := newTestGuard(t, time.Now, false, 0)

	tok1, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "csrf-1", tok1)

	tok2, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, tok1, tok2)

	require.Equal(t, int32(1), fetches.Load(), "cached token should not refetch")
}

func TestAntiForgeryGuard_ConcurrentSingleFetch(t *testing.T) {
	guard, fetches := newTestGuard(t, time.Now, false, 100*time.Millisecond)

	const callers = 10
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(n int) {
			defer wg.Done()
			tok, err := guard.Token(context.Background())
			if err != nil {
				t.Errorf("Token failed: %v", err)
				return
			}
			tokens[n] = tok
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), fetches.Load(), "concurrent callers must share one fetch")
	for _, tok := range tokens {
		require.Equal(t, "csrf-1", tok)
	}
}

func TestAntiForgeryGuard_InvalidateForcesRefetch(t *testing.T) {
	guard, fetches := newTestGuard(t, time.Now, false, 0)

	tok1, err := guard.Token(context.Background())
	require.NoError(t, err)

	guard.Invalidate()

	tok2, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, tok1, tok2)
	require.Equal(t, int32(2), fetches.Load())
}

func TestAntiForgeryGuard_ExpiryForcesRefetch(t *testing.T) {
	clock := newFakeClock()
	guard, fetches := newTestGuard(t, clock.Now, false, 0)

	_, err := guard.Token(context.Background())
	require.NoError(t, err)

	// Still inside the default TTL: cached.
	clock.Advance(defaultCSRFTTL - time.Minute)
	_, err = guard.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), fetches.Load())

	// Past the TTL: refetched.
	clock.Advance(2 * time.Minute)
	tok, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "csrf-2", tok)
	require.Equal(t, int32(2), fetches.Load())
}

func TestAntiForgeryGuard_Disabled(t *testing.T) {
	guard, fetches := newTestGuard(t, time.Now, true, 0)

	tok, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.Empty(t, tok)

	req := httptest.NewRequest(http.MethodPost, "/admin/settings", nil)
	require.NoError(t, guard.Attach(context.Background(), req))
	require.Empty(t, req.Header.Get(csrfHeader))

	guard.Invalidate()
	require.Equal(t, int32(0), fetches.Load(), "disabled guard must never hit the server")
}

func TestAntiForgeryGuard_AttachSkipsSafeMethods(t *testing.T) {
	guard, fetches := newTestGuard(t, time.Now, false, 0)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/admin/profile", nil)
		require.NoError(t, guard.Attach(context.Background(), req))
		require.Empty(t, req.Header.Get(csrfHeader), "%s must not carry the header", method)
	}
	require.Equal(t, int32(0), fetches.Load())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/admin/settings", nil)
		require.NoError(t, guard.Attach(context.Background(), req))
		require.Equal(t, "csrf-1", req.Header.Get(csrfHeader), "%s must carry the header", method)
	}
	require.Equal(t, int32(1), fetches.Load())
}

func TestAntiForgeryGuard_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rc, err := retry.NewClient()
	require.NoError(t, err)

	guard := newAntiForgeryGuard(&authClient{baseURL: srv.URL, client: rc, now: time.Now}, time.Now, false)

	_, err = guard.Token(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "csrf token request failed")
}

func TestAntiForgeryGuard_RespectsServerExpiry(t *testing.T) {
	clock := newFakeClock()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		expires := clock.Now().Add(time.Minute).Format(time.RFC3339)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"csrf_token":"csrf-%d","expires_at":%q}`, n, expires)
	}))
	defer srv.Close()

	rc, err := retry.NewClient()
	require.NoError(t, err)

	guard := newAntiForgeryGuard(&authClient{baseURL: srv.URL, client: rc, now: clock.Now}, clock.Now, false)

	_, err = guard.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	tok, err := guard.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "csrf-2", tok, "server-provided expiry should override the default")
	require.Equal(t, int32(2), fetches.Load())
}
