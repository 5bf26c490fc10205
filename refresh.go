package sessionkit

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// refreshCoordinator performs the token refresh against the authorization
// server. At most one refresh call is in flight at any time; every caller
// that observes the in-flight attempt receives its resolution. A storm of
// simultaneous 401s therefore collapses into a single refresh call.
type refreshCoordinator struct {
	auth   *authClient
	store  *credentialStore
	events *broadcaster
	log    zerolog.Logger
	now    func() time.Time

	sf         singleflight.Group
	refreshing atomic.Bool
}

func newRefreshCoordinator(auth *authClient, store *credentialStore, events *broadcaster, log zerolog.Logger, now func() time.Time) *refreshCoordinator {
	return &refreshCoordinator{
		auth:   auth,
		store:  store,
		events: events,
		log:    log,
		now:    now,
	}
}

// Refresh obtains a new credential, joining an in-flight attempt if one
// exists. On terminal failure the credential is cleared and the
// session-ended event is raised before the error is returned.
func (r *refreshCoordinator) Refresh(ctx context.Context) error {
	_, err, _ := r.sf.Do("refresh", func() (interface{}, error) {
		// A caller abandoning its request must not cancel the shared
		// attempt; it completes for whoever remains.
		return nil, r.refresh(context.WithoutCancel(ctx))
	})
	return err
}

// inFlight reports whether a refresh attempt is currently running.
func (r *refreshCoordinator) inFlight() bool {
	return r.refreshing.Load()
}

func (r *refreshCoordinator) refresh(ctx context.Context) error {
	r.refreshing.Store(true)
	defer r.refreshing.Store(false)

	oldRefresh := r.store.refreshBearer()
	if r.store.Mode() == ModeLocalFallback && oldRefresh == "" {
		return r.fail(ErrNoCredential)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	if oldRefresh != "" {
		form.Set("refresh_token", oldRefresh)
	}

	// In secure-cookie mode oldRefresh is empty and the refresh cookie
	// authorizes the call.
	tok, err := r.auth.token(ctx, pathRefresh, oldRefresh, form)
	if err != nil {
		return r.fail(err)
	}

	// Handle refresh token rotation modes:
	// - Rotation mode: server returns a new refresh_token (use it)
	// - Fixed mode: server doesn't return one (preserve the old one)
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = oldRefresh
	}

	if err := r.store.Set(ctx, tok.AccessToken, newRefresh, tok.Expiry.Sub(r.now())); err != nil {
		return r.fail(err)
	}

	r.log.Debug().Time("expires_at", tok.Expiry).Msg("credential refreshed")
	r.events.publish(Event{Kind: EventTokenRefreshed})
	return nil
}

// fail settles the attempt terminally: credential gone, session over.
// Never retried automatically; a dead refresh token would loop forever.
func (r *refreshCoordinator) fail(cause error) error {
	r.log.Error().Err(cause).Msg("token refresh failed, ending session")
	r.store.Clear()
	r.events.sessionEnded(cause)
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}
