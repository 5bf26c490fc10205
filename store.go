package sessionkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// credentialStore owns the current credential and its persistence. In
// local-fallback mode both tokens are held here and written to the credential
// file together; in secure-cookie mode the tokens live only in server-set
// cookies and the store keeps just the expiry and a liveness flag.
type credentialStore struct {
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
	auth   *authClient
	events *broadcaster

	mu   sync.Mutex
	mode Mode
	cred *credentialRecord
}

func newCredentialStore(cfg Config, log zerolog.Logger, now func() time.Time, auth *authClient, events *broadcaster) *credentialStore {
	return &credentialStore{
		cfg:    cfg,
		log:    log,
		now:    now,
		auth:   auth,
		events: events,
		mode:   ModeLocalFallback,
	}
}

// probe determines the storage mode against the capability-check endpoint.
// An unreachable or non-200 probe means local fallback: availability wins
// over security posture, but the degradation is logged.
func (s *credentialStore) probe(ctx context.Context) {
	secure := s.auth.secureCheck(ctx)

	s.mu.Lock()
	if secure {
		s.mode = ModeSecureCookie
	} else {
		s.mode = ModeLocalFallback
	}
	s.mu.Unlock()

	if secure {
		s.log.Debug().Msg("server supports secure-cookie credential storage")
	} else {
		s.log.Warn().Msg("secure-cookie capability probe failed, using local credential storage")
	}
}

// load restores a previously persisted credential for the configured profile.
// A persisted fallback record carries real tokens and therefore forces the
// session into local-fallback mode regardless of what the probe said; the
// next login moves it back.
func (s *credentialStore) load() {
	data, err := os.ReadFile(s.cfg.CredentialFile)
	if err != nil {
		return
	}

	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		s.log.Warn().Err(err).Msg("credential file is unreadable, ignoring it")
		return
	}

	rec, ok := cf.Profiles[s.cfg.Profile]
	if !ok || rec == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.Mode {
	case ModeLocalFallback.String():
		if rec.AccessToken == "" {
			return
		}
		s.cred = rec
		s.mode = ModeLocalFallback
	case ModeSecureCookie.String():
		if s.mode == ModeSecureCookie && rec.Alive {
			s.cred = rec
		}
	}
}

// Set persists a fresh credential pair with the given TTL. In secure-cookie
// mode the tokens are first handed to the server to be re-issued as httpOnly
// cookies; if that fails the session degrades to local-fallback for its
// remaining lifetime instead of erroring.
func (s *credentialStore) Set(ctx context.Context, access, refresh string, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl)

	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	if mode == ModeSecureCookie {
		if access != "" {
			if err := s.auth.installCookies(ctx, access, refresh); err != nil {
				s.log.Warn().Err(err).
					Msg("secure cookie install failed, degrading to local credential storage")

				s.mu.Lock()
				s.mode = ModeLocalFallback
				s.mu.Unlock()

				s.events.publish(Event{Kind: EventModeDegraded, Err: err})
				return s.setFallback(access, refresh, expiresAt)
			}
		}

		rec := &credentialRecord{
			ExpiresAt: expiresAt,
			Mode:      ModeSecureCookie.String(),
			Alive:     true,
		}
		s.mu.Lock()
		s.cred = rec
		s.mu.Unlock()

		if err := s.saveRecord(rec); err != nil {
			// Only expiry metadata is lost; the cookies themselves are fine.
			s.log.Warn().Err(err).Msg("failed to persist secure-mode expiry record")
		}
		return nil
	}

	return s.setFallback(access, refresh, expiresAt)
}

func (s *credentialStore) setFallback(access, refresh string, expiresAt time.Time) error {
	if access == "" {
		return fmt.Errorf("local-fallback credential requires an access token: %w", ErrNoCredential)
	}

	rec := &credentialRecord{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Mode:         ModeLocalFallback.String(),
	}

	s.mu.Lock()
	s.cred = rec
	s.mu.Unlock()

	return s.saveRecord(rec)
}

// adoptLegacy installs tokens recovered from the deprecated storage scheme.
// Migrated credentials are always local-fallback.
func (s *credentialStore) adoptLegacy(access, refresh string, expiresAt time.Time) error {
	s.mu.Lock()
	s.mode = ModeLocalFallback
	s.mu.Unlock()
	return s.setFallback(access, refresh, expiresAt)
}

// BearerToken returns the access token to attach as a bearer header. In
// secure-cookie mode it always reports absent; the transport rides on
// cookies instead.
func (s *credentialStore) BearerToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeSecureCookie || s.cred == nil || s.cred.AccessToken == "" {
		return "", false
	}
	return s.cred.AccessToken, true
}

// refreshBearer returns the refresh token for the refresh call, or empty in
// secure-cookie mode where the cookie authorizes the refresh.
func (s *credentialStore) refreshBearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeSecureCookie || s.cred == nil {
		return ""
	}
	return s.cred.RefreshToken
}

// IsExpired reports whether the credential has passed its expiry. A missing
// credential counts as expired.
func (s *credentialStore) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return true
	}
	return !s.cred.ExpiresAt.After(s.now())
}

// hasCredential reports whether any credential (live or expired) is held.
func (s *credentialStore) hasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred != nil
}

// expiresAt returns the current credential expiry, zero if none.
func (s *credentialStore) expiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return time.Time{}
	}
	return s.cred.ExpiresAt
}

// Mode returns the current storage mode.
func (s *credentialStore) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Clear erases the in-memory credential, the profile's entry in the
// credential file, and any legacy residue. Idempotent and never fails;
// persistence trouble is logged and swallowed.
func (s *credentialStore) Clear() {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()

	if err := s.deleteRecord(); err != nil {
		s.log.Warn().Err(err).Msg("failed to erase persisted credential")
	}
	if s.cfg.LegacyCredentialFile != "" {
		if err := os.Remove(s.cfg.LegacyCredentialFile); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("failed to erase legacy credential file")
		}
	}
}

// saveRecord writes rec under the configured profile, merging with records
// for other profiles. Uses the lock file plus an atomic rename so concurrent
// writers never corrupt the file.
func (s *credentialStore) saveRecord(rec *credentialRecord) error {
	lock, err := lockCredentialFile(s.cfg.CredentialFile)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.unlock(); releaseErr != nil {
			s.log.Warn().Err(releaseErr).Msg("failed to release credential file lock")
		}
	}()

	cf := s.readFileLocked()
	cf.Profiles[s.cfg.Profile] = rec
	return s.writeFileLocked(cf)
}

// deleteRecord removes the configured profile's entry, leaving other
// profiles untouched. A missing file is fine.
func (s *credentialStore) deleteRecord() error {
	if _, err := os.Stat(s.cfg.CredentialFile); os.IsNotExist(err) {
		return nil
	}

	lock, err := lockCredentialFile(s.cfg.CredentialFile)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.unlock(); releaseErr != nil {
			s.log.Warn().Err(releaseErr).Msg("failed to release credential file lock")
		}
	}()

	cf := s.readFileLocked()
	if _, ok := cf.Profiles[s.cfg.Profile]; !ok {
		return nil
	}
	delete(cf.Profiles, s.cfg.Profile)
	return s.writeFileLocked(cf)
}

// readFileLocked loads the credential file, tolerating absence and
// corruption. Caller must hold the file lock.
func (s *credentialStore) readFileLocked() *credentialFile {
	var cf credentialFile
	if data, err := os.ReadFile(s.cfg.CredentialFile); err == nil {
		if unmarshalErr := json.Unmarshal(data, &cf); unmarshalErr != nil {
			cf.Profiles = nil
		}
	}
	if cf.Profiles == nil {
		cf.Profiles = make(map[string]*credentialRecord)
	}
	return &cf
}

// writeFileLocked writes the credential file via a temp file and atomic
// rename. Caller must hold the file lock.
func (s *credentialStore) writeFileLocked(cf *credentialFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.cfg.CredentialFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.cfg.CredentialFile); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
