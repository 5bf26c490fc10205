package sessionkit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// legacyTokenFile is the deprecated pre-profile storage scheme: one flat
// record, no profile map, different key names.
type legacyTokenFile struct {
	Token   string    `json:"token"`
	Refresh string    `json:"refresh"`
	Expiry  time.Time `json:"expiry"`
}

// legacyMigrator moves credentials from the deprecated storage scheme into
// the credential store, then erases the old copy. Runs at most once per
// session; redundant calls and every failure mode are no-ops, the user
// simply re-authenticates.
type legacyMigrator struct {
	path  string
	store *credentialStore
	log   zerolog.Logger
	now   func() time.Time
	once  sync.Once
}

func newLegacyMigrator(path string, store *credentialStore, log zerolog.Logger, now func() time.Time) *legacyMigrator {
	return &legacyMigrator{path: path, store: store, log: log, now: now}
}

// Run performs the migration if it has not happened yet this process.
func (m *legacyMigrator) Run() {
	m.once.Do(m.migrate)
}

func (m *legacyMigrator) migrate() {
	if m.path == "" {
		return
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		// Nothing to migrate.
		return
	}

	var legacy legacyTokenFile
	if err := json.Unmarshal(data, &legacy); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("legacy credential file is unreadable, discarding it")
		m.remove()
		return
	}

	if legacy.Token == "" || !legacy.Expiry.After(m.now()) {
		m.log.Debug().Str("path", m.path).Msg("legacy credential is absent or expired, discarding it")
		m.remove()
		return
	}

	if err := m.store.adoptLegacy(legacy.Token, legacy.Refresh, legacy.Expiry); err != nil {
		m.log.Warn().Err(err).Msg("failed to adopt legacy credential")
		return
	}

	m.log.Info().Str("path", m.path).Msg("migrated legacy credential")
	m.remove()
}

func (m *legacyMigrator) remove() {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		m.log.Warn().Err(err).Str("path", m.path).Msg("failed to remove legacy credential file")
	}
}
