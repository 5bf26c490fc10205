package sessionkit

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

// Default file locations relative to the working directory.
const (
	defaultCredentialFile = ".sessionkit-credentials.json"
	defaultLegacyFile     = ".admin-token.json"
	defaultProfile        = "default"
)

// Config holds everything a Session needs to reach the admin API.
type Config struct {
	// BaseURL is the API origin, e.g. "https://admin.example.com".
	BaseURL string

	// Profile selects the entry in the credential file. Several admin
	// profiles can share one file. Defaults to "default".
	Profile string

	// CredentialFile is where fallback-mode credentials are persisted.
	CredentialFile string

	// LegacyCredentialFile is the deprecated pre-profile token file that is
	// migrated (and removed) on startup if present.
	LegacyCredentialFile string

	// DisableCSRF turns the anti-forgery guard into a no-op, for backends
	// that do not issue anti-forgery tokens.
	DisableCSRF bool
}

// LoadConfig builds a Config from the environment with priority env > default.
// A .env file is loaded first if present.
func LoadConfig() (Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:              getEnv("API_BASE_URL", "http://localhost:8080"),
		Profile:              getEnv("SESSION_PROFILE", defaultProfile),
		CredentialFile:       getEnv("CREDENTIAL_FILE", defaultCredentialFile),
		LegacyCredentialFile: getEnv("LEGACY_CREDENTIAL_FILE", defaultLegacyFile),
		DisableCSRF:          os.Getenv("DISABLE_CSRF") == "1",
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) validate() error {
	if err := validateBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.Profile == "" {
		c.Profile = defaultProfile
	}
	if c.CredentialFile == "" {
		c.CredentialFile = defaultCredentialFile
	}
	return nil
}

// validateBaseURL validates that the API origin is properly formatted.
func validateBaseURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("base URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}
