package sessionkit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "https origin", url: "https://admin.example.com"},
		{name: "http origin", url: "http://localhost:8080"},
		{name: "empty", url: "", wantErr: "cannot be empty"},
		{name: "missing scheme", url: "admin.example.com", wantErr: "scheme must be http or https"},
		{name: "wrong scheme", url: "ftp://admin.example.com", wantErr: "scheme must be http or https"},
		{name: "no host", url: "http://", wantErr: "must include a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBaseURL(tt.url)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvPriority(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://admin.example.com")
	t.Setenv("SESSION_PROFILE", "staging")
	t.Setenv("CREDENTIAL_FILE", "/tmp/creds.json")
	t.Setenv("DISABLE_CSRF", "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://admin.example.com", cfg.BaseURL)
	require.Equal(t, "staging", cfg.Profile)
	require.Equal(t, "/tmp/creds.json", cfg.CredentialFile)
	require.True(t, cfg.DisableCSRF)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SESSION_PROFILE", "")
	t.Setenv("CREDENTIAL_FILE", "")
	t.Setenv("DISABLE_CSRF", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.BaseURL)
	require.Equal(t, defaultProfile, cfg.Profile)
	require.Equal(t, defaultCredentialFile, cfg.CredentialFile)
	require.False(t, cfg.DisableCSRF)
}

func TestConfigValidate_RejectsBadURL(t *testing.T) {
	cfg := Config{BaseURL: "not a url"}
	require.Error(t, cfg.validate())
}

func TestConfigValidate_FillsDefaults(t *testing.T) {
	cfg := Config{BaseURL: "https://admin.example.com"}
	require.NoError(t, cfg.validate())
	require.Equal(t, defaultProfile, cfg.Profile)
	require.Equal(t, defaultCredentialFile, cfg.CredentialFile)
}
