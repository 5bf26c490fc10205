package sessionkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAuthPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		body        string
		wantAccess  string
		wantRefresh string
		wantExpiry  time.Time
		wantErr     string
	}{
		{
			name:        "bare shape",
			body:        `{"access_token":"access-token-123456","refresh_token":"refresh-1","token_type":"Bearer","token_expiry":3600}`,
			wantAccess:  "access-token-123456",
			wantRefresh: "refresh-1",
			wantExpiry:  now.Add(time.Hour),
		},
		{
			name:        "bare shape with expires_in",
			body:        `{"access_token":"access-token-123456","refresh_token":"refresh-1","expires_in":1800}`,
			wantAccess:  "access-token-123456",
			wantRefresh: "refresh-1",
			wantExpiry:  now.Add(30 * time.Minute),
		},
		{
			name:        "wrapped envelope",
			body:        `{"success":true,"data":{"access_token":"access-token-123456","refresh_token":"refresh-2","token_expiry":3600}}`,
			wantAccess:  "access-token-123456",
			wantRefresh: "refresh-2",
			wantExpiry:  now.Add(time.Hour),
		},
		{
			name:       "secure cookie shape carries only expiry",
			body:       `{"success":true,"data":{"token_expiry":3600}}`,
			wantAccess: "",
			wantExpiry: now.Add(time.Hour),
		},
		{
			name:    "wrapped rejection",
			body:    `{"success":false,"message":"bad credentials"}`,
			wantErr: "bad credentials",
		},
		{
			name:    "wrapped rejection without message",
			body:    `{"success":false}`,
			wantErr: "auth request rejected",
		},
		{
			name:    "access token too short",
			body:    `{"access_token":"short","token_expiry":3600}`,
			wantErr: "access_token is too short",
		},
		{
			name:    "no tokens and no expiry",
			body:    `{"success":true,"data":{}}`,
			wantErr: "neither tokens nor a positive expiry",
		},
		{
			name:    "not json",
			body:    `<html>nope</html>`,
			wantErr: "failed to parse token response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := normalizeAuthPayload([]byte(tt.body), now)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantAccess, tok.AccessToken)
			require.Equal(t, tt.wantRefresh, tok.RefreshToken)
			require.True(t, tok.Expiry.Equal(tt.wantExpiry), "expiry = %v, want %v", tok.Expiry, tt.wantExpiry)
		})
	}
}

func TestValidateTokenResponse(t *testing.T) {
	tests := []struct {
		name        string
		accessToken string
		tokenType   string
		expiresIn   int
		wantErr     string
	}{
		{
			name:        "valid token response",
			accessToken: "valid-access-token-123456",
			tokenType:   "Bearer",
			expiresIn:   3600,
		},
		{
			name:        "valid token with empty type (optional field)",
			accessToken: "valid-access-token-123456",
			tokenType:   "",
			expiresIn:   3600,
		},
		{
			name:        "empty access token",
			accessToken: "",
			tokenType:   "Bearer",
			expiresIn:   3600,
			wantErr:     "access_token is empty",
		},
		{
			name:        "access token too short",
			accessToken: "short",
			tokenType:   "Bearer",
			expiresIn:   3600,
			wantErr:     "access_token is too short",
		},
		{
			name:        "zero expires_in",
			accessToken: "valid-access-token-123456",
			tokenType:   "Bearer",
			expiresIn:   0,
			wantErr:     "expires_in must be positive",
		},
		{
			name:        "negative expires_in",
			accessToken: "valid-access-token-123456",
			tokenType:   "Bearer",
			expiresIn:   -3600,
			wantErr:     "expires_in must be positive",
		},
		{
			name:        "invalid token type",
			accessToken: "valid-access-token-123456",
			tokenType:   "Basic",
			expiresIn:   3600,
			wantErr:     "unexpected token_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTokenResponse(tt.accessToken, tt.tokenType, tt.expiresIn)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
