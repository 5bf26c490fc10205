package sessionkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Auth endpoints on the API origin.
const (
	pathLogin         = "/auth/login"
	pathRefresh       = "/auth/refresh"
	pathLogout        = "/auth/logout"
	pathCookieInstall = "/auth/cookie-install"
	pathSecureCheck   = "/auth/secure-check"
	pathCSRFToken     = "/csrf-token"
)

// Mode is how the session holds its credentials.
type Mode int

const (
	// ModeLocalFallback holds both tokens client-side and attaches the
	// access token as a bearer header on every request.
	ModeLocalFallback Mode = iota

	// ModeSecureCookie holds tokens only as server-set httpOnly cookies.
	// The client keeps just the expiry and a liveness flag.
	ModeSecureCookie
)

func (m Mode) String() string {
	switch m {
	case ModeSecureCookie:
		return "secure-cookie"
	default:
		return "local-fallback"
	}
}

// credentialRecord is the persisted form of a credential. In secure-cookie
// mode only ExpiresAt and Alive are ever populated.
type credentialRecord struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Mode         string    `json:"mode"`
	Alive        bool      `json:"alive,omitempty"`
}

// credentialFile maps profile name -> record so several admin profiles can
// share one file.
type credentialFile struct {
	Profiles map[string]*credentialRecord `json:"profiles"`
}

// ErrorResponse is the error payload returned by the auth endpoints.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// tokenPayload is the raw token response body. The same shape is sometimes
// wrapped in a {success, data} envelope depending on the backend revision;
// normalizeAuthPayload accepts both.
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	TokenExpiry  int    `json:"token_expiry"`
	ExpiresIn    int    `json:"expires_in"`
}

// envelope is the wrapped response variant.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ttlSeconds returns whichever TTL field the backend populated.
func (p *tokenPayload) ttlSeconds() int {
	if p.TokenExpiry > 0 {
		return p.TokenExpiry
	}
	return p.ExpiresIn
}

// normalizeAuthPayload parses a login/refresh response body, unwrapping the
// {success, data} envelope when present, and returns an oauth2.Token with an
// absolute expiry computed from now. In secure-cookie mode the server sets
// the tokens as cookies itself, so AccessToken and RefreshToken may be empty;
// callers decide whether that is acceptable for their mode.
func normalizeAuthPayload(body []byte, now time.Time) (*oauth2.Token, error) {
	raw := body

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil {
		if !*env.Success {
			if env.Message != "" {
				return nil, fmt.Errorf("auth request rejected: %s", env.Message)
			}
			return nil, errors.New("auth request rejected")
		}
		if len(env.Data) > 0 {
			raw = env.Data
		}
	}

	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	ttl := payload.ttlSeconds()
	if payload.AccessToken != "" {
		if err := validateTokenResponse(payload.AccessToken, payload.TokenType, ttl); err != nil {
			return nil, fmt.Errorf("invalid token response: %w", err)
		}
	} else if ttl <= 0 {
		// Cookie-mode success still has to tell us when the session expires.
		return nil, fmt.Errorf("token response carries neither tokens nor a positive expiry (got %d)", ttl)
	}

	return &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Expiry:       now.Add(time.Duration(ttl) * time.Second),
	}, nil
}

// validateTokenResponse validates a token response carrying an access token.
func validateTokenResponse(accessToken, tokenType string, expiresIn int) error {
	if accessToken == "" {
		return errors.New("access_token is empty")
	}

	if len(accessToken) < 10 {
		return fmt.Errorf("access_token is too short (length: %d)", len(accessToken))
	}

	if expiresIn <= 0 {
		return fmt.Errorf("expires_in must be positive, got: %d", expiresIn)
	}

	// Token type is optional, but if present, should be "Bearer"
	if tokenType != "" && tokenType != "Bearer" {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", tokenType)
	}

	return nil
}
