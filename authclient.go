package sessionkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"golang.org/x/oauth2"
)

// Timeout configuration for the auth endpoints
const (
	authRequestTimeout = 10 * time.Second
	csrfFetchTimeout   = 10 * time.Second
	probeTimeout       = 5 * time.Second
)

// defaultCSRFTTL applies when the server omits expires_at on the token.
const defaultCSRFTTL = 30 * time.Minute

// authClient talks to the auth endpoints directly, bypassing the request
// pipeline. A refresh or anti-forgery bootstrap call must never re-enter the
// pipeline's own interceptors, so this is a separate client by construction,
// not a flag on the pipeline.
type authClient struct {
	baseURL string
	client  *retry.Client
	now     func() time.Time
}

// token performs a form POST against a token-issuing endpoint (login or
// refresh) and returns the normalized token. bearer, when non-empty, is sent
// as the Authorization header; in secure-cookie mode authorization rides on
// cookies instead.
func (a *authClient) token(ctx context.Context, path, bearer string, form url.Values) (*oauth2.Token, error) {
	reqCtx, cancel := context.WithTimeout(ctx, authRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		a.baseURL+path,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.client.DoWithContext(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			if errResp.Error == "invalid_grant" || errResp.Error == "invalid_token" {
				return nil, ErrRefreshTokenExpired
			}
			return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		}
	}

	return normalizeAuthPayload(body, a.now())
}

// csrfResponse is the body of GET /csrf-token.
type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
	ExpiresAt string `json:"expires_at"`
}

// fetchCSRF fetches a fresh anti-forgery token.
func (a *authClient) fetchCSRF(ctx context.Context) (string, time.Time, error) {
	reqCtx, cancel := context.WithTimeout(ctx, csrfFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.baseURL+pathCSRFToken, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.DoWithContext(reqCtx, req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("csrf token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf(
			"csrf token request failed with status %d: %s",
			resp.StatusCode,
			string(body),
		)
	}

	var csrfResp csrfResponse
	if err := json.Unmarshal(body, &csrfResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse csrf token response: %w", err)
	}
	if csrfResp.CSRFToken == "" {
		return "", time.Time{}, fmt.Errorf("csrf token response is missing csrf_token")
	}

	expiresAt := a.now().Add(defaultCSRFTTL)
	if csrfResp.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, csrfResp.ExpiresAt); err == nil {
			expiresAt = t
		}
	}

	return csrfResp.CSRFToken, expiresAt, nil
}

// secureCheck probes whether the server supports secure-cookie credential
// storage. Anything other than a clean 200 means no.
func (a *authClient) secureCheck(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.baseURL+pathSecureCheck, nil)
	if err != nil {
		return false
	}

	resp, err := a.client.DoWithContext(reqCtx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// installCookies asks the server to re-issue the given tokens as httpOnly
// cookies on this client's jar.
func (a *authClient) installCookies(ctx context.Context, access, refresh string) error {
	reqCtx, cancel := context.WithTimeout(ctx, authRequestTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		a.baseURL+pathCookieInstall,
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.DoWithContext(reqCtx, req)
	if err != nil {
		return fmt.Errorf("cookie install request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cookie install failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
