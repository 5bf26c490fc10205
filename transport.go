package sessionkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader    = "X-Request-ID"
	csrfRejectedHeader = "X-CSRF-Rejected"
	csrfRejectedCode   = "invalid_csrf_token"
)

// maxSniffBody bounds how much of an error response body is read when
// classifying it.
const maxSniffBody = 64 << 10

// pipeline wraps the transport with credential attachment and bounded
// recovery: one retry after a refreshed credential (401) and one retry after
// a reacquired anti-forgery token (403), never more. Transient network
// retries are the retry client's business, not the pipeline's.
type pipeline struct {
	client    *retry.Client
	store     *credentialStore
	guard     *antiForgeryGuard
	refresher *refreshCoordinator
	log       zerolog.Logger
}

// Do executes req with credentials attached. Auth-layer failures are handled
// here; domain-level statuses pass through untouched.
func (p *pipeline) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// A body without GetBody cannot be replayed, so such a request is
	// never retried.
	replayable := req.Body == nil || req.GetBody != nil

	// The logout call must not trigger a refresh: a refresh-then-retry of
	// logout against a dead session would loop.
	isLogout := req.Method == http.MethodPost && req.URL.Path == pathLogout

	// A held-but-expired credential refreshes before the request goes out,
	// so the common case costs one refresh instead of a doomed round trip.
	if !isLogout && p.store.hasCredential() && p.store.IsExpired() {
		if err := p.refresher.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	outreq, err := p.prepare(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	var authRetried, csrfRetried bool
	for {
		resp, err := p.client.DoWithContext(ctx, outreq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && replayable && !authRetried && !isLogout {
			authRetried = true
			if refreshErr := p.refresher.Refresh(ctx); refreshErr != nil {
				// Session-ended has already been signalled; the caller
				// gets the original 401 back.
				return resp, nil
			}
			p.log.Debug().Str("request_id", requestID).Msg("credential refreshed, retrying request")
			drainBody(resp)
			if outreq, err = p.prepare(ctx, req, requestID); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusForbidden && replayable {
			rejected, sniffErr := isCSRFRejection(resp)
			if sniffErr != nil {
				return nil, sniffErr
			}
			if rejected {
				if csrfRetried {
					drainBody(resp)
					return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrAntiForgeryRejected)
				}
				csrfRetried = true
				p.guard.Invalidate()
				p.log.Debug().Str("request_id", requestID).Msg("anti-forgery token rejected, reacquiring")
				drainBody(resp)
				if outreq, err = p.prepare(ctx, req, requestID); err != nil {
					return nil, err
				}
				continue
			}
		}

		return resp, nil
	}
}

// prepare clones req with a replayed body and fresh credential headers.
func (p *pipeline) prepare(ctx context.Context, req *http.Request, requestID string) (*http.Request, error) {
	outreq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		outreq.Body = body
	}

	if tok, ok := p.store.BearerToken(); ok && !p.store.IsExpired() {
		outreq.Header.Set("Authorization", "Bearer "+tok)
	}

	if err := p.guard.Attach(ctx, outreq); err != nil {
		return nil, fmt.Errorf("failed to attach anti-forgery token: %w", err)
	}

	outreq.Header.Set(requestIDHeader, requestID)
	return outreq, nil
}

// isCSRFRejection reports whether a 403 carries the anti-forgery rejection
// marker, either as a header or as the normalized error code in the body.
// The body is restored for the caller.
func isCSRFRejection(resp *http.Response) (bool, error) {
	if resp.Header.Get(csrfRejectedHeader) == "1" {
		return true, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffBody))
	if err != nil {
		resp.Body.Close()
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error == csrfRejectedCode {
		return true, nil
	}
	return false, nil
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxSniffBody))
	resp.Body.Close()
}
