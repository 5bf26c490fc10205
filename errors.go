package sessionkit

import "errors"

// ErrRefreshTokenExpired indicates that the refresh token has expired or is invalid.
var ErrRefreshTokenExpired = errors.New("refresh token expired or invalid")

// ErrRefreshFailed indicates a terminal refresh failure. The credential has
// been cleared and the session-ended event raised by the time callers see it.
var ErrRefreshFailed = errors.New("token refresh failed")

// ErrAntiForgeryRejected indicates the server rejected the anti-forgery token
// twice in a row for the same request. The request is not retried a third time.
var ErrAntiForgeryRejected = errors.New("anti-forgery token rejected twice")

// ErrNoCredential indicates an operation that needs a stored credential found none.
var ErrNoCredential = errors.New("no credential available")

// ErrSessionClosed indicates the session has been disposed.
var ErrSessionClosed = errors.New("session is closed")
