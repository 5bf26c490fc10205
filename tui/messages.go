package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgCredentialFound signals that a stored credential was restored.
type MsgCredentialFound struct{ Mode string }

// MsgCredentialValid signals that the restored credential is still live.
type MsgCredentialValid struct{ ExpiresIn time.Duration }

// MsgCredentialExpired signals that the restored credential has expired.
type MsgCredentialExpired struct{}

// MsgCredentialNotFound signals that no credential was found (fresh login).
type MsgCredentialNotFound struct{}

// MsgLoggingIn signals that a login attempt has started.
type MsgLoggingIn struct{}

// MsgLoginOK signals a successful login and the resulting storage mode.
type MsgLoginOK struct{ Mode string }

// MsgLoginFailed signals that the login attempt failed.
type MsgLoginFailed struct{ Err error }

// MsgRefreshing signals that a credential refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the credential was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that the credential refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgModeDegraded signals a fall back from secure-cookie to local storage.
type MsgModeDegraded struct{ Err error }

// MsgCallingAPI signals that a demo API call is in flight.
type MsgCallingAPI struct {
	Method string
	Path   string
}

// MsgAPICallOK signals that the API call succeeded.
type MsgAPICallOK struct{ Status int }

// MsgAPICallFailed signals that the API call failed.
type MsgAPICallFailed struct{ Err error }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgCSRFRejected signals that the anti-forgery token was rejected and is
// being reacquired.
type MsgCSRFRejected struct{}

// MsgSessionEnded signals that the session is unrecoverable.
type MsgSessionEnded struct{ Err error }

// MsgLoggedOut signals that the session was logged out and cleared.
type MsgLoggedOut struct{}

// MsgDone signals successful completion of the demo flow.
type MsgDone struct {
	Mode      string
	ExpiresAt time.Time
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
