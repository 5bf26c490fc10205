package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the session demo flow.
type Displayer interface {
	Banner()
	CredentialFound(mode string)
	CredentialValid(expiresIn time.Duration)
	CredentialExpired()
	CredentialNotFound()
	LoggingIn()
	LoginOK(mode string)
	LoginFailed(err error)
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	ModeDegraded(err error)
	CallingAPI(method, path string)
	APICallOK(status int)
	APICallFailed(err error)
	AccessTokenRejected()
	CSRFRejected()
	SessionEnded(err error)
	LoggedOut()
	Done(mode string, expiresAt time.Time)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w. Used when stderr is not a
// TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Admin Session Demo ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) CredentialFound(mode string) {
	fmt.Fprintf(p.w, "Found stored credential (%s mode)\n", mode)
}

func (p *PlainDisplayer) CredentialValid(expiresIn time.Duration) {
	fmt.Fprintf(p.w, "Credential is still valid (expires in %s)\n", expiresIn.Round(time.Second))
}

func (p *PlainDisplayer) CredentialExpired() {
	fmt.Fprintln(p.w, "Credential expired, it will refresh on first use...")
}

func (p *PlainDisplayer) CredentialNotFound() {
	fmt.Fprintln(p.w, "No stored credential, logging in...")
}

func (p *PlainDisplayer) LoggingIn() {
	fmt.Fprintln(p.w, "Logging in...")
}

func (p *PlainDisplayer) LoginOK(mode string) {
	fmt.Fprintf(p.w, "Logged in (%s mode)\n", mode)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing credential...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Credential refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) ModeDegraded(err error) {
	fmt.Fprintf(p.w, "Warning: secure-cookie storage unavailable, using local fallback: %v\n", err)
}

func (p *PlainDisplayer) CallingAPI(method, path string) {
	fmt.Fprintf(p.w, "Calling %s %s...\n", method, path)
}

func (p *PlainDisplayer) APICallOK(status int) {
	fmt.Fprintf(p.w, "API call successful (%d)\n", status)
}

func (p *PlainDisplayer) APICallFailed(err error) {
	fmt.Fprintf(p.w, "API call failed: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) CSRFRejected() {
	fmt.Fprintln(p.w, "Anti-forgery token rejected, reacquiring...")
}

func (p *PlainDisplayer) SessionEnded(err error) {
	fmt.Fprintf(p.w, "Session ended: %v\n", err)
	fmt.Fprintln(p.w, "Please log in again.")
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out, credential cleared.")
}

func (p *PlainDisplayer) Done(mode string, expiresAt time.Time) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Session Info:")
	fmt.Fprintf(p.w, "Mode:       %s\n", mode)
	fmt.Fprintf(p.w, "Expires In: %s\n", time.Until(expiresAt).Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                        {}
func (NoopDisplayer) CredentialFound(_ string)       {}
func (NoopDisplayer) CredentialValid(_ time.Duration) {}
func (NoopDisplayer) CredentialExpired()             {}
func (NoopDisplayer) CredentialNotFound()            {}
func (NoopDisplayer) LoggingIn()                     {}
func (NoopDisplayer) LoginOK(_ string)               {}
func (NoopDisplayer) LoginFailed(_ error)            {}
func (NoopDisplayer) Refreshing()                    {}
func (NoopDisplayer) RefreshOK()                     {}
func (NoopDisplayer) RefreshFailed(_ error)          {}
func (NoopDisplayer) ModeDegraded(_ error)           {}
func (NoopDisplayer) CallingAPI(_, _ string)         {}
func (NoopDisplayer) APICallOK(_ int)                {}
func (NoopDisplayer) APICallFailed(_ error)          {}
func (NoopDisplayer) AccessTokenRejected()           {}
func (NoopDisplayer) CSRFRejected()                  {}
func (NoopDisplayer) SessionEnded(_ error)           {}
func (NoopDisplayer) LoggedOut()                     {}
func (NoopDisplayer) Done(_ string, _ time.Time)     {}
func (NoopDisplayer) Fatal(_ error)                  {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) CredentialFound(mode string) {
	t.p.Send(MsgCredentialFound{Mode: mode})
}

func (t *ProgramDisplayer) CredentialValid(expiresIn time.Duration) {
	t.p.Send(MsgCredentialValid{ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) CredentialExpired() {
	t.p.Send(MsgCredentialExpired{})
}

func (t *ProgramDisplayer) CredentialNotFound() {
	t.p.Send(MsgCredentialNotFound{})
}

func (t *ProgramDisplayer) LoggingIn() {
	t.p.Send(MsgLoggingIn{})
}

func (t *ProgramDisplayer) LoginOK(mode string) {
	t.p.Send(MsgLoginOK{Mode: mode})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) ModeDegraded(err error) {
	t.p.Send(MsgModeDegraded{Err: err})
}

func (t *ProgramDisplayer) CallingAPI(method, path string) {
	t.p.Send(MsgCallingAPI{Method: method, Path: path})
}

func (t *ProgramDisplayer) APICallOK(status int) {
	t.p.Send(MsgAPICallOK{Status: status})
}

func (t *ProgramDisplayer) APICallFailed(err error) {
	t.p.Send(MsgAPICallFailed{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) CSRFRejected() {
	t.p.Send(MsgCSRFRejected{})
}

func (t *ProgramDisplayer) SessionEnded(err error) {
	t.p.Send(MsgSessionEnded{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Done(mode string, expiresAt time.Time) {
	t.p.Send(MsgDone{Mode: mode, ExpiresAt: expiresAt})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
