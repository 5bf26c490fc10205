package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the expiry countdown.
type tickMsg time.Time

// state represents the current phase of the session demo.
type state int

const (
	stateInit       state = iota
	stateLoggingIn        // login request in flight
	stateRefreshing       // credential refresh in flight
	stateCalling          // demo API call in flight
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for the session demo TUI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	// In-flight API call info
	callMethod string
	callPath   string

	// Success / error display
	mode      string
	expiresAt time.Time
	remaining time.Duration
	errMsg    string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

// Lipgloss styles, defined once at package level.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.remaining = max(time.Until(m.expiresAt), 0)
		if m.remaining > 0 && m.state == stateSuccess {
			return m, tickAfterSecond()
		}
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── Session lifecycle messages ───────────────────────────────────────────

	case MsgBanner:
		return m, nil

	case MsgCredentialFound:
		m.addStatus(statusOK, fmt.Sprintf("Found stored credential (%s mode)", msg.Mode))
		return m, nil

	case MsgCredentialValid:
		m.addStatus(statusOK, fmt.Sprintf(
			"Credential is still valid (%s remaining)",
			formatDuration(msg.ExpiresIn),
		))
		return m, nil

	case MsgCredentialExpired:
		m.addStatus(statusWarn, "Credential expired, will refresh on first use")
		return m, nil

	case MsgCredentialNotFound:
		m.addStatus(statusInfo, "No stored credential, logging in")
		return m, nil

	case MsgLoggingIn:
		m.state = stateLoggingIn
		m.addStatus(statusInfo, "Logging in...")
		return m, nil

	case MsgLoginOK:
		m.addStatus(statusOK, fmt.Sprintf("Logged in (%s mode)", msg.Mode))
		return m, nil

	case MsgLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Login failed: %v", msg.Err))
		return m, nil

	case MsgRefreshing:
		m.state = stateRefreshing
		m.addStatus(statusInfo, "Refreshing credential...")
		return m, nil

	case MsgRefreshOK:
		m.addStatus(statusOK, "Credential refreshed successfully")
		return m, nil

	case MsgRefreshFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgModeDegraded:
		m.addStatus(statusWarn, fmt.Sprintf(
			"Secure-cookie storage unavailable, using local fallback: %v",
			msg.Err,
		))
		return m, nil

	case MsgCallingAPI:
		m.state = stateCalling
		m.callMethod = msg.Method
		m.callPath = msg.Path
		m.addStatus(statusInfo, fmt.Sprintf("Calling %s %s", msg.Method, msg.Path))
		return m, nil

	case MsgAPICallOK:
		m.addStatus(statusOK, fmt.Sprintf("API call successful (%d)", msg.Status))
		return m, nil

	case MsgAPICallFailed:
		m.addStatus(statusWarn, fmt.Sprintf("API call failed: %v", msg.Err))
		return m, nil

	case MsgAccessTokenRejected:
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, nil

	case MsgCSRFRejected:
		m.addStatus(statusWarn, "Anti-forgery token rejected, reacquiring...")
		return m, nil

	case MsgSessionEnded:
		m.addStatus(statusWarn, fmt.Sprintf("Session ended: %v", msg.Err))
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusOK, "Logged out, credential cleared")
		return m, nil

	case MsgDone:
		m.mode = msg.Mode
		m.expiresAt = msg.ExpiresAt
		m.remaining = max(time.Until(msg.ExpiresAt), 0)
		m.state = stateSuccess
		return m, tickAfterSecond()

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

// viewMain is shown during init, login, refresh, and the demo API call.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Admin Session  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateLoggingIn:
		b.WriteString(m.spinner.View())
		b.WriteString(" Logging in...\n")

	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing credential...\n")

	case stateCalling:
		b.WriteString(m.spinner.View())
		b.WriteString(fmt.Sprintf(" Calling %s %s...\n", m.callMethod, m.callPath))

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown once the session is established and exercised.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Session established"))
	b.WriteString("\n\n")

	b.WriteString(styleBold.Render("Mode:       "))
	b.WriteString(m.mode + "\n")

	b.WriteString(styleBold.Render("Expires In: "))
	b.WriteString(formatDuration(m.remaining) + "\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Session failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
