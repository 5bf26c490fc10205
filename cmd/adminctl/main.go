package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/go-authgate/sessionkit"
	"github.com/go-authgate/sessionkit/tui"
)

var (
	flagBaseURL  = flag.String("base-url", "", "API origin (default: http://localhost:8080 or API_BASE_URL env)")
	flagProfile  = flag.String("profile", "", "credential profile (default: default or SESSION_PROFILE env)")
	flagUsername = flag.String("username", "", "admin username (or ADMIN_USERNAME env)")
	flagPassword = flag.String("password", "", "admin password (or ADMIN_PASSWORD env)")
	flagCall     = flag.String("call", "/admin/profile", "demo endpoint to call through the session")
	flagLogout   = flag.Bool("logout", false, "log out and clear the stored credential before exiting")
)

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	flag.Parse()

	cfg, err := sessionkit.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *flagBaseURL != "" {
		cfg.BaseURL = *flagBaseURL
	}
	if *flagProfile != "" {
		cfg.Profile = *flagProfile
	}

	username := getConfig(*flagUsername, "ADMIN_USERNAME", "")
	password := getConfig(*flagPassword, "ADMIN_PASSWORD", "")

	if isTTY() {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner()
		runErr := run(cfg, username, password, d, zerolog.Nop())
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			os.Exit(1)
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		if err := run(cfg, username, password, d, log); err != nil {
			os.Exit(1)
		}
	}
}

func run(cfg sessionkit.Config, username, password string, d tui.Displayer, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := sessionkit.New(ctx, cfg, sessionkit.WithLogger(log))
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer sess.Close()

	unsubscribe := sess.Subscribe(func(ev sessionkit.Event) {
		switch ev.Kind {
		case sessionkit.EventTokenRefreshed:
			d.RefreshOK()
		case sessionkit.EventSessionEnded:
			d.SessionEnded(ev.Err)
		case sessionkit.EventModeDegraded:
			d.ModeDegraded(ev.Err)
		}
	})
	defer unsubscribe()

	// Reuse a stored credential when one survives from a previous run.
	if sess.State() == sessionkit.StateAuthenticated {
		d.CredentialFound(sess.Mode().String())
		if remaining := time.Until(sess.ExpiresAt()); remaining > 0 {
			d.CredentialValid(remaining)
		} else {
			d.CredentialExpired()
		}
	} else {
		d.CredentialNotFound()
		if username == "" || password == "" {
			err := errors.New("no stored credential and ADMIN_USERNAME / ADMIN_PASSWORD not set")
			d.Fatal(err)
			return err
		}
		d.LoggingIn()
		if err := sess.Login(ctx, username, password); err != nil {
			d.LoginFailed(err)
			d.Fatal(err)
			return err
		}
		d.LoginOK(sess.Mode().String())
	}

	// One call through the pipeline; an expired credential refreshes on the
	// way, a 401 refreshes and retries once.
	d.CallingAPI(http.MethodGet, *flagCall)
	req, err := sess.NewRequest(ctx, http.MethodGet, *flagCall, nil)
	if err != nil {
		d.Fatal(err)
		return err
	}
	resp, err := sess.Do(req)
	if err != nil {
		d.APICallFailed(err)
		d.Fatal(err)
		return err
	}
	resp.Body.Close()
	d.APICallOK(resp.StatusCode)

	if *flagLogout {
		if err := sess.Logout(ctx); err != nil {
			d.Fatal(err)
			return err
		}
		d.LoggedOut()
		return nil
	}

	d.Done(sess.Mode().String(), sess.ExpiresAt())
	return nil
}
