package sessionkit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies a session lifecycle event.
type EventKind int

const (
	// EventLoggedIn fires after a successful login.
	EventLoggedIn EventKind = iota

	// EventLoggedOut fires after an explicit logout, once the local
	// credential has been cleared.
	EventLoggedOut

	// EventTokenRefreshed fires after a successful credential refresh.
	EventTokenRefreshed

	// EventSessionEnded fires exactly once when the session becomes
	// unrecoverable (terminal refresh failure). UI collaborators are
	// expected to redirect to a login surface; the session itself performs
	// no navigation.
	EventSessionEnded

	// EventModeDegraded fires when secure-cookie storage could not be set
	// up and the session fell back to local credential storage.
	EventModeDegraded
)

func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged-in"
	case EventLoggedOut:
		return "logged-out"
	case EventTokenRefreshed:
		return "token-refreshed"
	case EventSessionEnded:
		return "session-ended"
	case EventModeDegraded:
		return "mode-degraded"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on session lifecycle changes. Err is set
// for EventSessionEnded and EventModeDegraded.
type Event struct {
	Kind EventKind
	Err  error
}

// sessionEndedGuardWindow is how long re-entrant session-ended signals are
// suppressed while cleanup from the first one may still be running.
const sessionEndedGuardWindow = 2 * time.Second

// broadcaster fans session events out to subscribers. It replaces the
// browser-style global custom events with an explicit subscription surface
// owned by the session.
type broadcaster struct {
	log zerolog.Logger

	// ending suppresses duplicate session-ended signals. This is a busy
	// flag with a timed reset, not a lock: a second 401 can arrive while
	// cleanup from the first is still running, and both must not broadcast.
	ending      atomic.Bool
	guardWindow time.Duration

	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func newBroadcaster(log zerolog.Logger) *broadcaster {
	return &broadcaster{
		log:         log,
		guardWindow: sessionEndedGuardWindow,
		subs:        make(map[int]func(Event)),
	}
}

// subscribe registers fn and returns a cancel func that removes it.
func (b *broadcaster) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// publish delivers ev to every current subscriber.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	b.log.Debug().Stringer("event", ev.Kind).Msg("session event")
	for _, fn := range fns {
		fn(ev)
	}
}

// sessionEnded publishes EventSessionEnded at most once per guard window.
func (b *broadcaster) sessionEnded(err error) {
	if !b.ending.CompareAndSwap(false, true) {
		b.log.Debug().Msg("session-ended already signalled, suppressing duplicate")
		return
	}
	time.AfterFunc(b.guardWindow, func() {
		b.ending.Store(false)
	})

	b.publish(Event{Kind: EventSessionEnded, Err: err})
}
