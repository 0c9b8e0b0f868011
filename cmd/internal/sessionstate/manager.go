package sessionstate

import (
	"context"
	"encoding/json"
	"sync"
)

// State is what a UI binds to. Loading is true until the first check
// completes; until then neither "authenticated" nor "anonymous" should
// be rendered.
type State struct {
	Loading       bool
	Authenticated bool
	User          json.RawMessage
}

// SessionChecker is the slice of Client the manager needs.
type SessionChecker interface {
	CheckSession(ctx context.Context) (Session, error)
}

// Manager holds the current session state and notifies subscribers on
// every change. It starts in the loading state.
type Manager struct {
	checker SessionChecker

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int
	gen     uint64
}

// NewManager wires a manager to a session checker.
func NewManager(checker SessionChecker) *Manager {
	return &Manager{
		checker: checker,
		state:   State{Loading: true},
		subs:    make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers for state changes. The channel always carries the
// latest state: a slow reader skips intermediate snapshots instead of
// blocking the manager. The cancel func releases the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Check asks the gateway for the session and applies the answer. A check
// that was overtaken by a newer one (or by an explicit SetSession or
// Reset) discards its result, so stale introspection answers never
// clobber fresher state. A failed check resolves to anonymous rather
// than staying in loading forever.
func (m *Manager) Check(ctx context.Context) State {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	s, err := m.checker.CheckSession(ctx)
	if err != nil {
		s = Session{Authenticated: false}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return m.state
	}
	m.setLocked(sessionToState(s))
	return m.state
}

// SetSession applies an externally observed session change, such as a
// broadcast from another manager.
func (m *Manager) SetSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.setLocked(sessionToState(s))
}

// Reset drops to anonymous immediately, typically right after logout.
func (m *Manager) Reset() {
	m.SetSession(Session{Authenticated: false})
}

func sessionToState(s Session) State {
	st := State{Authenticated: s.Authenticated}
	if s.Authenticated {
		st.User = s.User
	}
	return st
}

func (m *Manager) setLocked(st State) {
	if statesEqual(m.state, st) {
		return
	}
	m.state = st
	for _, ch := range m.subs {
		// Replace a pending snapshot instead of blocking.
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func statesEqual(a, b State) bool {
	return a.Loading == b.Loading &&
		a.Authenticated == b.Authenticated &&
		string(a.User) == string(b.User)
}
