package sessionstate

import "sync"

// Broadcaster synchronizes session state across managers, the way
// storage events keep browser tabs in agreement: when one tab logs in
// or out, the others follow without each re-checking the gateway.
type Broadcaster struct {
	mu      sync.Mutex
	members []*Manager
}

// Attach adds a manager to the broadcast group.
func (b *Broadcaster) Attach(m *Manager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members = append(b.members, m)
}

// Announce pushes a session change to every attached manager.
func (b *Broadcaster) Announce(s Session) {
	b.mu.Lock()
	members := append([]*Manager(nil), b.members...)
	b.mu.Unlock()

	for _, m := range members {
		m.SetSession(s)
	}
}
