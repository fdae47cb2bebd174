package syncer

import "sync"

// ConnectivitySignal is an observable boolean describing whether the device
// can reach the network. The coordinator subscribes to it and never polls a
// platform API directly; the mobile shell feeds the signal.
type ConnectivitySignal interface {
	// Online returns the current state.
	Online() bool
	// Subscribe returns a channel receiving every state change and a
	// cancel func releasing the subscription.
	Subscribe() (<-chan bool, func())
}

// Monitor is the standard ConnectivitySignal implementation, driven by
// Set calls from the platform layer.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int64]chan bool
	nextID int64
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int64]chan bool),
	}
}

// Online implements ConnectivitySignal.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the new state and notifies subscribers on change.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// Subscriber is behind; it will read the latest state via
			// Online() when it catches up.
		}
	}
}

// Subscribe implements ConnectivitySignal.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	ch := make(chan bool, 4)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
