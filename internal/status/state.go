package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vlad23451/syrup/internal/bus"
)

// State represents the gateway connection state.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Closed       State = "CLOSED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. Degraded means the
// socket is down but the REST collaborators still work, so history loads
// keep functioning while sends fail.
var validTransitions = map[State][]State{
	Booting:      {Connecting, Closed, Error},
	Connecting:   {Online, Reconnecting, Closed, Error},
	Online:       {Reconnecting, Closed, Error},
	Reconnecting: {Connecting, Degraded, Closed, Error},
	Degraded:     {Connecting, Closed, Error},
	Closed:       {},
	Error:        {Booting},
}

// Machine tracks and enforces gateway connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.KindGatewayStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
