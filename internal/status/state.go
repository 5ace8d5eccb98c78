package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/lfelipe/studyhall/internal/bus"
)

// State represents the daemon's connection to the remote service.
type State string

const (
	Booting    State = "BOOTING"
	SignedOut  State = "SIGNED_OUT"
	Connecting State = "CONNECTING"
	Live       State = "LIVE"
	Offline    State = "OFFLINE" // serving mirrored data
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {SignedOut, Connecting, Error},
	SignedOut:  {Connecting, Error},
	Connecting: {Live, Offline, SignedOut, Error},
	Live:       {Offline, SignedOut, Error},
	Offline:    {Live, Connecting, SignedOut, Error},
	Error:      {Booting},
}

// Machine tracks and enforces connection state transitions.
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

// Transition attempts to move to a new state. Returns error if transition is invalid.
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
		m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{
			From: from,
			To:   to,
		}))
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
