package status

import (
	"context"

	"github.com/lfelipe/studyhall/internal/bus"
)

// Monitor drives the state machine from bus events: remote connectivity
// toggles Live/Offline, identity changes toggle Connecting/SignedOut.
type Monitor struct {
	machine *Machine
	bus     *bus.Bus
	cancel  context.CancelFunc
}

// NewMonitor creates a monitor for the given machine.
func NewMonitor(m *Machine, b *bus.Bus) *Monitor {
	return &Monitor{machine: m, bus: b}
}

// Start subscribes to remote.* and session.* events.
func (mo *Monitor) Start(ctx context.Context) {
	ctx, mo.cancel = context.WithCancel(ctx)
	remoteSub := mo.bus.Subscribe("remote.", 64)
	sessionSub := mo.bus.Subscribe(bus.KindIdentityChanged, 16)

	go func() {
		defer remoteSub.Close()
		defer sessionSub.Close()
		for {
			select {
			case evt := <-remoteSub.C():
				switch evt.Kind {
				case bus.KindRemoteUp:
					mo.to(Live)
				case bus.KindRemoteDown:
					mo.to(Offline)
				}
			case evt := <-sessionSub.C():
				signedIn, _ := evt.Payload.(bool)
				if signedIn {
					mo.to(Connecting)
				} else {
					mo.to(SignedOut)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the monitor.
func (mo *Monitor) Stop() {
	if mo.cancel != nil {
		mo.cancel()
	}
}

func (mo *Monitor) to(s State) {
	if mo.machine.Current() == s {
		return
	}
	_ = mo.machine.Transition(s)
}
