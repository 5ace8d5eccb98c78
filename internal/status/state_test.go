package status

import (
	"context"
	"testing"
	"time"

	"github.com/lfelipe/studyhall/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want %s", m.Current(), Booting)
	}
}

func TestValidTransitions(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Connecting, Live, Offline, Connecting, Live, Offline, Live, SignedOut, Connecting}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) from %s error = %v", s, m.Current(), err)
		}
	}
	if m.Current() != Connecting {
		t.Errorf("final state = %s, want %s", m.Current(), Connecting)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Live); err == nil {
		t.Error("Booting -> Live should be invalid")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	sub := b.Subscribe("session.", 4)
	defer sub.Close()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-sub.C():
		change, ok := evt.Payload.(StatusChange)
		if !ok || change.From != Booting || change.To != Connecting {
			t.Errorf("payload = %#v, want Booting->Connecting", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no status change event")
	}
}

func TestMonitorFollowsRemoteEvents(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	mo := NewMonitor(m, b)
	mo.Start(context.Background())
	defer mo.Stop()

	b.Publish(bus.NewEvent(bus.KindRemoteUp, "messages"))
	waitForState(t, m, Live)

	b.Publish(bus.NewEvent(bus.KindRemoteDown, "messages"))
	waitForState(t, m, Offline)

	// Duplicate events are absorbed without invalid transitions.
	b.Publish(bus.NewEvent(bus.KindRemoteDown, "groups"))
	time.Sleep(50 * time.Millisecond)
	if m.Current() != Offline {
		t.Errorf("state = %s, want %s", m.Current(), Offline)
	}
}

func TestMonitorFollowsIdentity(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	if err := m.Transition(SignedOut); err != nil {
		t.Fatal(err)
	}

	mo := NewMonitor(m, b)
	mo.Start(context.Background())
	defer mo.Stop()

	b.Publish(bus.NewEvent(bus.KindIdentityChanged, true))
	waitForState(t, m, Connecting)

	b.Publish(bus.NewEvent(bus.KindIdentityChanged, false))
	waitForState(t, m, SignedOut)
}

func waitForState(t *testing.T, m *Machine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Current() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.Current(), want)
}
