package status

import (
	"testing"
	"time"

	"github.com/vlad23451/syrup/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitionChain(t *testing.T) {
	m := NewMachine(nil)
	chain := []State{Connecting, Online, Reconnecting, Connecting, Online, Closed}
	for _, s := range chain {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
	if m.Current() != Closed {
		t.Errorf("final state = %s, want CLOSED", m.Current())
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Online); err == nil {
		t.Error("BOOTING -> ONLINE should be invalid")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Closed)
	for _, s := range []State{Booting, Connecting, Online, Error} {
		if err := m.Transition(s); err == nil {
			t.Errorf("CLOSED -> %s should be invalid", s)
		}
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("gateway.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v, want BOOTING->CONNECTING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no status change event published")
	}
}
