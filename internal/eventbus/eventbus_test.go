package eventbus

import (
	"errors"
	"testing"
)

type recorder struct {
	name  string
	calls *[]string
	err   error
}

func (r *recorder) HandleSignal(sig Signal, sender any) error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

func TestEmitOrder(t *testing.T) {
	bus := New()
	var calls []string
	for _, n := range []string{"a", "b", "c"} {
		bus.Connect(WorldStarted, &recorder{name: n, calls: &calls})
	}

	if err := bus.Emit(WorldStarted, nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestEmitDeliversToAllAndReturnsFirstError(t *testing.T) {
	bus := New()
	var calls []string
	errBroken := errors.New("broken subscriber")
	errLater := errors.New("later subscriber")

	bus.Connect(WorldStopped, &recorder{name: "1", calls: &calls})
	bus.Connect(WorldStopped, &recorder{name: "2", calls: &calls, err: errBroken})
	bus.Connect(WorldStopped, &recorder{name: "3", calls: &calls, err: errLater})

	err := bus.Emit(WorldStopped, "alpha")
	if !errors.Is(err, errBroken) {
		t.Fatalf("Emit error = %v, want %v", err, errBroken)
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %v, want all three subscribers invoked", calls)
	}
}

func TestEmitUnknownSignal(t *testing.T) {
	bus := New()
	if err := bus.Emit(PluginUninstalled, "guard"); err != nil {
		t.Errorf("Emit with no subscribers = %v, want nil", err)
	}
}

func TestConnectIdempotent(t *testing.T) {
	bus := New()
	var calls []string
	r := &recorder{name: "r", calls: &calls}

	bus.Connect(WorldUninstalled, r)
	bus.Connect(WorldUninstalled, r)

	if got := bus.SubscriberCount(WorldUninstalled); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
	_ = bus.Emit(WorldUninstalled, nil)
	if len(calls) != 1 {
		t.Errorf("slot called %d times, want 1", len(calls))
	}
}

func TestConnectFuncsNotDeduplicated(t *testing.T) {
	bus := New()
	n := 0
	f := SlotFunc(func(Signal, any) error { n++; return nil })

	bus.Connect(WorldStarted, f)
	bus.Connect(WorldStarted, f)
	_ = bus.Emit(WorldStarted, nil)

	if n != 2 {
		t.Errorf("func slot called %d times, want 2", n)
	}
}

func TestDisconnect(t *testing.T) {
	bus := New()
	var calls []string
	a := &recorder{name: "a", calls: &calls}
	b := &recorder{name: "b", calls: &calls}
	bus.Connect(WorldStarted, a)
	bus.Connect(WorldStarted, b)

	if !bus.Disconnect(WorldStarted, a) {
		t.Fatal("Disconnect(a) = false")
	}
	if bus.Disconnect(WorldStarted, a) {
		t.Error("second Disconnect(a) = true")
	}
	_ = bus.Emit(WorldStarted, nil)
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want [b]", calls)
	}
}

func TestSenderPassedThrough(t *testing.T) {
	bus := New()
	var got any
	bus.Connect(WorldAboutToStop, SlotFunc(func(sig Signal, sender any) error {
		if sig != WorldAboutToStop {
			t.Errorf("sig = %q", sig)
		}
		got = sender
		return nil
	}))
	_ = bus.Emit(WorldAboutToStop, "alpha")
	if got != "alpha" {
		t.Errorf("sender = %v, want alpha", got)
	}
}

func TestConnectDuringEmit(t *testing.T) {
	bus := New()
	n := 0
	bus.Connect(WorldStarted, SlotFunc(func(Signal, any) error {
		bus.Connect(WorldStarted, SlotFunc(func(Signal, any) error { n++; return nil }))
		return nil
	}))

	_ = bus.Emit(WorldStarted, nil)
	if n != 0 {
		t.Errorf("slot connected during Emit was called %d times, want 0", n)
	}
}
