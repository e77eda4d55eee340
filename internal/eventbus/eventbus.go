// Package eventbus provides the in-process signal bus for world and plugin
// lifecycle notifications.
//
// Delivery is synchronous: Emit calls every connected slot in registration
// order before returning. A failing slot never prevents the others from
// observing the signal; the first error is returned once all slots ran.
package eventbus

import (
	"reflect"
	"sync"
)

// Signal identifies a lifecycle notification.
type Signal string

const (
	WorldUninstalled  Signal = "world_uninstalled"
	WorldAboutToStart Signal = "world_about_to_start"
	WorldStarted      Signal = "world_started"
	WorldStartFailed  Signal = "world_start_failed"
	WorldAboutToStop  Signal = "world_about_to_stop"
	WorldStopped      Signal = "world_stopped"
	WorldStopFailed   Signal = "world_stop_failed"
	PluginUninstalled Signal = "plugin_uninstalled"
)

// Slot receives signals. The sender is the object the signal is about
// (a *world.World, a plugin name, ...).
type Slot interface {
	HandleSignal(sig Signal, sender any) error
}

// SlotFunc adapts a function to the Slot interface.
//
// Function values cannot be compared, so connecting the same SlotFunc twice
// registers it twice. Use a pointer receiver type when idempotent
// registration matters.
type SlotFunc func(sig Signal, sender any) error

// HandleSignal calls f.
func (f SlotFunc) HandleSignal(sig Signal, sender any) error {
	return f(sig, sender)
}

// Bus holds the subscriptions of one application run.
// Safe for concurrent use.
type Bus struct {
	mu    sync.RWMutex
	slots map[Signal][]Slot
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{slots: make(map[Signal][]Slot)}
}

// Connect subscribes slot to sig. Connecting a slot that is already
// connected to sig is a no-op. Only comparable slots are recognised again,
// so long-lived subscribers must be pointers (*world.Registry,
// *config.Manager, *plugin.Loader); a SlotFunc is added on every call.
func (b *Bus) Connect(sig Signal, slot Slot) {
	if slot == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.slots[sig] {
		if sameSlot(s, slot) {
			return
		}
	}
	b.slots[sig] = append(b.slots[sig], slot)
}

// Disconnect removes slot from sig. Reports whether it was connected.
func (b *Bus) Disconnect(sig Signal, slot Slot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	slots := b.slots[sig]
	for i, s := range slots {
		if sameSlot(s, slot) {
			b.slots[sig] = append(slots[:i:i], slots[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers sig to every connected slot in registration order.
// Slots connected or disconnected during delivery take effect on the
// next Emit.
func (b *Bus) Emit(sig Signal, sender any) error {
	b.mu.RLock()
	slots := append([]Slot(nil), b.slots[sig]...)
	b.mu.RUnlock()

	var first error
	for _, s := range slots {
		if err := s.HandleSignal(sig, sender); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SubscriberCount returns the number of slots connected to sig.
func (b *Bus) SubscriberCount(sig Signal) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots[sig])
}

// sameSlot compares two slots without panicking on uncomparable
// dynamic types (funcs, maps, slices).
func sameSlot(a, b Slot) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
