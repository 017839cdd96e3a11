package device

import "sync/atomic"

// Flag is a latched event. Interrupt handlers Set it and the control loop consumes it with Take.
// An event that arrives while the flag is already set is merged into the pending one
type Flag struct {
	v atomic.Bool
}

// Set latches the event. It is safe to call from interrupt context
func (f *Flag) Set() {
	f.v.Store(true)
}

// Take reports whether the event was latched and clears it in the same operation
func (f *Flag) Take() bool {
	return f.v.Swap(false)
}

// Pending reports whether the event is latched without consuming it
func (f *Flag) Pending() bool {
	return f.v.Load()
}
