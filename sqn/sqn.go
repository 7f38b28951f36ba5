// Package sqn allocates the 8-bit sequence numbers ZiGate frames carry, and
// binds them back to the external (dongle-reported) value when it differs
// from the one the allocator handed out.
package sqn

import "sync"

// Allocator hands out sequence numbers 1..255, wrapping 255 back to 1 —
// sqn 0 is reserved and never allocated, since ZiGate firmware treats 0 as
// "no sqn in use".
type Allocator struct {
	mu       sync.Mutex
	current  uint8
	bound    uint8
	hasBound bool
}

// New returns an Allocator ready to hand out sqn 1 on the first Next call.
func New() *Allocator {
	return &Allocator{}
}

// Next returns the next sequence number in 1..255, wrapping past 255 back
// to 1 (0 is skipped on both ends of the wrap).
func (a *Allocator) Next() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == 255 {
		a.current = 1
	} else {
		a.current++
	}
	return a.current
}

// Bind records the external sequence number the dongle actually echoed back
// for the most recently allocated sqn, so callers can reconcile the two
// when the firmware doesn't round-trip the value verbatim.
func (a *Allocator) Bind(external uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bound = external
	a.hasBound = true
}

// Last returns the most recently allocated internal sqn and its bound
// external value, if one has been recorded via Bind.
func (a *Allocator) Last() (internal uint8, external uint8, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.bound, a.hasBound
}
