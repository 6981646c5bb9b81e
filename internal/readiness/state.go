// Package readiness holds the one-way readiness latch shared between the
// request path and the management event listener.
package readiness

import "sync/atomic"

// State starts not ready and can only move to ready. The zero value is usable.
type State struct {
	ready atomic.Bool
}

func New() *State {
	return &State{}
}

// Ready reports whether traffic may pass. Safe for any number of concurrent readers.
func (s *State) Ready() bool {
	return s.ready.Load()
}

// MarkReady latches the state to ready. It returns true only for the call
// that performed the transition.
func (s *State) MarkReady() bool {
	return s.ready.CompareAndSwap(false, true)
}
