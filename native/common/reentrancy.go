package common

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall is returned when a guarded operation is entered while
// another guarded operation on the same engine is still running.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a non-reentrant lock. Enter fails fast instead of
// blocking, so a callback that loops back into the engine is rejected.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter marks the guard as held and returns the release function. Callers
// must defer the release so every exit path clears the flag.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	return func() { g.entered.Store(false) }, nil
}

// Held reports whether a guarded call is in flight.
func (g *ReentrancyGuard) Held() bool {
	return g.entered.Load()
}
