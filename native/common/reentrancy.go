package common

import "loanchain/core/vm"

// ErrReentrantCall is returned when a guarded entry point is invoked while
// another guarded call on the same instance is still executing.
var ErrReentrantCall = vm.NewRevert("ReentrancyGuard: reentrant call")

// ReentrancyGuard is a per-instance mutual exclusion flag for contract entry
// points that call out to foreign contracts. The zero value is ready to use.
// It is not a lock: the runtime already serialises transactions, the guard
// only rejects nested calls made from within the same call stack.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the guard as held and returns the release function. Callers
// must defer the release.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g.entered {
		return nil, ErrReentrantCall
	}
	g.entered = true
	return func() { g.entered = false }, nil
}

// Entered reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Entered() bool {
	return g.entered
}
