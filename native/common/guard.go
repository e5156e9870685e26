package common

import "loanchain/core/vm"

// ErrModulePaused reverts state-changing calls into a module the operator has
// switched off. Read-only views are never guarded.
var ErrModulePaused = vm.NewRevert("module paused")

// PauseView reports the operator pause switches by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// PauseFunc adapts a plain function to PauseView.
type PauseFunc func(module string) bool

func (f PauseFunc) IsPaused(module string) bool { return f(module) }

// Guard fails with ErrModulePaused while module is paused. A nil view or an
// unnamed module never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
