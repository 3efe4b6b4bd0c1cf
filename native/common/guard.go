package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is wrapped with the module name by Guard.
var ErrModulePaused = errors.New("module paused")

// AllModules is the pause switch that halts every module at once.
const AllModules = "*"

// PauseView exposes the operator pause switches consulted before a module
// mutates state.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails when the operator has paused module or every module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(AllModules) {
		return fmt.Errorf("%w: %s (global halt)", ErrModulePaused, module)
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// StaticPauses is a fixed pause table, typically loaded from service config.
type StaticPauses map[string]bool

// IsPaused reports whether module is switched off.
func (s StaticPauses) IsPaused(module string) bool {
	return s[module]
}
