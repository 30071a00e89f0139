package common

import "errors"

// ErrModulePaused is returned when a module-wide pause switch is active.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switches installed by the operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view means no
// pauses are configured.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
