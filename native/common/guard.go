package common

import "errors"

// ErrModulePaused is returned when an operation targets a paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause state maintained by protocol governance.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused. A nil view
// means pausing is not configured and every module is treated as live.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
