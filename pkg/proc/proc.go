// Package proc provides ptrace-based control of a running target process:
// attach/detach, raw memory access, single stepping, running to a trap, and
// issuing calls to the target's own routines.
package proc

import (
	"errors"
	"fmt"
)

// ErrManualStop is returned by ContinueToTrap when RequestManualStop
// interrupted the wait instead of a trap.
var ErrManualStop = errors.New("process halted by manual stop request")

// ErrNotStopped is returned by operations that require the target to be
// stopped at a trap.
var ErrNotStopped = errors.New("target process is not stopped")

// ProcessExitedError indicates that the target has exited and contains both
// process id and exit status.
type ProcessExitedError struct {
	Pid    int
	Status int
}

func (pe ProcessExitedError) Error() string {
	return fmt.Sprintf("process %d has exited with status %d", pe.Pid, pe.Status)
}
