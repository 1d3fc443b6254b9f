// Package hook installs the per-tick intercept point in the target's code
// and pumps the bridge callback once per iteration of the target's main
// loop. Two interchangeable strategies exist: patching the loop entry's
// instruction stream, or repointing an indirect-call slot that is already
// invoked once per tick. Both capture the original bytes and restore them
// exactly on removal.
package hook

import "github.com/ChesterMargery/PVZTrain/pkg/proc"

// breakpointInstr is INT 3, the software breakpoint trap instruction.
const breakpointInstr = 0xCC

// maxInstLen is the longest legal x86 instruction.
const maxInstLen = 15

// Controller is the slice of process control the interceptor needs:
// memory, the program counter, single stepping and running to a trap.
// *proc.Process implements it.
type Controller interface {
	proc.MemoryReadWriter
	PC() (uint64, error)
	SetPC(pc uint64) error
	StepInstruction() error
	ContinueToTrap() (uint64, error)
	RequestManualStop() error
}

// Interceptor is the intercept point itself. Install and Uninstall are
// idempotent; the original bytes captured by Install are the only state,
// and Uninstall restores them exactly.
type Interceptor interface {
	Install() error
	Uninstall() error
	Installed() bool

	// TrapAddr is the address whose trap announces one loop iteration.
	TrapAddr() uint64
	// ResumePC is where the target must resume from after the callback so
	// the original code path runs exactly once.
	ResumePC() uint64
	// StepOver executes whatever the patch displaced, leaving the patch
	// armed for the next iteration. Called with the target stopped at
	// ResumePC.
	StepOver() error
}
