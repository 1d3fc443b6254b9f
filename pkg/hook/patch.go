package hook

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// PatchInterceptor intercepts the loop by overwriting the first byte of the
// loop entry with a trap instruction. Stepping over re-executes the
// displaced original byte each tick, so the loop body runs unchanged.
type PatchInterceptor struct {
	ctrl Controller
	addr uint64
	mode int

	original  []byte
	installed bool
}

// NewPatchInterceptor returns a patch-strategy interceptor for the loop
// entry at addr. mode is the x86 decode mode of the target, 32 or 64.
func NewPatchInterceptor(ctrl Controller, addr uint64, mode int) *PatchInterceptor {
	return &PatchInterceptor{ctrl: ctrl, addr: addr, mode: mode}
}

func (h *PatchInterceptor) Install() error {
	if h.installed {
		return nil
	}
	buf := make([]byte, maxInstLen)
	if _, err := h.ctrl.ReadMemory(buf, h.addr); err != nil {
		return fmt.Errorf("could not read patch site: %v", err)
	}
	// A site that does not decode as an instruction is a sign the loop
	// address is wrong for this build. Refuse rather than corrupt code.
	inst, err := x86asm.Decode(buf, h.mode)
	if err != nil {
		return fmt.Errorf("cannot decode instruction at %#x: %v", h.addr, err)
	}
	logflags.HookLogger().Debugf("patching %v (%d bytes) at %#x", inst.Op, inst.Len, h.addr)

	h.original = []byte{buf[0]}
	if _, err := h.ctrl.WriteMemory(h.addr, []byte{breakpointInstr}); err != nil {
		return fmt.Errorf("could not write trap at %#x: %v", h.addr, err)
	}
	h.installed = true
	return nil
}

func (h *PatchInterceptor) Uninstall() error {
	if !h.installed {
		return nil
	}
	if _, err := h.ctrl.WriteMemory(h.addr, h.original); err != nil {
		return fmt.Errorf("could not restore patch site %#x: %v", h.addr, err)
	}
	h.original = nil
	h.installed = false
	logflags.HookLogger().Debugf("restored patch site %#x", h.addr)
	return nil
}

func (h *PatchInterceptor) Installed() bool {
	return h.installed
}

func (h *PatchInterceptor) TrapAddr() uint64 {
	return h.addr
}

func (h *PatchInterceptor) ResumePC() uint64 {
	return h.addr
}

// StepOver briefly restores the original byte, executes it, and re-arms the
// trap for the next iteration.
func (h *PatchInterceptor) StepOver() error {
	if !h.installed {
		return nil
	}
	if _, err := h.ctrl.WriteMemory(h.addr, h.original); err != nil {
		return err
	}
	if err := h.ctrl.StepInstruction(); err != nil {
		return err
	}
	if _, err := h.ctrl.WriteMemory(h.addr, []byte{breakpointInstr}); err != nil {
		return err
	}
	return nil
}
