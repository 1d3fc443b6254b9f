package hook

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// stubLen is the size of the trampoline stub: a trap instruction followed
// by a 5-byte relative jump to the original callee.
const stubLen = 6

// SlotInterceptor intercepts the loop by repointing an indirect-call slot
// (a dispatch-table entry invoked once per tick) at a small trampoline
// stub. The stub traps, then jumps to the slot's original callee, so the
// original code path still runs exactly once per iteration.
type SlotInterceptor struct {
	ctrl    Controller
	slot    uint64
	tramp   uint64
	ptrSize int

	origSlot  []byte
	origStub  []byte
	installed bool
}

// NewSlotInterceptor returns a slot-strategy interceptor. slot is the
// address of the dispatch slot, tramp a scratch code address the stub is
// written to, ptrSize the width of the slot in bytes.
func NewSlotInterceptor(ctrl Controller, slot, tramp uint64, ptrSize int) *SlotInterceptor {
	return &SlotInterceptor{ctrl: ctrl, slot: slot, tramp: tramp, ptrSize: ptrSize}
}

func (h *SlotInterceptor) Install() error {
	if h.installed {
		return nil
	}
	origSlot := make([]byte, h.ptrSize)
	if _, err := h.ctrl.ReadMemory(origSlot, h.slot); err != nil {
		return fmt.Errorf("could not read dispatch slot: %v", err)
	}
	var callee uint64
	if h.ptrSize == 4 {
		callee = uint64(binary.LittleEndian.Uint32(origSlot))
	} else {
		callee = binary.LittleEndian.Uint64(origSlot)
	}
	if callee == 0 {
		return fmt.Errorf("dispatch slot %#x is empty", h.slot)
	}

	stub, err := makeStub(h.tramp, callee)
	if err != nil {
		return err
	}
	origStub := make([]byte, stubLen)
	if _, err := h.ctrl.ReadMemory(origStub, h.tramp); err != nil {
		return fmt.Errorf("could not read trampoline area: %v", err)
	}
	if _, err := h.ctrl.WriteMemory(h.tramp, stub); err != nil {
		return fmt.Errorf("could not write trampoline: %v", err)
	}

	newSlot := make([]byte, h.ptrSize)
	if h.ptrSize == 4 {
		binary.LittleEndian.PutUint32(newSlot, uint32(h.tramp))
	} else {
		binary.LittleEndian.PutUint64(newSlot, h.tramp)
	}
	if _, err := h.ctrl.WriteMemory(h.slot, newSlot); err != nil {
		// Leave no half-installed state behind.
		h.ctrl.WriteMemory(h.tramp, origStub)
		return fmt.Errorf("could not write dispatch slot: %v", err)
	}

	h.origSlot = origSlot
	h.origStub = origStub
	h.installed = true
	logflags.HookLogger().Debugf("slot %#x repointed %#x -> %#x", h.slot, callee, h.tramp)
	return nil
}

func (h *SlotInterceptor) Uninstall() error {
	if !h.installed {
		return nil
	}
	if _, err := h.ctrl.WriteMemory(h.slot, h.origSlot); err != nil {
		return fmt.Errorf("could not restore dispatch slot %#x: %v", h.slot, err)
	}
	if _, err := h.ctrl.WriteMemory(h.tramp, h.origStub); err != nil {
		return fmt.Errorf("could not restore trampoline area %#x: %v", h.tramp, err)
	}
	h.origSlot = nil
	h.origStub = nil
	h.installed = false
	logflags.HookLogger().Debugf("restored dispatch slot %#x", h.slot)
	return nil
}

func (h *SlotInterceptor) Installed() bool {
	return h.installed
}

func (h *SlotInterceptor) TrapAddr() uint64 {
	return h.tramp
}

// ResumePC skips the trap byte so the resume executes the stub's jump to
// the original callee.
func (h *SlotInterceptor) ResumePC() uint64 {
	return h.tramp + 1
}

// StepOver is a no-op: the stub's jump takes care of reaching the original
// code path, and the trap byte never moves.
func (h *SlotInterceptor) StepOver() error {
	return nil
}

// makeStub assembles {int3; jmp rel32} jumping from stub+1 to callee.
func makeStub(stubAddr, callee uint64) ([]byte, error) {
	rel := int64(callee) - int64(stubAddr+stubLen)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return nil, fmt.Errorf("callee %#x out of jump range of trampoline %#x", callee, stubAddr)
	}
	stub := make([]byte, stubLen)
	stub[0] = breakpointInstr
	stub[1] = 0xE9
	binary.LittleEndian.PutUint32(stub[2:], uint32(int32(rel)))
	return stub, nil
}
