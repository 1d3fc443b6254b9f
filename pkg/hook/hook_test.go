package hook

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChesterMargery/PVZTrain/pkg/proc"
)

const (
	loopAddr   = 0x452650
	slotAddr   = 0x667C8C
	trampAddr  = 0x6ABFE0
	calleeAddr = 0x401000
)

// fakeController scripts the trap sequence of a target process over a
// sparse fake memory.
type fakeController struct {
	mem    map[uint64]byte
	traps  []uint64
	pc     uint64
	halted bool
	onStep func()
}

func newFakeController(traps ...uint64) *fakeController {
	return &fakeController{mem: make(map[uint64]byte), traps: traps}
}

func (c *fakeController) ReadMemory(buf []byte, addr uint64) (int, error) {
	for i := range buf {
		b, ok := c.mem[addr+uint64(i)]
		if !ok {
			return i, fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		buf[i] = b
	}
	return len(buf), nil
}

func (c *fakeController) WriteMemory(addr uint64, data []byte) (int, error) {
	for i, b := range data {
		c.mem[addr+uint64(i)] = b
	}
	return len(data), nil
}

func (c *fakeController) PC() (uint64, error)   { return c.pc, nil }
func (c *fakeController) SetPC(pc uint64) error { c.pc = pc; return nil }

func (c *fakeController) StepInstruction() error {
	if c.onStep != nil {
		c.onStep()
	}
	return nil
}

func (c *fakeController) ContinueToTrap() (uint64, error) {
	if c.halted || len(c.traps) == 0 {
		return 0, proc.ErrManualStop
	}
	c.pc = c.traps[0]
	c.traps = c.traps[1:]
	return c.pc, nil
}

func (c *fakeController) RequestManualStop() error {
	c.halted = true
	return nil
}

// mapLoopEntry maps a decodable function prologue at the loop entry.
func (c *fakeController) mapLoopEntry() {
	prologue := []byte{0x55, 0x8B, 0xEC, 0x83, 0xEC, 0x08}
	for len(prologue) < maxInstLen {
		prologue = append(prologue, 0x90)
	}
	c.WriteMemory(loopAddr, prologue)
}

func (c *fakeController) snapshot() map[uint64]byte {
	s := make(map[uint64]byte, len(c.mem))
	for k, v := range c.mem {
		s[k] = v
	}
	return s
}

func TestPatchInstallUninstall(t *testing.T) {
	ctrl := newFakeController()
	ctrl.mapLoopEntry()
	before := ctrl.snapshot()

	h := NewPatchInterceptor(ctrl, loopAddr, 32)
	require.False(t, h.Installed())

	require.NoError(t, h.Install())
	require.True(t, h.Installed())
	assert.Equal(t, byte(breakpointInstr), ctrl.mem[loopAddr])
	assert.Equal(t, before[loopAddr+1], ctrl.mem[loopAddr+1])

	require.NoError(t, h.Uninstall())
	require.False(t, h.Installed())
	assert.Equal(t, before, ctrl.snapshot())
}

func TestPatchInstallAtMostOnce(t *testing.T) {
	ctrl := newFakeController()
	ctrl.mapLoopEntry()
	h := NewPatchInterceptor(ctrl, loopAddr, 32)

	require.NoError(t, h.Install())
	// A second install must not capture the trap byte as "original".
	require.NoError(t, h.Install())
	require.NoError(t, h.Uninstall())
	assert.Equal(t, byte(0x55), ctrl.mem[loopAddr])
}

func TestPatchUninstallWhenNotInstalled(t *testing.T) {
	ctrl := newFakeController()
	ctrl.mapLoopEntry()
	h := NewPatchInterceptor(ctrl, loopAddr, 32)

	assert.NoError(t, h.Uninstall())
	assert.Equal(t, byte(0x55), ctrl.mem[loopAddr])
}

func TestPatchRefusesUnreadableSite(t *testing.T) {
	ctrl := newFakeController()
	h := NewPatchInterceptor(ctrl, loopAddr, 32)

	assert.Error(t, h.Install())
	assert.False(t, h.Installed())
}

func TestPatchRefusesUndecodableSite(t *testing.T) {
	ctrl := newFakeController()
	// Nothing but operand-size prefixes, never an opcode.
	site := make([]byte, maxInstLen)
	for i := range site {
		site[i] = 0x66
	}
	ctrl.WriteMemory(loopAddr, site)

	h := NewPatchInterceptor(ctrl, loopAddr, 32)
	assert.Error(t, h.Install())
	assert.False(t, h.Installed())
}

func TestPatchStepOver(t *testing.T) {
	ctrl := newFakeController()
	ctrl.mapLoopEntry()
	h := NewPatchInterceptor(ctrl, loopAddr, 32)
	require.NoError(t, h.Install())

	stepped := false
	ctrl.onStep = func() {
		// The original byte must be back in place while stepping it.
		assert.Equal(t, byte(0x55), ctrl.mem[loopAddr])
		stepped = true
	}

	require.NoError(t, h.StepOver())
	assert.True(t, stepped)
	assert.Equal(t, byte(breakpointInstr), ctrl.mem[loopAddr])
}

func mapSlot(ctrl *fakeController) map[uint64]byte {
	var slot [4]byte
	binary.LittleEndian.PutUint32(slot[:], calleeAddr)
	ctrl.WriteMemory(slotAddr, slot[:])
	ctrl.WriteMemory(trampAddr, make([]byte, stubLen))
	return ctrl.snapshot()
}

func TestSlotInstallUninstall(t *testing.T) {
	ctrl := newFakeController()
	before := mapSlot(ctrl)

	h := NewSlotInterceptor(ctrl, slotAddr, trampAddr, 4)
	require.NoError(t, h.Install())
	require.True(t, h.Installed())

	// The slot now points at the trampoline.
	slot := make([]byte, 4)
	ctrl.ReadMemory(slot, slotAddr)
	assert.Equal(t, uint32(trampAddr), binary.LittleEndian.Uint32(slot))

	// The trampoline traps, then jumps to the original callee.
	stub := make([]byte, stubLen)
	ctrl.ReadMemory(stub, trampAddr)
	assert.Equal(t, byte(breakpointInstr), stub[0])
	assert.Equal(t, byte(0xE9), stub[1])
	rel := int32(binary.LittleEndian.Uint32(stub[2:]))
	assert.Equal(t, int64(calleeAddr), int64(trampAddr+stubLen)+int64(rel))

	assert.Equal(t, uint64(trampAddr), h.TrapAddr())
	assert.Equal(t, uint64(trampAddr+1), h.ResumePC())

	require.NoError(t, h.Uninstall())
	assert.Equal(t, before, ctrl.snapshot())
}

func TestSlotInstallAtMostOnce(t *testing.T) {
	ctrl := newFakeController()
	mapSlot(ctrl)

	h := NewSlotInterceptor(ctrl, slotAddr, trampAddr, 4)
	require.NoError(t, h.Install())
	// A second install must not capture the trampoline as "original".
	require.NoError(t, h.Install())
	require.NoError(t, h.Uninstall())

	slot := make([]byte, 4)
	ctrl.ReadMemory(slot, slotAddr)
	assert.Equal(t, uint32(calleeAddr), binary.LittleEndian.Uint32(slot))
}

func TestSlotRefusesEmptySlot(t *testing.T) {
	ctrl := newFakeController()
	ctrl.WriteMemory(slotAddr, make([]byte, 4))
	ctrl.WriteMemory(trampAddr, make([]byte, stubLen))

	h := NewSlotInterceptor(ctrl, slotAddr, trampAddr, 4)
	assert.Error(t, h.Install())
}

func TestPumpRunsTickPerTrap(t *testing.T) {
	ctrl := newFakeController(loopAddr+1, loopAddr+1, loopAddr+1)
	ctrl.mapLoopEntry()
	before := ctrl.snapshot()

	icp := NewPatchInterceptor(ctrl, loopAddr, 32)
	ticks := 0
	pump := NewPump(ctrl, icp, func() { ticks++ })

	require.NoError(t, pump.Run())
	assert.Equal(t, 3, ticks)
	// Pump exit leaves the target byte-identical to its pre-install state.
	assert.Equal(t, before, ctrl.snapshot())
}

func TestPumpIgnoresForeignTraps(t *testing.T) {
	ctrl := newFakeController(0x999999, loopAddr+1)
	ctrl.mapLoopEntry()

	icp := NewPatchInterceptor(ctrl, loopAddr, 32)
	ticks := 0
	pump := NewPump(ctrl, icp, func() { ticks++ })

	require.NoError(t, pump.Run())
	assert.Equal(t, 1, ticks)
}

func TestPumpSurvivesTickPanic(t *testing.T) {
	ctrl := newFakeController(loopAddr+1, loopAddr+1)
	ctrl.mapLoopEntry()

	icp := NewPatchInterceptor(ctrl, loopAddr, 32)
	ticks := 0
	pump := NewPump(ctrl, icp, func() {
		ticks++
		panic("tick gone wrong")
	})

	require.NoError(t, pump.Run())
	assert.Equal(t, 2, ticks)
	assert.Equal(t, byte(0x55), ctrl.mem[loopAddr])
}

func TestPumpStop(t *testing.T) {
	ctrl := newFakeController(loopAddr + 1)
	ctrl.mapLoopEntry()

	icp := NewPatchInterceptor(ctrl, loopAddr, 32)
	pump := NewPump(ctrl, icp, func() {})
	pump.Stop()
	pump.Stop() // idempotent

	require.NoError(t, pump.Run())
	assert.Equal(t, byte(0x55), ctrl.mem[loopAddr])
}
