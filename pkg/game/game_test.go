package game

import (
	"encoding/binary"
	"fmt"

	"github.com/ChesterMargery/PVZTrain/pkg/layout"
)

// fakeMemory is a sparse byte-addressed memory. Reads of unmapped bytes
// fail, which is how reads of a detached or exited target fail.
type fakeMemory struct {
	mem map[uint64]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{mem: make(map[uint64]byte)}
}

func (m *fakeMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	for i := range buf {
		b, ok := m.mem[addr+uint64(i)]
		if !ok {
			return i, fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		buf[i] = b
	}
	return len(buf), nil
}

func (m *fakeMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	for i, b := range data {
		m.mem[addr+uint64(i)] = b
	}
	return len(data), nil
}

func (m *fakeMemory) setByte(addr uint64, v byte) {
	m.mem[addr] = v
}

func (m *fakeMemory) setUint32(addr uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	m.WriteMemory(addr, buf[:])
}

func (m *fakeMemory) getUint32(addr uint64) uint32 {
	var buf [4]byte
	m.ReadMemory(buf[:], addr)
	return binary.LittleEndian.Uint32(buf[:])
}

// fakeCaller records the routine calls issued by the action surface.
type fakeCall struct {
	addr  uint64
	regs  map[string]uint64
	stack []uint64
}

type fakeCaller struct {
	calls  []fakeCall
	onCall func(fakeCall)
}

func (c *fakeCaller) Call(addr uint64, regs map[string]uint64, stack []uint64) error {
	call := fakeCall{addr: addr, regs: regs, stack: stack}
	c.calls = append(c.calls, call)
	if c.onCall != nil {
		c.onCall(call)
	}
	return nil
}

// Addresses used by the fake target image.
const (
	fakeBaseObj = 0x10000
	fakeBoard   = 0x20000
	fakePlants  = 0x30000
	fakeZombies = 0x40000
	fakeChooser = 0x50000
)

// buildWorld maps a minimal but coherent target image: root pointer, base
// object in the in-game UI state, board with counters and empty entity
// arrays of capacity 10.
func buildWorld() (*fakeMemory, *fakeCaller, *Accessor) {
	lay := layout.Default()
	mem := newFakeMemory()
	caller := &fakeCaller{}

	o := &lay.Offsets
	mem.setUint32(lay.Base, fakeBaseObj)
	mem.setUint32(fakeBaseObj+o.GameUI, UIInGame)
	mem.setUint32(fakeBaseObj+o.MainObject, fakeBoard)
	mem.setUint32(fakeBaseObj+o.SeedChooser, fakeChooser)
	mem.setUint32(fakeBaseObj+o.TickMs, 10)

	mem.setUint32(fakeBoard+o.Sun, 950)
	mem.setUint32(fakeBoard+o.Wave, 4)
	mem.setUint32(fakeBoard+o.TotalWave, 20)
	mem.setUint32(fakeBoard+o.GameClock, 3600)
	mem.setUint32(fakeBoard+o.Scene, 1)

	mem.setUint32(fakeBoard+o.PlantArray, fakePlants)
	mem.setUint32(fakeBoard+o.PlantCountMax, 10)
	mem.setUint32(fakeBoard+o.ZombieArray, fakeZombies)
	mem.setUint32(fakeBoard+o.ZombieCountMax, 10)
	for i := uint64(0); i < 10; i++ {
		mem.setByte(fakePlants+i*o.PlantSize+o.PlantDead, 1)
		mem.setByte(fakeZombies+i*o.ZombieSize+o.ZombieDead, 1)
	}

	return mem, caller, NewAccessor(mem, caller, lay)
}

// addPlant marks plant record idx live at (row, col).
func addPlant(mem *fakeMemory, lay *layout.Layout, idx uint64, row, col int) uint64 {
	o := &lay.Offsets
	rec := fakePlants + idx*o.PlantSize
	mem.setByte(rec+o.PlantDead, 0)
	mem.setUint32(rec+o.PlantRow, uint32(row))
	mem.setUint32(rec+o.PlantCol, uint32(col))
	return rec
}

// addZombie marks zombie record idx live.
func addZombie(mem *fakeMemory, lay *layout.Layout, idx uint64) {
	mem.setByte(fakeZombies+idx*lay.Offsets.ZombieSize+lay.Offsets.ZombieDead, 0)
}

// unloadGame nulls the root pointer, as the target does between levels.
func unloadGame(mem *fakeMemory, lay *layout.Layout) {
	mem.setUint32(lay.Base, 0)
}
