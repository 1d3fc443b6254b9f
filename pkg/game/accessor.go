// Package game interprets the target's live object graph through the layout
// descriptor and exposes the verbs of the control protocol on top of it.
//
// Nothing in this package caches a resolved pointer. The root pointer is
// nulled whenever the target leaves a level, so every operation re-walks
// the chain from the root and reports the degraded state instead of
// touching a stale address.
package game

import (
	"encoding/binary"

	"github.com/ChesterMargery/PVZTrain/pkg/layout"
	"github.com/ChesterMargery/PVZTrain/pkg/proc"
)

// UI states of the target, as stored behind the game_ui offset.
const (
	UISeedChooser = 2
	UIInGame      = 3
)

// maxEntityScan bounds entity array iteration. The capacity values read
// from the board are untrusted; a corrupted count must not send us scanning
// megabytes of heap.
const maxEntityScan = 200

// Caller issues a call to a routine inside the target.
type Caller interface {
	Call(addr uint64, regs map[string]uint64, stack []uint64) error
}

// Accessor resolves the target's object graph from the root pointer and
// performs all reads, writes and routine calls on it.
type Accessor struct {
	mem    proc.MemoryReadWriter
	caller Caller
	layout *layout.Layout
}

// NewAccessor returns an Accessor reading through mem and issuing routine
// calls through caller, both interpreted per the given layout.
func NewAccessor(mem proc.MemoryReadWriter, caller Caller, l *layout.Layout) *Accessor {
	return &Accessor{mem: mem, caller: caller, layout: l}
}

// Layout returns the layout descriptor the accessor was built with.
func (a *Accessor) Layout() *layout.Layout {
	return a.layout
}

// Base resolves the root pointer. ok is false when no game object exists.
func (a *Accessor) Base() (uint64, bool) {
	return a.readPointer(a.layout.Base)
}

// Board resolves the live level instance, briefly called the board.
func (a *Accessor) Board() (uint64, bool) {
	base, ok := a.Base()
	if !ok {
		return 0, false
	}
	return a.readPointer(base + a.layout.Offsets.MainObject)
}

// GameUI returns the target's current UI state.
func (a *Accessor) GameUI() (int, bool) {
	base, ok := a.Base()
	if !ok {
		return 0, false
	}
	return a.readInt32(base + a.layout.Offsets.GameUI)
}

// SeedChooser resolves the card-selection screen object. It only exists
// while the target shows that screen.
func (a *Accessor) SeedChooser() (uint64, bool) {
	base, ok := a.Base()
	if !ok {
		return 0, false
	}
	return a.readPointer(base + a.layout.Offsets.SeedChooser)
}

// InGame reports whether the target is currently inside a level.
func (a *Accessor) InGame() bool {
	ui, ok := a.GameUI()
	return ok && ui == UIInGame
}

// Sun returns the resource counter, zero when no board resolves.
func (a *Accessor) Sun() int {
	return a.boardInt32(a.layout.Offsets.Sun)
}

// Wave returns the elapsed-wave counter.
func (a *Accessor) Wave() int {
	return a.boardInt32(a.layout.Offsets.Wave)
}

// TotalWaves returns the declared wave total of the level.
func (a *Accessor) TotalWaves() int {
	return a.boardInt32(a.layout.Offsets.TotalWave)
}

// GameClock returns the level's elapsed-time counter.
func (a *Accessor) GameClock() int {
	return a.boardInt32(a.layout.Offsets.GameClock)
}

// Scene returns the scene identifier of the level.
func (a *Accessor) Scene() int {
	return a.boardInt32(a.layout.Offsets.Scene)
}

// PlantCount counts the live records in the plant array.
func (a *Accessor) PlantCount() int {
	o := &a.layout.Offsets
	n := 0
	a.eachEntity(o.PlantArray, o.PlantCountMax, o.PlantSize, o.PlantDead, func(uint64) bool {
		n++
		return true
	})
	return n
}

// ZombieCount counts the live records in the zombie array.
func (a *Accessor) ZombieCount() int {
	o := &a.layout.Offsets
	n := 0
	a.eachEntity(o.ZombieArray, o.ZombieCountMax, o.ZombieSize, o.ZombieDead, func(uint64) bool {
		n++
		return true
	})
	return n
}

// findPlant returns the address of the first live plant record at the given
// grid cell, in array order.
func (a *Accessor) findPlant(row, col int) (uint64, bool) {
	o := &a.layout.Offsets
	var found uint64
	a.eachEntity(o.PlantArray, o.PlantCountMax, o.PlantSize, o.PlantDead, func(rec uint64) bool {
		r, ok := a.readInt32(rec + o.PlantRow)
		if !ok || r != row {
			return true
		}
		c, ok := a.readInt32(rec + o.PlantCol)
		if !ok || c != col {
			return true
		}
		found = rec
		return false
	})
	return found, found != 0
}

// eachEntity walks one of the board's record arrays, calling fn with the
// address of every live record until fn returns false. The declared
// capacity is clamped before the walk.
func (a *Accessor) eachEntity(arrayOff, countOff, size, deadOff uint64, fn func(rec uint64) bool) {
	board, ok := a.Board()
	if !ok {
		return
	}
	array, ok := a.readPointer(board + arrayOff)
	if !ok {
		return
	}
	max, ok := a.readInt32(board + countOff)
	if !ok || max <= 0 {
		return
	}
	if max > maxEntityScan {
		max = maxEntityScan
	}
	for i := 0; i < max; i++ {
		rec := array + uint64(i)*size
		dead, ok := a.readByte(rec + deadOff)
		if !ok || dead != 0 {
			continue
		}
		if !fn(rec) {
			return
		}
	}
}

func (a *Accessor) boardInt32(off uint64) int {
	board, ok := a.Board()
	if !ok {
		return 0
	}
	v, _ := a.readInt32(board + off)
	return v
}

// readPointer reads a pointer-sized word. ok is false on a read error or a
// null pointer, so callers can treat the two identically.
func (a *Accessor) readPointer(addr uint64) (uint64, bool) {
	buf := make([]byte, a.layout.PointerSize)
	if _, err := a.mem.ReadMemory(buf, addr); err != nil {
		return 0, false
	}
	var v uint64
	if a.layout.PointerSize == 4 {
		v = uint64(binary.LittleEndian.Uint32(buf))
	} else {
		v = binary.LittleEndian.Uint64(buf)
	}
	if v == 0 {
		return 0, false
	}
	return v, true
}

func (a *Accessor) readInt32(addr uint64) (int, bool) {
	buf := make([]byte, 4)
	if _, err := a.mem.ReadMemory(buf, addr); err != nil {
		return 0, false
	}
	return int(int32(binary.LittleEndian.Uint32(buf))), true
}

func (a *Accessor) readByte(addr uint64) (byte, bool) {
	buf := make([]byte, 1)
	if _, err := a.mem.ReadMemory(buf, addr); err != nil {
		return 0, false
	}
	return buf[0], true
}

func (a *Accessor) writeInt32(addr uint64, v int) bool {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	_, err := a.mem.WriteMemory(addr, buf)
	return err == nil
}
