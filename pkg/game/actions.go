package game

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// The action verbs below share one outcome model: a nil return means the
// preconditions held and the call into the target was issued, not that the
// game logic accepted it. The game's routines have no return contract, so
// "accepted" is not observable from here.

// PutPlant places a plant of the given type at (row, col).
func (a *Accessor) PutPlant(row, col, typ int) error {
	board, ok := a.Board()
	if !ok {
		return ErrUnavailable
	}
	env := map[string]uint64{"board": board}
	if base, ok := a.Base(); ok {
		env["base"] = base
	}
	return a.issue("put_plant", env, uint64(row), uint64(col), uint64(typ))
}

// Shovel removes the first live plant found at (row, col).
func (a *Accessor) Shovel(row, col int) error {
	if _, ok := a.Board(); !ok {
		return ErrUnavailable
	}
	rec, ok := a.findPlant(row, col)
	if !ok {
		return ErrNotFound
	}
	return a.issue("shovel", map[string]uint64{"record": rec})
}

// FireCob would fire a cob cannon at screen coordinates (x, y). Locating an
// armed cannon is not implemented, so this always fails.
func (a *Accessor) FireCob(x, y int) error {
	return ErrUnsupported
}

// MakeNewBoard resets the current level.
func (a *Accessor) MakeNewBoard() error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	return a.issue("make_new_board", map[string]uint64{"base": base})
}

// EnterGame starts the given game mode from the menu.
func (a *Accessor) EnterGame(mode int) error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	return a.issue("enter_game", map[string]uint64{"base": base}, uint64(mode))
}

// BackToMain leaves the current level for the main menu. Only legal while
// in a level.
func (a *Accessor) BackToMain() error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	if ui, ok := a.GameUI(); !ok || ui != UIInGame {
		return ErrBadPhase
	}
	return a.issue("back_to_main", map[string]uint64{"base": base})
}

// ChooseCard picks the card with the given type on the card-selection
// screen. Only legal while that screen is up.
func (a *Accessor) ChooseCard(typ int) error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	if ui, ok := a.GameUI(); !ok || ui != UISeedChooser {
		return ErrBadPhase
	}
	chooser, ok := a.SeedChooser()
	if !ok {
		return ErrUnavailable
	}
	o := &a.layout.Offsets
	slot := chooser + o.CardBase + uint64(typ)*o.CardStride
	return a.issue("choose_card", map[string]uint64{
		"base": base, "chooser": chooser, "slot": slot,
	})
}

// Rock presses the start button on the card-selection screen. Only legal
// while that screen is up.
func (a *Accessor) Rock() error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	if ui, ok := a.GameUI(); !ok || ui != UISeedChooser {
		return ErrBadPhase
	}
	chooser, ok := a.SeedChooser()
	if !ok {
		return ErrUnavailable
	}
	return a.issue("rock", map[string]uint64{"base": base, "chooser": chooser})
}

// SetSpeed changes the target's per-frame interval in milliseconds. The
// stock value is 10; 1 runs the simulation ten times faster.
func (a *Accessor) SetSpeed(ms int) error {
	base, ok := a.Base()
	if !ok {
		return ErrUnavailable
	}
	if ms < 1 {
		ms = 1
	}
	if ms > 1000 {
		ms = 1000
	}
	if !a.writeInt32(base+a.layout.Offsets.TickMs, ms) {
		return ErrUnavailable
	}
	return nil
}

// issue resolves the named routine's operands against env and args and
// hands the call to the Caller.
func (a *Accessor) issue(name string, env map[string]uint64, args ...uint64) error {
	r, ok := a.layout.Routine(name)
	if !ok {
		return fmt.Errorf("routine %q not in layout descriptor", name)
	}
	regs := make(map[string]uint64, len(r.Regs))
	for reg, expr := range r.Regs {
		v, err := resolveOperand(expr, env, args)
		if err != nil {
			return fmt.Errorf("routine %q register %s: %v", name, reg, err)
		}
		regs[reg] = v
	}
	stack := make([]uint64, 0, len(r.Stack))
	for _, expr := range r.Stack {
		v, err := resolveOperand(expr, env, args)
		if err != nil {
			return fmt.Errorf("routine %q stack operand: %v", name, err)
		}
		stack = append(stack, v)
	}
	logflags.FnCallLogger().Debugf("issuing %s at %#x", name, r.Addr)
	return a.caller.Call(r.Addr, regs, stack)
}

func resolveOperand(expr string, env map[string]uint64, args []uint64) (uint64, error) {
	if strings.HasPrefix(expr, "arg") {
		n, err := strconv.Atoi(expr[len("arg"):])
		if err != nil || n < 0 || n >= len(args) {
			return 0, fmt.Errorf("bad argument reference %q", expr)
		}
		return args[n], nil
	}
	if v, ok := env[expr]; ok {
		return v, nil
	}
	n, err := strconv.ParseInt(expr, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown operand %q", expr)
	}
	return uint64(n), nil
}
