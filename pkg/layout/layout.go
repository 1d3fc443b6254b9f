// Package layout describes the memory geometry of a target build: the root
// pointer address, the offset table used to walk the live object graph, the
// entry points of the game's own routines and how to invoke them, and the
// interception point for the tick hook. All of it is data loaded from a YAML
// descriptor so that supporting another target build never touches code.
package layout

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Interception strategies.
const (
	StrategyPatch = "patch" // overwrite the first byte of the loop entry
	StrategySlot  = "slot"  // repoint an indirect-call slot at a trampoline
)

// Layout is the descriptor for a single target build.
type Layout struct {
	Target      string `yaml:"target"`
	Version     string `yaml:"version"`
	PointerSize int    `yaml:"pointer_size"`

	// Base is the root pointer address: the one static location from which
	// the whole live object graph is reached.
	Base uint64 `yaml:"base"`

	Offsets  Offsets            `yaml:"offsets"`
	Routines map[string]Routine `yaml:"routines"`
	Hook     Hook               `yaml:"hook"`
}

// Offsets is the named offset table. All values are relative to the pointer
// they are documented against, never absolute.
type Offsets struct {
	// Relative to the root object.
	MainObject  uint64 `yaml:"main_object"`
	GameUI      uint64 `yaml:"game_ui"`
	SeedChooser uint64 `yaml:"seed_chooser"`
	TickMs      uint64 `yaml:"tick_ms"`

	// Relative to the board (main object).
	Sun       uint64 `yaml:"sun"`
	Wave      uint64 `yaml:"wave"`
	TotalWave uint64 `yaml:"total_wave"`
	GameClock uint64 `yaml:"game_clock"`
	Scene     uint64 `yaml:"scene"`

	PlantArray    uint64 `yaml:"plant_array"`
	PlantCountMax uint64 `yaml:"plant_count_max"`
	PlantSize     uint64 `yaml:"plant_size"`
	PlantRow      uint64 `yaml:"plant_row"`
	PlantCol      uint64 `yaml:"plant_col"`
	PlantDead     uint64 `yaml:"plant_dead"`

	ZombieArray    uint64 `yaml:"zombie_array"`
	ZombieCountMax uint64 `yaml:"zombie_count_max"`
	ZombieSize     uint64 `yaml:"zombie_size"`
	ZombieDead     uint64 `yaml:"zombie_dead"`

	// Relative to the seed chooser.
	CardBase   uint64 `yaml:"card_base"`
	CardStride uint64 `yaml:"card_stride"`
}

// Routine describes one game routine and its calling convention. The game
// uses a mix of thiscall, cdecl and bespoke register conventions, so the
// convention is spelled out operand by operand instead of named.
//
// Operand expressions are either a decimal/hex integer literal or one of
// the symbols resolved by the caller at invocation time: "base", "board",
// "chooser", "record", "slot", "arg0".."arg9".
type Routine struct {
	Addr uint64 `yaml:"addr"`
	// Regs maps register names (eax, ebx, ecx, edx, esi, edi, ebp) to
	// operand expressions.
	Regs map[string]string `yaml:"regs"`
	// Stack lists operand expressions in push order: the last entry ends up
	// on top of the stack, directly above the return address.
	Stack []string `yaml:"stack"`
}

// Hook configures the control-flow interception point.
type Hook struct {
	// Strategy is either "patch" or "slot".
	Strategy string `yaml:"strategy"`
	// Loop is the address of the per-tick loop entry (patch strategy).
	Loop uint64 `yaml:"loop"`
	// Slot is the address of the indirect-call slot invoked once per tick
	// (slot strategy).
	Slot uint64 `yaml:"slot"`
	// Trampoline is a scratch code address the slot strategy may write a
	// small stub to.
	Trampoline uint64 `yaml:"trampoline"`
	// RetTrap is a scratch code address used as the return target of remote
	// routine calls.
	RetTrap uint64 `yaml:"ret_trap"`
}

// Load parses a layout descriptor from a YAML document.
func Load(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.UnmarshalStrict(data, &l); err != nil {
		return nil, fmt.Errorf("could not parse layout descriptor: %v", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// LoadFile reads and parses the layout descriptor at path.
func LoadFile(path string) (*Layout, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read layout descriptor: %v", err)
	}
	return Load(data)
}

// Validate checks the descriptor for the mistakes that would otherwise only
// surface as wild memory accesses later.
func (l *Layout) Validate() error {
	if l.PointerSize != 4 && l.PointerSize != 8 {
		return fmt.Errorf("layout %q: unsupported pointer_size %d", l.Target, l.PointerSize)
	}
	if l.Base == 0 {
		return fmt.Errorf("layout %q: base address is zero", l.Target)
	}
	switch l.Hook.Strategy {
	case StrategyPatch:
		if l.Hook.Loop == 0 {
			return fmt.Errorf("layout %q: patch strategy requires a loop address", l.Target)
		}
	case StrategySlot:
		if l.Hook.Slot == 0 || l.Hook.Trampoline == 0 {
			return fmt.Errorf("layout %q: slot strategy requires slot and trampoline addresses", l.Target)
		}
	default:
		return fmt.Errorf("layout %q: unknown hook strategy %q", l.Target, l.Hook.Strategy)
	}
	if l.Hook.RetTrap == 0 {
		return fmt.Errorf("layout %q: ret_trap address is zero", l.Target)
	}
	for name, r := range l.Routines {
		if r.Addr == 0 {
			return fmt.Errorf("layout %q: routine %q has no address", l.Target, name)
		}
	}
	return nil
}

// Routine returns the named routine description.
func (l *Layout) Routine(name string) (Routine, bool) {
	r, ok := l.Routines[name]
	return r, ok
}
