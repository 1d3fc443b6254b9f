package proc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// Call invokes a routine inside the stopped target and returns once it has
// run to completion. The routine's arguments are placed in registers and on
// the stack exactly as given; the return address is pointed at the
// configured return trap so the call surfaces as a SIGTRAP when it
// finishes. The target's registers are restored afterwards, so from the
// target's point of view the call never happened.
//
// No result is read back. The game's routines have no failure signal, so
// the only outcome this can report is "issued" or an error before the call
// started.
func (p *Process) Call(addr uint64, regs map[string]uint64, stack []uint64) error {
	logger := logflags.FnCallLogger()
	if p.retTrap == 0 {
		return errors.New("no return trap configured")
	}

	saved, err := p.registers()
	if err != nil {
		return err
	}

	// Arm the return trap, preserving whatever byte lives there.
	origTrap := make([]byte, 1)
	if _, err := p.ReadMemory(origTrap, p.retTrap); err != nil {
		return err
	}
	if _, err := p.WriteMemory(p.retTrap, []byte{0xCC}); err != nil {
		return err
	}

	work := saved
	sp := work.Rsp
	for _, v := range stack {
		sp -= uint64(p.ptrSize)
		if err := p.writeWord(sp, v); err != nil {
			p.WriteMemory(p.retTrap, origTrap)
			return err
		}
	}
	sp -= uint64(p.ptrSize)
	if err := p.writeWord(sp, p.retTrap); err != nil {
		p.WriteMemory(p.retTrap, origTrap)
		return err
	}
	work.Rsp = sp
	for name, v := range regs {
		if err := setReg(&work, name, v); err != nil {
			p.WriteMemory(p.retTrap, origTrap)
			return err
		}
	}
	work.SetPC(addr)

	if err := p.setRegisters(&work); err != nil {
		p.WriteMemory(p.retTrap, origTrap)
		return err
	}
	logger.Debugf("calling %#x with %d stack words", addr, len(stack))

	pc, runErr := p.ContinueToTrap()

	// Whatever happened, put the target back the way we found it.
	if err := p.setRegisters(&saved); err != nil {
		return err
	}
	if _, err := p.WriteMemory(p.retTrap, origTrap); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if pc-1 != p.retTrap {
		return fmt.Errorf("unexpected stop at %#x during call to %#x", pc, addr)
	}
	return nil
}

func (p *Process) writeWord(addr, val uint64) error {
	buf := make([]byte, p.ptrSize)
	if p.ptrSize == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(val))
	} else {
		binary.LittleEndian.PutUint64(buf, val)
	}
	_, err := p.WriteMemory(addr, buf)
	return err
}
