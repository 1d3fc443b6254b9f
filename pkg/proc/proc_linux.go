package proc

import (
	"fmt"
	"runtime"
	"sync/atomic"

	sys "golang.org/x/sys/unix"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// Process represents a process we have attached to with ptrace. It is
// stopped on attach and every operation other than ContinueToTrap expects
// it to be stopped.
type Process struct {
	// Pid is the process ID.
	Pid int

	ptrSize  int
	retTrap  uint64
	halt     int32
	exited   bool
	detached bool

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
}

// Attach stops the process with the given PID and takes control of it. The
// returned Process is left stopped.
func Attach(pid int) (*Process, error) {
	p := &Process{
		Pid:            pid,
		ptrSize:        8,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	go p.handlePtraceFuncs()

	var err error
	p.execPtraceFunc(func() { err = sys.PtraceAttach(pid) })
	if err != nil {
		return nil, fmt.Errorf("could not attach to pid %d: %v", pid, err)
	}
	_, status, err := p.wait()
	if err != nil {
		return nil, fmt.Errorf("error waiting for attach stop: %v", err)
	}
	if status.Exited() {
		return nil, ProcessExitedError{Pid: pid, Status: status.ExitStatus()}
	}
	logflags.ProcLogger().Debugf("attached to pid %d", pid)
	return p, nil
}

// Detach releases the target and lets it run free. The process must be
// stopped. Idempotent.
func (p *Process) Detach() error {
	if p.detached || p.exited {
		return nil
	}
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceDetach(p.Pid) })
	if err != nil {
		return fmt.Errorf("could not detach from pid %d: %v", p.Pid, err)
	}
	p.detached = true
	close(p.ptraceChan)
	logflags.ProcLogger().Debugf("detached from pid %d", p.Pid)
	return nil
}

// Exited reports whether the target has exited.
func (p *Process) Exited() bool {
	return p.exited
}

// SetPointerSize configures the width, in bytes, of pointers and stack
// slots in the target. The target build dictates it, not the tracer.
func (p *Process) SetPointerSize(n int) {
	p.ptrSize = n
}

// PointerSize returns the configured target pointer width.
func (p *Process) PointerSize() int {
	return p.ptrSize
}

// SetReturnTrap configures the scratch address used as the return target of
// remote routine calls.
func (p *Process) SetReturnTrap(addr uint64) {
	p.retTrap = addr
}

// ReadMemory reads len(buf) bytes of target memory at addr.
func (p *Process) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}
	p.execPtraceFunc(func() { n, err = sys.PtracePeekData(p.Pid, uintptr(addr), buf) })
	if err != nil {
		return n, fmt.Errorf("could not read %d bytes at %#x: %v", len(buf), addr, err)
	}
	return n, nil
}

// WriteMemory writes data to target memory at addr. Writes through ptrace
// are not subject to page protection, so patching code needs no protection
// flip.
func (p *Process) WriteMemory(addr uint64, data []byte) (written int, err error) {
	if len(data) == 0 {
		return 0, nil
	}
	p.execPtraceFunc(func() { written, err = sys.PtracePokeData(p.Pid, uintptr(addr), data) })
	if err != nil {
		return written, fmt.Errorf("could not write %d bytes at %#x: %v", len(data), addr, err)
	}
	return written, nil
}

// PC returns the current program counter of the stopped target.
func (p *Process) PC() (uint64, error) {
	regs, err := p.registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// SetPC moves the program counter of the stopped target.
func (p *Process) SetPC(pc uint64) error {
	regs, err := p.registers()
	if err != nil {
		return err
	}
	regs.SetPC(pc)
	return p.setRegisters(&regs)
}

// StepInstruction executes exactly one instruction of the stopped target.
func (p *Process) StepInstruction() error {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceSingleStep(p.Pid) })
	if err != nil {
		return fmt.Errorf("could not single step: %v", err)
	}
	_, status, err := p.wait()
	if err != nil {
		return err
	}
	if status.Exited() {
		return ProcessExitedError{Pid: p.Pid, Status: status.ExitStatus()}
	}
	return nil
}

// ContinueToTrap resumes the target and waits until it stops on a SIGTRAP,
// returning the program counter at the stop. Other stop signals are
// forwarded to the target and the wait continues. A stop caused by
// RequestManualStop returns ErrManualStop.
func (p *Process) ContinueToTrap() (uint64, error) {
	if err := p.resume(0); err != nil {
		return 0, err
	}
	for {
		_, status, err := p.wait()
		if err != nil {
			return 0, fmt.Errorf("wait err %v %d", err, p.Pid)
		}
		if status.Exited() {
			p.exited = true
			return 0, ProcessExitedError{Pid: p.Pid, Status: status.ExitStatus()}
		}
		sig := status.StopSignal()
		if sig == sys.SIGTRAP {
			return p.PC()
		}
		if sig == sys.SIGSTOP && atomic.LoadInt32(&p.halt) == 1 {
			atomic.StoreInt32(&p.halt, 0)
			return 0, ErrManualStop
		}
		// Not ours, deliver it and keep waiting.
		if err := p.resume(int(sig)); err != nil {
			return 0, err
		}
	}
}

// RequestManualStop interrupts a ContinueToTrap from another goroutine,
// leaving the target stopped.
func (p *Process) RequestManualStop() error {
	atomic.StoreInt32(&p.halt, 1)
	return sys.Kill(p.Pid, sys.SIGSTOP)
}

func (p *Process) resume(sig int) error {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceCont(p.Pid, sig) })
	if err != nil {
		return fmt.Errorf("could not continue pid %d: %v", p.Pid, err)
	}
	return nil
}

func (p *Process) registers() (sys.PtraceRegs, error) {
	var regs sys.PtraceRegs
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceGetRegs(p.Pid, &regs) })
	if err != nil {
		return regs, fmt.Errorf("could not get registers: %v", err)
	}
	return regs, nil
}

func (p *Process) setRegisters(regs *sys.PtraceRegs) error {
	var err error
	p.execPtraceFunc(func() { err = sys.PtraceSetRegs(p.Pid, regs) })
	if err != nil {
		return fmt.Errorf("could not set registers: %v", err)
	}
	return nil
}

func (p *Process) wait() (int, *sys.WaitStatus, error) {
	var status sys.WaitStatus
	wpid, err := sys.Wait4(p.Pid, &status, sys.WALL, nil)
	return wpid, &status, err
}

// Ptrace insists that all requests come from the thread that attached, so
// every ptrace call is funneled through a single locked OS thread.
func (p *Process) handlePtraceFuncs() {
	runtime.LockOSThread()
	for fn := range p.ptraceChan {
		fn()
		p.ptraceDoneChan <- nil
	}
}

func (p *Process) execPtraceFunc(fn func()) {
	p.ptraceChan <- fn
	<-p.ptraceDoneChan
}
