package hook

import (
	"errors"
	"sync"

	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
	"github.com/ChesterMargery/PVZTrain/pkg/proc"
)

// TickFunc runs once per iteration of the target's main loop, with the
// target stopped. It must not block: anything it cannot do this tick it
// retries next tick.
type TickFunc func()

// Pump drives the intercepted loop: it installs the interceptor, then
// resumes the target and runs the tick callback at every trap until Stop
// is called or the target goes away.
type Pump struct {
	ctrl Controller
	icp  Interceptor
	tick TickFunc

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPump returns a Pump ready to Run.
func NewPump(ctrl Controller, icp Interceptor, tick TickFunc) *Pump {
	return &Pump{ctrl: ctrl, icp: icp, tick: tick, stop: make(chan struct{})}
}

// Run blocks until Stop is called or an error occurs. The interceptor is
// uninstalled on the way out whatever the cause, so a stopped pump leaves
// the target's code byte-identical to its pre-install state.
func (p *Pump) Run() error {
	logger := logflags.HookLogger()
	if err := p.icp.Install(); err != nil {
		return err
	}
	defer func() {
		if err := p.icp.Uninstall(); err != nil {
			logger.Errorf("uninstall failed: %v", err)
		}
	}()

	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		pc, err := p.ctrl.ContinueToTrap()
		if errors.Is(err, proc.ErrManualStop) {
			return nil
		}
		if err != nil {
			return err
		}
		// The trap leaves the PC one byte past the trap instruction.
		if pc-1 != p.icp.TrapAddr() {
			logger.Debugf("unexpected trap at %#x, resuming", pc)
			continue
		}
		if err := p.ctrl.SetPC(p.icp.ResumePC()); err != nil {
			return err
		}
		p.runTick()
		if err := p.icp.StepOver(); err != nil {
			return err
		}
	}
}

// Stop makes Run return after the current tick. Safe to call more than
// once and from any goroutine.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if err := p.ctrl.RequestManualStop(); err != nil {
			logflags.HookLogger().Debugf("manual stop request failed: %v", err)
		}
	})
}

// A panic in the tick callback must not propagate into the trap handling,
// or the target would be left stopped mid-tick.
func (p *Pump) runTick() {
	defer func() {
		if r := recover(); r != nil {
			logflags.HookLogger().Errorf("tick callback panicked: %v", r)
		}
	}()
	p.tick()
}
