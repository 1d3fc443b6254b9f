package proc

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// setReg stores val into the named register. The 32-bit names alias the low
// half of the 64-bit registers, which is what a 32-bit target observes.
func setReg(regs *sys.PtraceRegs, name string, val uint64) error {
	switch name {
	case "rax", "eax":
		regs.Rax = val
	case "rbx", "ebx":
		regs.Rbx = val
	case "rcx", "ecx":
		regs.Rcx = val
	case "rdx", "edx":
		regs.Rdx = val
	case "rsi", "esi":
		regs.Rsi = val
	case "rdi", "edi":
		regs.Rdi = val
	case "rbp", "ebp":
		regs.Rbp = val
	case "rsp", "esp":
		regs.Rsp = val
	case "r8":
		regs.R8 = val
	case "r9":
		regs.R9 = val
	default:
		return fmt.Errorf("unknown register %q", name)
	}
	return nil
}
