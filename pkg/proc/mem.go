package proc

// MemoryReadWriter is the raw memory surface of an attached process. All
// reads and writes of target memory, including the interceptor's patches,
// go through this interface.
type MemoryReadWriter interface {
	ReadMemory(buf []byte, addr uint64) (n int, err error)
	WriteMemory(addr uint64, data []byte) (written int, err error)
}
