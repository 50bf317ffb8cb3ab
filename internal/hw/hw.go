// Package hw defines the contracts the capture engine consumes from the
// platform: memory-mapped register access and clock/reset control. The
// register map mirrors the CSI1 data sheet bit for bit; see regs.go.
//
// Implementations back these interfaces with real MMIO on the device and
// with an in-memory register file in tests (internal/hwsim).
package hw

// Regs provides 32-bit access to the engine's control registers.
//
// Implementations must not block: Read and Write are called from the
// interrupt path while the engine's buffer lock is held.
type Regs interface {
	Read(offset uint32) uint32
	Write(offset uint32, value uint32)
}

// Mask performs a read-modify-write of the bits selected by mask.
// Bits outside mask keep their current value.
func Mask(r Regs, offset, value, mask uint32) {
	temp := r.Read(offset)

	temp &^= mask
	value &= mask

	r.Write(offset, value|temp)
}

// Clock controls one of the gated clocks feeding the capture engine.
// Enable and SetRate may fail; Disable failures are reported but the
// engine ignores them during teardown.
type Clock interface {
	Enable() error
	Disable() error
	SetRate(hz uint64) error
}

// Reset controls the engine's reset line.
type Reset interface {
	Assert() error
	Deassert() error
}
