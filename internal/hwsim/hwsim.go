// Package hwsim simulates the CSI1 capture engine's platform resources:
// the register file, the bus/module/ram clocks, the reset line, and a
// DMA-capable memory arena. It exists so the engine and its tests run
// hostless, with deterministic interrupts and injectable failures.
package hwsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ironsteel/fosdem-video-linux/internal/hw"
	"github.com/ironsteel/fosdem-video-linux/internal/scratch"
)

// WriteOp records one register write, in program order.
type WriteOp struct {
	Offset uint32
	Value  uint32
}

// Registers is an in-memory register file implementing hw.Regs. All
// accesses are journaled so tests can assert on exact write sequences.
type Registers struct {
	mu      sync.Mutex
	regs    map[uint32]uint32
	journal []WriteOp
}

// NewRegisters creates a register file with every register reading zero.
func NewRegisters() *Registers {
	return &Registers{regs: make(map[uint32]uint32)}
}

// Read implements hw.Regs.
func (r *Registers) Read(offset uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[offset]
}

// Write implements hw.Regs. The interrupt status register is
// write-1-to-clear, like the hardware; every other register stores the
// value.
func (r *Registers) Write(offset uint32, value uint32) {
	r.mu.Lock()
	if offset == hw.RegIntStatus {
		r.regs[offset] &^= value
	} else {
		r.regs[offset] = value
	}
	r.journal = append(r.journal, WriteOp{Offset: offset, Value: value})
	r.mu.Unlock()
}

// Set stores a register value without journaling, for test setup and for
// hardware-driven updates like interrupt status.
func (r *Registers) Set(offset uint32, value uint32) {
	r.mu.Lock()
	r.regs[offset] = value
	r.mu.Unlock()
}

// Journal returns a copy of all writes performed so far.
func (r *Registers) Journal() []WriteOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WriteOp, len(r.journal))
	copy(out, r.journal)
	return out
}

// ResetJournal discards the recorded writes.
func (r *Registers) ResetJournal() {
	r.mu.Lock()
	r.journal = nil
	r.mu.Unlock()
}

// Clock simulates one gated clock. A non-nil EnableErr or SetRateErr makes
// the corresponding call fail, for power-sequence unwind tests.
type Clock struct {
	Name       string
	EnableErr  error
	SetRateErr error

	mu      sync.Mutex
	enabled bool
	rate    uint64
	enables int
}

// Enable implements hw.Clock.
func (c *Clock) Enable() error {
	if c.EnableErr != nil {
		return c.EnableErr
	}
	c.mu.Lock()
	c.enabled = true
	c.enables++
	c.mu.Unlock()
	return nil
}

// Disable implements hw.Clock.
func (c *Clock) Disable() error {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	return nil
}

// SetRate implements hw.Clock.
func (c *Clock) SetRate(hz uint64) error {
	if c.SetRateErr != nil {
		return c.SetRateErr
	}
	c.mu.Lock()
	c.rate = hz
	c.mu.Unlock()
	return nil
}

// Enabled reports whether the clock is currently running.
func (c *Clock) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Rate returns the last rate set.
func (c *Clock) Rate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Reset simulates the reset line. Lines come out of the simulator asserted,
// matching a device waiting for its driver.
type Reset struct {
	DeassertErr error

	mu       sync.Mutex
	asserted bool
}

// NewReset returns an asserted reset line.
func NewReset() *Reset {
	return &Reset{asserted: true}
}

// Assert implements hw.Reset.
func (r *Reset) Assert() error {
	r.mu.Lock()
	r.asserted = true
	r.mu.Unlock()
	return nil
}

// Deassert implements hw.Reset.
func (r *Reset) Deassert() error {
	if r.DeassertErr != nil {
		return r.DeassertErr
	}
	r.mu.Lock()
	r.asserted = false
	r.mu.Unlock()
	return nil
}

// Asserted reports whether the line is held in reset.
func (r *Reset) Asserted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asserted
}

// ErrPoolExhausted is returned once a Pool's failure injection triggers.
var ErrPoolExhausted = errors.New("hwsim: dma pool exhausted")

// Pool is a bump allocator over a single arena, implementing scratch.Pool.
// Bus addresses start away from zero so address 0 stays recognizable as
// "unprogrammed".
type Pool struct {
	// FailAfter makes AllocCoherent fail once this many allocations have
	// succeeded. Zero or negative disables injection.
	FailAfter int

	mu     sync.Mutex
	arena  []byte
	base   uint32
	next   int
	allocs int
	frees  int
}

// NewPool creates an arena of the given size at bus address base.
func NewPool(base uint32, size int) *Pool {
	return &Pool{arena: make([]byte, size), base: base}
}

// AllocCoherent implements scratch.Pool.
func (p *Pool) AllocCoherent(size int) (*scratch.Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailAfter > 0 && p.allocs >= p.FailAfter {
		return nil, ErrPoolExhausted
	}
	if p.next+size > len(p.arena) {
		return nil, ErrPoolExhausted
	}

	addr := p.base + uint32(p.next)
	data := p.arena[p.next : p.next+size : p.next+size]
	p.next += size
	p.allocs++

	return scratch.NewRegion(addr, data, func() {
		p.mu.Lock()
		p.frees++
		p.mu.Unlock()
	}), nil
}

// Lookup resolves a bus address to its CPU-visible mapping, or nil when the
// address is outside the arena.
func (p *Pool) Lookup(addr uint32, size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	off := int(addr) - int(p.base)
	if off < 0 || off+size > len(p.arena) {
		return nil
	}
	return p.arena[off : off+size]
}

// Frees reports how many regions have been released back.
func (p *Pool) Frees() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frees
}

// Allocs reports how many allocations have succeeded.
func (p *Pool) Allocs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocs
}

// Device bundles the simulated resources and models the capture side of the
// hardware: when enabled, every frame completion writes a test pattern into
// the active slot's planes and latches the frame-done interrupt status.
type Device struct {
	Regs  *Registers
	Bus   *Clock
	Mod   *Clock
	RAM   *Clock
	Reset *Reset
	Pool  *Pool

	planeCount int
	planeSize  int

	mu     sync.Mutex
	frames uint64
}

// NewDevice creates a simulated device for the given frame geometry.
func NewDevice(planeCount, planeSize, arenaSize int) *Device {
	return &Device{
		Regs:       NewRegisters(),
		Bus:        &Clock{Name: "bus"},
		Mod:        &Clock{Name: "mod"},
		RAM:        &Clock{Name: "ram"},
		Reset:      NewReset(),
		Pool:       NewPool(0x40000000, arenaSize),
		planeCount: planeCount,
		planeSize:  planeSize,
	}
}

// Capturing reports whether the module is enabled with video capture on.
func (d *Device) Capturing() bool {
	enable := d.Regs.Read(hw.RegEnable)
	capture := d.Regs.Read(hw.RegCapture)
	return enable&hw.EnableModule != 0 && capture&hw.CaptureVideo != 0
}

// CompleteFrame simulates one hardware frame completion: it fills the active
// slot's planes with a sequence-tagged pattern and raises the frame-done
// status bit. It reports false, without side effects, when the module is
// disabled, capture is off, or the interrupt is not enabled.
//
// The caller is expected to follow up with the engine's interrupt entry
// point, the way the platform's IRQ line would.
func (d *Device) CompleteFrame() (bool, error) {
	if !d.Capturing() {
		return false, nil
	}
	if d.Regs.Read(hw.RegIntEnable)&hw.IntFrameDone == 0 {
		return false, nil
	}

	d.mu.Lock()
	seq := d.frames
	d.frames++
	d.mu.Unlock()

	slot := int(seq & 1)
	for plane := 0; plane < d.planeCount; plane++ {
		addr := d.Regs.Read(hw.PlaneBufferReg(slot, plane))
		data := d.Pool.Lookup(addr, d.planeSize)
		if data == nil {
			return false, fmt.Errorf("hwsim: slot %d plane %d points at unmapped address 0x%08X", slot, plane, addr)
		}
		fillPattern(data, seq, plane)
	}

	status := d.Regs.Read(hw.RegIntStatus)
	d.Regs.Set(hw.RegIntStatus, status|hw.IntFrameDone)

	return true, nil
}

// Frames reports how many frames the simulated sensor has produced.
func (d *Device) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// ResetFrames restarts the sensor's slot parity at buffer A, matching a
// fresh session's BUFFER_CONTROL programming. Call between sessions.
func (d *Device) ResetFrames() {
	d.mu.Lock()
	d.frames = 0
	d.mu.Unlock()
}

// fillPattern tags a plane with the frame sequence so tests and the capture
// tool can verify which frame landed where.
func fillPattern(data []byte, seq uint64, plane int) {
	level := byte(seq*37 + uint64(plane)*85)
	for i := range data {
		data[i] = level
	}
	if len(data) >= 8 {
		binary.LittleEndian.PutUint64(data[:8], seq)
	}
}
