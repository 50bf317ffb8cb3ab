package csicapture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ironsteel/fosdem-video-linux/internal/bufqueue"
	"github.com/ironsteel/fosdem-video-linux/internal/hw"
	"github.com/ironsteel/fosdem-video-linux/internal/scratch"
)

// minQueueDepth is the pending-queue depth required to start streaming:
// two buffers seed the hardware slots and at least one stays in reserve
// so the first frame-done does not immediately starve the engine.
const minQueueDepth = 3

// Engine drives one CSI1 capture device: it sequences power, keeps the
// double-buffered slots fed from the pending queue, and returns retired
// buffers to the consumer. One Engine per device session; the caller owns
// the instance.
//
// Two execution contexts touch an Engine: the control context
// (StartStreaming, StopStreaming, Enqueue, Rearm, controls) and the
// interrupt context (ServiceInterrupt). The buffer lock is the only
// synchronization shared between them and is never held across a call
// that may sleep.
type Engine struct {
	regs   hw.Regs
	clkBus hw.Clock
	clkMod hw.Clock
	clkRAM hw.Clock
	reset  hw.Reset

	log      *slog.Logger
	complete CompleteFunc

	format        Format
	hsyncPolarity bool
	vsyncPolarity bool

	// stateMu serializes control-context lifecycle transitions.
	stateMu sync.Mutex
	state   atomic.Int32
	powered bool

	sessionID atomic.Value // string

	// mu is the buffer lock: it guards the pending queue, the hardware
	// slot table, the display-start shadow values and every
	// buffer-address register update. Usable from the interrupt path,
	// so nothing that sleeps may run under it.
	mu            sync.Mutex
	queue         *bufqueue.Queue[*Buffer]
	slots         [2]*Buffer
	sequence      uint64
	hdisplayStart uint32
	vdisplayStart uint32

	scratch *scratch.Scratch

	framesDone  atomic.Uint64
	starvations atomic.Uint64
	drained     atomic.Uint64
}

// New validates cfg and builds a stopped engine. Fail-fast: a missing
// resource or an impossible geometry is reported here, not at start time.
func New(cfg Config) (*Engine, error) {
	if cfg.Regs == nil {
		return nil, fmt.Errorf("csicapture: register access is required")
	}
	if cfg.ClockBus == nil || cfg.ClockModule == nil || cfg.ClockRAM == nil {
		return nil, fmt.Errorf("csicapture: bus, module and ram clocks are required")
	}
	if cfg.Reset == nil {
		return nil, fmt.Errorf("csicapture: reset control is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("csicapture: dma pool is required")
	}
	if cfg.OnBufferComplete == nil {
		return nil, fmt.Errorf("csicapture: completion callback is required")
	}

	format, err := cfg.Format.normalize()
	if err != nil {
		return nil, err
	}

	hstart, vstart := cfg.HDisplayStart, cfg.VDisplayStart
	if hstart == 0 && vstart == 0 {
		hstart, vstart = DefaultHDisplayStart, DefaultVDisplayStart
	}
	if hstart < 0 || hstart > int(hw.SizeMaskLow) || vstart < 0 || vstart > int(hw.SizeMaskLow) {
		return nil, fmt.Errorf("%w: h=%d v=%d", ErrControlOutOfRange, hstart, vstart)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		regs:          cfg.Regs,
		clkBus:        cfg.ClockBus,
		clkMod:        cfg.ClockModule,
		clkRAM:        cfg.ClockRAM,
		reset:         cfg.Reset,
		log:           logger,
		complete:      cfg.OnBufferComplete,
		format:        format,
		hsyncPolarity: cfg.HSyncPolarity,
		vsyncPolarity: cfg.VSyncPolarity,
		hdisplayStart: uint32(hstart),
		vdisplayStart: uint32(vstart),
	}
	e.queue = bufqueue.New[*Buffer](&e.mu)
	e.scratch = scratch.New(cfg.Pool)
	e.state.Store(int32(StateStopped))
	e.sessionID.Store("")

	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() StreamState {
	return StreamState(e.state.Load())
}

// Enqueue appends a buffer to the pending FIFO. Callable in any state and
// from any context except the interrupt path. A buffer without a TraceID
// gets one assigned.
//
// Enqueueing after a starvation-triggered disable does not restart
// capture; call Rearm for that.
func (e *Engine) Enqueue(buf *Buffer) error {
	if buf == nil {
		return ErrNilBuffer
	}
	if buf.TraceID == "" {
		buf.TraceID = uuid.NewString()
	}
	e.queue.Push(buf)
	return nil
}

// StartStreaming powers the device, seeds the two hardware slots from the
// pending queue and arms capture. The queue must hold at least three
// buffers. On any failure the engine is left stopped with every completed
// power step undone.
func (e *Engine) StartStreaming() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.State() != StateStopped {
		return ErrAlreadyStreaming
	}
	if depth := e.queue.Len(); depth < minQueueDepth {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBuffers, depth, minQueueDepth)
	}

	e.state.Store(int32(StatePowering))

	// May sleep; the buffer lock is not held here.
	if err := e.scratch.Allocate(e.format.PlaneCount, e.format.PlaneSize); err != nil {
		e.state.Store(int32(StateStopped))
		return fmt.Errorf("csicapture: scratch buffer: %w", err)
	}

	if err := e.powerOn(); err != nil {
		e.scratch.Free()
		e.state.Store(int32(StateStopped))
		return err
	}
	e.powered = true

	session := uuid.NewString()
	e.sessionID.Store(session)

	e.engineStart()

	e.state.Store(int32(StateCapturing))
	e.log.Info("streaming started",
		"session", session,
		"format", e.format.String(),
		"queue_depth", e.queue.Len(),
	)

	return nil
}

// StopStreaming disarms capture, returns every in-flight and pending
// buffer to the consumer with StatusError, releases the scratch planes and
// powers the device down. Idempotent: calling it while stopped, or after a
// failed start, is a no-op.
func (e *Engine) StopStreaming() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.State() == StateStopped {
		return nil
	}

	e.writeSpin(hw.RegCapture, 0)

	e.mu.Lock()
	var orphans []*Buffer
	for i, buf := range e.slots {
		if buf != nil {
			orphans = append(orphans, buf)
			e.slots[i] = nil
		}
	}
	orphans = append(orphans, e.queue.DrainLocked()...)
	sequence := e.sequence
	e.mu.Unlock()

	now := time.Now()
	for _, buf := range orphans {
		e.drained.Add(1)
		e.complete(buf, sequence, now, StatusError)
	}
	if len(orphans) > 0 {
		e.log.Info("drained buffers on stop", "count", len(orphans))
	}

	e.scratch.Free()

	e.powerOff()
	e.powered = false

	e.state.Store(int32(StateStopped))
	e.log.Info("streaming stopped", "frames", e.framesDone.Load())

	return nil
}

// Suspend powers the device down for system sleep. A stopped engine has
// nothing to do.
func (e *Engine) Suspend() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !e.powered {
		return nil
	}

	e.powerOff()
	return nil
}

// Resume restores power after Suspend. The session's register state is
// reprogrammed by the caller re-arming capture.
func (e *Engine) Resume() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !e.powered {
		return nil
	}

	return e.powerOn()
}

// powerOn runs the power-up sequence. A failing step unwinds the steps
// already completed, in reverse order, before reporting the error.
func (e *Engine) powerOn() error {
	if err := e.reset.Deassert(); err != nil {
		return fmt.Errorf("csicapture: reset deassert failed: %w", err)
	}

	if err := e.clkBus.Enable(); err != nil {
		e.reset.Assert()
		return fmt.Errorf("csicapture: bus clock enable failed: %w", err)
	}

	if err := e.clkRAM.Enable(); err != nil {
		e.clkBus.Disable()
		e.reset.Assert()
		return fmt.Errorf("csicapture: ram clock enable failed: %w", err)
	}

	if err := e.clkMod.SetRate(hw.ModuleClockHz); err != nil {
		e.clkRAM.Disable()
		e.clkBus.Disable()
		e.reset.Assert()
		return fmt.Errorf("csicapture: module clock rate failed: %w", err)
	}
	if err := e.clkMod.Enable(); err != nil {
		e.clkRAM.Disable()
		e.clkBus.Disable()
		e.reset.Assert()
		return fmt.Errorf("csicapture: module clock enable failed: %w", err)
	}

	e.maskSpin(hw.RegEnable, hw.EnableModule, hw.EnableModule)

	return nil
}

// powerOff reverses the power-up sequence. Step failures are logged and
// ignored; the device is going away regardless.
func (e *Engine) powerOff() {
	e.maskSpin(hw.RegEnable, 0, hw.EnableModule)

	if err := e.clkMod.Disable(); err != nil {
		e.log.Warn("module clock disable failed", "error", err)
	}
	if err := e.clkRAM.Disable(); err != nil {
		e.log.Warn("ram clock disable failed", "error", err)
	}
	if err := e.clkBus.Disable(); err != nil {
		e.log.Warn("bus clock disable failed", "error", err)
	}
	if err := e.reset.Assert(); err != nil {
		e.log.Warn("reset assert failed", "error", err)
	}
}

// engineStart programs the session registers and arms capture. The whole
// setup is one atomic unit under the buffer lock so the first interrupt
// cannot observe a half-programmed slot table.
func (e *Engine) engineStart() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sequence = 0

	e.slots[0], _ = e.queue.PopFrontLocked()
	e.slots[1], _ = e.queue.PopFrontLocked()

	// Input format: yuv444.
	hw.Mask(e.regs, hw.RegConfig, hw.ConfigInputYUV444, hw.ConfigInputMask)
	// Output format: field planar yuv444.
	hw.Mask(e.regs, hw.RegConfig, hw.ConfigOutputFieldPlanar, hw.ConfigOutputMask)

	if e.vsyncPolarity {
		hw.Mask(e.regs, hw.RegConfig, hw.ConfigVSyncPositive, hw.ConfigVSyncPositive)
	} else {
		hw.Mask(e.regs, hw.RegConfig, 0, hw.ConfigVSyncPositive)
	}
	if e.hsyncPolarity {
		hw.Mask(e.regs, hw.RegConfig, hw.ConfigHSyncPositive, hw.ConfigHSyncPositive)
	} else {
		hw.Mask(e.regs, hw.RegConfig, 0, hw.ConfigHSyncPositive)
	}

	// PCLK is low.
	hw.Mask(e.regs, hw.RegConfig, 0, hw.ConfigPClkMask)

	e.writeSlotLocked(0, e.slots[0].Planes)
	e.writeSlotLocked(1, e.slots[1].Planes)

	// Double buffering on, buffer A first.
	e.regs.Write(hw.RegBufferControl, hw.BufferControlDouble)

	hw.Mask(e.regs, hw.RegIntEnable, hw.IntFrameDone, hw.IntFrameDone)

	hw.Mask(e.regs, hw.RegHSize, uint32(e.format.Width)<<16, hw.SizeMaskHigh)
	hw.Mask(e.regs, hw.RegHSize, e.hdisplayStart, hw.SizeMaskLow)

	hw.Mask(e.regs, hw.RegVSize, uint32(e.format.Height)<<16, hw.SizeMaskHigh)
	hw.Mask(e.regs, hw.RegVSize, e.vdisplayStart, hw.SizeMaskLow)

	hw.Mask(e.regs, hw.RegStride, uint32(e.format.BytesPerLine), hw.SizeMaskLow)

	hw.Mask(e.regs, hw.RegCapture, hw.CaptureVideo, hw.CaptureVideo)
}

// writeSlotLocked programs one hardware slot's plane addresses. Caller
// holds the buffer lock.
func (e *Engine) writeSlotLocked(slot int, addrs [3]uint32) {
	for plane := range addrs {
		e.regs.Write(hw.PlaneBufferReg(slot, plane), addrs[plane])
	}
}

// writeSpin writes a register under the buffer lock.
func (e *Engine) writeSpin(offset, value uint32) {
	e.mu.Lock()
	e.regs.Write(offset, value)
	e.mu.Unlock()
}

// readSpin reads a register under the buffer lock.
func (e *Engine) readSpin(offset uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs.Read(offset)
}

// maskSpin does a read-modify-write under the buffer lock.
func (e *Engine) maskSpin(offset, value, mask uint32) {
	e.mu.Lock()
	hw.Mask(e.regs, offset, value, mask)
	e.mu.Unlock()
}
