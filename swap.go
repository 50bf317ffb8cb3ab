package csicapture

import (
	"fmt"
	"time"

	"github.com/ironsteel/fosdem-video-linux/internal/hw"
)

// ServiceInterrupt is the engine's single interrupt entry point. It reads
// and acknowledges the interrupt status, then runs the frame-done swap when
// the frame-complete bit was set. Non-blocking and safe to invoke
// concurrently with any control-context operation.
func (e *Engine) ServiceInterrupt() {
	e.mu.Lock()

	value := e.regs.Read(hw.RegIntStatus)

	// ack.
	e.regs.Write(hw.RegIntStatus, value)

	e.mu.Unlock()

	if value&hw.IntFrameDone != 0 {
		e.frameDone()
	}
}

// frameDone retires the hardware slot the engine just finished writing and
// installs the next pending buffer in its place. When the queue is empty
// the scratch planes go in instead and the module disables itself; no
// further frame-done interrupts arrive until Rearm.
//
// The queue pop, the slot table update and the address-register writes are
// one atomic unit under the buffer lock: a second interrupt must never
// observe a slot whose registers are mid-update. Delivery of the retired
// buffer happens after the lock is dropped, because the consumer callback
// may block.
func (e *Engine) frameDone() {
	e.mu.Lock()

	sequence := e.sequence
	e.sequence++

	slot := int(sequence & 1)

	old := e.slots[slot]

	var addrs [3]uint32
	disabled := false
	if next, ok := e.queue.PopFrontLocked(); ok {
		addrs = next.Planes
		e.slots[slot] = next
	} else {
		// disable module
		hw.Mask(e.regs, hw.RegEnable, 0, hw.EnableModule)
		disabled = true
		addrs = e.scratch.Addresses()
		e.slots[slot] = nil
	}

	e.writeSlotLocked(slot, addrs)

	e.mu.Unlock()

	if disabled {
		e.starvations.Add(1)
		e.log.Info("queue starved, engine disabled", "frames", sequence+1)
	}

	if old == nil {
		// The slot held the scratch planes; nothing to deliver.
		return
	}

	e.framesDone.Add(1)
	e.complete(old, sequence, time.Now(), StatusDone)
}

// Rearm restarts capture after a starvation-triggered disable. Slots that
// fell back to the scratch planes are refilled from the pending queue, then
// the module and capture bits are set again. Requires an active session and
// enough queued buffers to refill every empty slot.
//
// Enqueue never re-arms on its own; recovery from starvation is an explicit
// consumer decision.
func (e *Engine) Rearm() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.State() != StateCapturing {
		return ErrNotStreaming
	}

	e.mu.Lock()

	needed := 0
	for _, buf := range e.slots {
		if buf == nil {
			needed++
		}
	}
	if depth := e.queue.LenLocked(); depth < needed {
		e.mu.Unlock()
		return fmt.Errorf("%w: have %d, need %d to refill the hardware slots", ErrInsufficientBuffers, depth, needed)
	}

	for slot := range e.slots {
		if e.slots[slot] != nil {
			continue
		}
		next, _ := e.queue.PopFrontLocked()
		e.slots[slot] = next
		e.writeSlotLocked(slot, next.Planes)
	}

	hw.Mask(e.regs, hw.RegEnable, hw.EnableModule, hw.EnableModule)
	hw.Mask(e.regs, hw.RegCapture, hw.CaptureVideo, hw.CaptureVideo)

	e.mu.Unlock()

	e.log.Info("capture re-armed", "refilled_slots", needed)

	return nil
}
