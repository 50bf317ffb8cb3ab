// Package csicapture drives the Allwinner A10/A20 CSI1 capture engine: it
// keeps a real-time, double-buffered DMA pipeline fed with consumer buffer
// addresses at interrupt cadence.
//
// # Quick Start
//
//	engine, err := csicapture.New(csicapture.Config{
//	    Regs:        regs,
//	    ClockBus:    clkBus,
//	    ClockModule: clkMod,
//	    ClockRAM:    clkRAM,
//	    Reset:       reset,
//	    Pool:        pool,
//	    OnBufferComplete: func(buf *csicapture.Buffer, seq uint64, ts time.Time, status csicapture.Status) {
//	        // Buffer ownership is back with the consumer here.
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, buf := range buffers {
//	    engine.Enqueue(buf)
//	}
//	if err := engine.StartStreaming(); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.StopStreaming()
//
// The platform's interrupt handler forwards every IRQ to
// Engine.ServiceInterrupt.
//
// # Buffer Lifecycle
//
// A Buffer enters the engine through Enqueue and leaves exactly once
// through the completion callback: with StatusDone and a session sequence
// number when the hardware finished writing it, or with StatusError when
// StopStreaming drained it. Between those points the buffer is either
// pending in the FIFO or bound to one of the two hardware slots; never
// both.
//
// # Starvation
//
// The hardware writes a frame every vsync whether or not a buffer is
// available. When a frame completes and the pending queue is empty, the
// swap path points the starved slot at engine-owned scratch planes and
// clears the module-enable bit, so capture winds down instead of DMA-ing
// into freed memory. This is normal operation, not an error; the consumer
// re-enables capture with Rearm once it has queued fresh buffers.
//
// # Concurrency
//
// Control-context operations (lifecycle, Enqueue, controls) may run
// concurrently with the interrupt path. A single buffer lock covers the
// pending queue, the slot table and the buffer-address registers; it is
// never held across anything that sleeps, and consumer callbacks always
// run outside it.
//
// # Format
//
// The engine captures exactly one layout: planar YUV444, three equal
// planes, geometry fixed per session (1920x1080 by default). CheckFormat
// implements the negotiation guard; everything else about format handling
// lives with the v4l2 plumbing above this package.
package csicapture
