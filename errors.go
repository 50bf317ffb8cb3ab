package csicapture

import "errors"

// Public API errors. Failures propagated from platform resources (clocks,
// reset, allocation) are wrapped with context and unwrap to the underlying
// cause instead.
var (
	// ErrInsufficientBuffers means the pending queue is too shallow to
	// seed or refill the hardware slots.
	ErrInsufficientBuffers = errors.New("csicapture: insufficient buffers queued")
	// ErrAlreadyStreaming means StartStreaming was called outside the
	// stopped state.
	ErrAlreadyStreaming = errors.New("csicapture: streaming already started")
	// ErrNotStreaming means the operation needs an active capture
	// session.
	ErrNotStreaming = errors.New("csicapture: engine is not streaming")
	// ErrNilBuffer means a nil buffer was enqueued.
	ErrNilBuffer = errors.New("csicapture: nil buffer")
	// ErrFormatMismatch means a negotiated format differs from the one
	// fixed layout the hardware captures.
	ErrFormatMismatch = errors.New("csicapture: format does not match the capture format")
	// ErrControlOutOfRange means a display-start value exceeds the
	// 13-bit register field.
	ErrControlOutOfRange = errors.New("csicapture: display start out of range")
)
