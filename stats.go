package csicapture

// EngineStats is a snapshot of the engine's operational state. Counters are
// cumulative over the engine's lifetime, not per session.
type EngineStats struct {
	// State is the lifecycle state at snapshot time.
	State StreamState
	// SessionID identifies the current (or most recent) streaming
	// session.
	SessionID string
	// Sequence is the per-session frame counter; the next completed
	// frame carries this number.
	Sequence uint64
	// FramesCompleted counts buffers delivered with StatusDone.
	FramesCompleted uint64
	// StarvationEvents counts frame-done swaps that found the queue
	// empty and disabled the engine.
	StarvationEvents uint64
	// BuffersDrained counts buffers delivered with StatusError at stream
	// stop.
	BuffersDrained uint64
	// QueueDepth is the number of pending buffers.
	QueueDepth int
}

// Stats returns a consistent-enough snapshot for monitoring. Counters are
// read atomically; the queue depth and sequence are sampled under the
// buffer lock.
func (e *Engine) Stats() EngineStats {
	session, _ := e.sessionID.Load().(string)

	e.mu.Lock()
	sequence := e.sequence
	depth := e.queue.LenLocked()
	e.mu.Unlock()

	return EngineStats{
		State:            e.State(),
		SessionID:        session,
		Sequence:         sequence,
		FramesCompleted:  e.framesDone.Load(),
		StarvationEvents: e.starvations.Load(),
		BuffersDrained:   e.drained.Load(),
		QueueDepth:       depth,
	}
}
