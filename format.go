package csicapture

import (
	"fmt"

	"github.com/ironsteel/fosdem-video-linux/internal/hw"
)

// Format returns the fixed capture format of this engine.
func (e *Engine) Format() Format {
	return e.format
}

// CheckFormat validates a negotiated format against the one layout the
// hardware captures. It has no side effects; a mismatch is an
// invalid-argument condition, not a state change.
func (e *Engine) CheckFormat(f Format) error {
	want := e.format

	if f.Width != want.Width || f.Height != want.Height || f.PlaneCount != want.PlaneCount {
		return fmt.Errorf("%w: got %s, capture runs %s", ErrFormatMismatch, f.String(), want.String())
	}
	if f.BytesPerLine != want.BytesPerLine || f.PlaneSize != want.PlaneSize {
		return fmt.Errorf("%w: plane layout %d/%d, capture runs %d/%d",
			ErrFormatMismatch, f.BytesPerLine, f.PlaneSize, want.BytesPerLine, want.PlaneSize)
	}
	if f.PixelFormat != want.PixelFormat {
		return fmt.Errorf("%w: pixel format %q, capture runs %q", ErrFormatMismatch, f.PixelFormat, want.PixelFormat)
	}

	return nil
}

// SetDisplayStart updates the distance between h/vsync and the start of
// pixel data. Values land in the HSIZE/VSIZE low fields immediately while
// the device is powered, and are shadowed for the next session otherwise.
//
// These will eventually come from the HDMI receiver's registers; until
// then they are a consumer-tunable control.
func (e *Engine) SetDisplayStart(h, v int) error {
	if h < 0 || h > int(hw.SizeMaskLow) || v < 0 || v > int(hw.SizeMaskLow) {
		return fmt.Errorf("%w: h=%d v=%d (max %d)", ErrControlOutOfRange, h, v, hw.SizeMaskLow)
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.mu.Lock()
	e.hdisplayStart = uint32(h)
	e.vdisplayStart = uint32(v)
	if e.powered {
		hw.Mask(e.regs, hw.RegHSize, uint32(h), hw.SizeMaskLow)
		hw.Mask(e.regs, hw.RegVSize, uint32(v), hw.SizeMaskLow)
	}
	e.mu.Unlock()

	return nil
}

// DisplayStart returns the current display-start values.
func (e *Engine) DisplayStart() (h, v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.hdisplayStart), int(e.vdisplayStart)
}

// DumpRegisters logs every control register at debug level.
func (e *Engine) DumpRegisters() {
	registers := []struct {
		name   string
		offset uint32
	}{
		{"ENABLE", hw.RegEnable},
		{"CONFIG", hw.RegConfig},
		{"CAPTURE", hw.RegCapture},
		{"SCALE", hw.RegScale},
		{"FIFO0_BUFFER_A", hw.RegFIFO0BufferA},
		{"FIFO0_BUFFER_B", hw.RegFIFO0BufferB},
		{"FIFO1_BUFFER_A", hw.RegFIFO1BufferA},
		{"FIFO1_BUFFER_B", hw.RegFIFO1BufferB},
		{"FIFO2_BUFFER_A", hw.RegFIFO2BufferA},
		{"FIFO2_BUFFER_B", hw.RegFIFO2BufferB},
		{"BUFFER_CONTROL", hw.RegBufferControl},
		{"BUFFER_STATUS", hw.RegBufferStatus},
		{"INT_ENABLE", hw.RegIntEnable},
		{"INT_STATUS", hw.RegIntStatus},
		{"HSIZE", hw.RegHSize},
		{"VSIZE", hw.RegVSize},
		{"STRIDE", hw.RegStride},
	}

	for _, r := range registers {
		e.log.Debug("register",
			"name", r.name,
			"value", fmt.Sprintf("0x%08X", e.readSpin(r.offset)),
		)
	}
}
