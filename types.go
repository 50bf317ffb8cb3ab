package csicapture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ironsteel/fosdem-video-linux/internal/hw"
	"github.com/ironsteel/fosdem-video-linux/internal/scratch"
)

// Buffer is a consumer-owned capture target: one DMA address per color
// plane. While queued it belongs to the engine; ownership returns to the
// consumer exactly once through the completion callback, either with
// StatusDone for a captured frame or StatusError on forced drain.
type Buffer struct {
	// Planes holds the bus address of each color plane. Unused planes
	// stay zero.
	Planes [3]uint32
	// Cookie is an opaque consumer handle carried through completion.
	Cookie any
	// TraceID uniquely identifies the buffer for tracing. Assigned at
	// Enqueue when empty.
	TraceID string
}

// Status is the completion status delivered with a buffer.
type Status int

const (
	// StatusDone marks a successfully captured frame.
	StatusDone Status = iota
	// StatusError marks a buffer drained without a complete frame,
	// typically at stream stop.
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamState is the engine's lifecycle state.
type StreamState int32

const (
	// StateStopped means no session is active and the device is powered
	// down.
	StateStopped StreamState = iota
	// StatePowering means a start is sequencing clocks and resets.
	StatePowering
	// StateCapturing means the hardware is armed and frames are flowing.
	StateCapturing
)

// String returns a human-readable state name.
func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePowering:
		return "powering"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// CompleteFunc receives a buffer whose ownership has returned to the
// consumer. sequence orders completed frames within a session and is only
// meaningful with StatusDone.
//
// Called outside the engine's buffer lock: the callback may block, take its
// own locks, or re-enqueue the buffer.
type CompleteFunc func(buf *Buffer, sequence uint64, timestamp time.Time, status Status)

// PixelFormatYUV444Planar is the only pixel format the engine captures.
// The 24bit bus carries planar data, one FIFO per component.
const PixelFormatYUV444Planar = "YUV444M"

// Format describes the fixed planar frame layout of a session.
type Format struct {
	// Width and Height in pixels.
	Width  int
	Height int
	// PlaneCount is the number of color planes (1-3).
	PlaneCount int
	// BytesPerLine is the line stride of each plane.
	BytesPerLine int
	// PlaneSize is the byte size of each plane.
	PlaneSize int
	// PixelFormat names the pixel layout (PixelFormatYUV444Planar).
	PixelFormat string
}

// DefaultFormat returns the 1080p capture format used by the HDMI input
// board.
func DefaultFormat() Format {
	return Format{
		Width:        1920,
		Height:       1080,
		PlaneCount:   3,
		BytesPerLine: 1920,
		PlaneSize:    1920 * 1080,
		PixelFormat:  PixelFormatYUV444Planar,
	}
}

// String returns a compact description like "1920x1080 YUV444M (3 planes)".
func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s (%d planes)", f.Width, f.Height, f.PixelFormat, f.PlaneCount)
}

// normalize fills derived fields and validates the geometry.
func (f Format) normalize() (Format, error) {
	if f == (Format{}) {
		return DefaultFormat(), nil
	}
	if f.Width <= 0 || f.Height <= 0 {
		return f, fmt.Errorf("csicapture: invalid geometry %dx%d", f.Width, f.Height)
	}
	if f.PlaneCount < 1 || f.PlaneCount > 3 {
		return f, fmt.Errorf("csicapture: invalid plane count %d (must be 1-3)", f.PlaneCount)
	}
	if f.BytesPerLine == 0 {
		f.BytesPerLine = f.Width
	}
	if f.PlaneSize == 0 {
		f.PlaneSize = f.BytesPerLine * f.Height
	}
	if f.PixelFormat == "" {
		f.PixelFormat = PixelFormatYUV444Planar
	}
	return f, nil
}

// Display-start defaults for the tfp401 at 1080p, measured on hardware.
const (
	DefaultHDisplayStart = 148
	DefaultVDisplayStart = 36
)

// Config wires an Engine to its platform resources and its consumer.
// All resource fields and the completion callback are required.
type Config struct {
	// Regs is the engine's control register block.
	Regs hw.Regs
	// ClockBus, ClockModule and ClockRAM gate the engine's clocks.
	ClockBus    hw.Clock
	ClockModule hw.Clock
	ClockRAM    hw.Clock
	// Reset is the engine's reset line.
	Reset hw.Reset
	// Pool allocates the DMA-capable scratch planes.
	Pool scratch.Pool

	// OnBufferComplete delivers retired buffers back to the consumer.
	OnBufferComplete CompleteFunc

	// Format selects the frame geometry. Zero value means DefaultFormat.
	Format Format

	// HSyncPolarity and VSyncPolarity select positive sync polarity.
	HSyncPolarity bool
	VSyncPolarity bool

	// HDisplayStart and VDisplayStart are the distances between h/vsync
	// and the start of pixel data. Both zero means the 1080p defaults.
	HDisplayStart int
	VDisplayStart int

	// Logger receives engine diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}
