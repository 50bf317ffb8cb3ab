// capture-sim drives the CSI1 capture engine against the simulated device:
// it streams a configurable number of frames through a recycling buffer
// ring, optionally injects a queue starvation and recovers from it, and can
// save captured frames as PNG snapshots.
package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	csicapture "github.com/ironsteel/fosdem-video-linux"
	"github.com/ironsteel/fosdem-video-linux/internal/hwsim"
	"github.com/ironsteel/fosdem-video-linux/internal/scratch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture-sim",
		Short: "Stream simulated frames through the CSI1 capture engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(captureOptions{
				width:     viper.GetInt("width"),
				height:    viper.GetInt("height"),
				frames:    viper.GetInt("frames"),
				buffers:   viper.GetInt("buffers"),
				fps:       viper.GetInt("fps"),
				starveAt:  viper.GetInt("starve-at"),
				outputDir: viper.GetString("output"),
				snapshots: viper.GetInt("snapshots"),
				verbose:   viper.GetBool("verbose"),
			})
		},
	}

	flags := cmd.Flags()
	flags.Int("width", 1920, "frame width in pixels")
	flags.Int("height", 1080, "frame height in pixels")
	flags.Int("frames", 120, "number of frames to capture")
	flags.Int("buffers", 4, "buffer ring size (minimum 3)")
	flags.Int("fps", 0, "pace frame completions at this rate (0 = flat out)")
	flags.Int("starve-at", 0, "withhold buffers after this frame to force a starvation (0 = never)")
	flags.String("output", "", "directory for PNG frame snapshots (empty = don't save)")
	flags.Int("snapshots", 3, "number of frames to snapshot when --output is set")
	flags.Bool("verbose", false, "debug logging")

	viper.SetEnvPrefix("CAPTURE_SIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	return cmd
}

type captureOptions struct {
	width     int
	height    int
	frames    int
	buffers   int
	fps       int
	starveAt  int
	outputDir string
	snapshots int
	verbose   bool
}

// ringBuffer pairs a capture buffer with the CPU mappings of its planes.
type ringBuffer struct {
	buf     *csicapture.Buffer
	regions [3]*scratch.Region
}

func run(opts captureOptions) error {
	if opts.buffers < 3 {
		return fmt.Errorf("need at least 3 buffers, got %d", opts.buffers)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	format := csicapture.Format{
		Width:      opts.width,
		Height:     opts.height,
		PlaneCount: 3,
	}

	// Arena: the ring plus the engine's scratch planes, with headroom.
	planeSize := opts.width * opts.height
	arena := (opts.buffers + 2) * 3 * planeSize
	dev := hwsim.NewDevice(3, planeSize, arena)

	ring := make(map[any]*ringBuffer, opts.buffers)

	var (
		mu        sync.Mutex
		delivered int
		drained   int
		recycle   []*csicapture.Buffer
		saved     int
	)

	engine, err := csicapture.New(csicapture.Config{
		Regs:        dev.Regs,
		ClockBus:    dev.Bus,
		ClockModule: dev.Mod,
		ClockRAM:    dev.RAM,
		Reset:       dev.Reset,
		Pool:        dev.Pool,
		Format:      format,
		Logger:      logger,
		OnBufferComplete: func(buf *csicapture.Buffer, sequence uint64, timestamp time.Time, status csicapture.Status) {
			mu.Lock()
			defer mu.Unlock()

			if status != csicapture.StatusDone {
				drained++
				return
			}
			delivered++

			logger.Debug("frame complete",
				"sequence", sequence,
				"buffer", buf.Cookie,
				"trace_id", buf.TraceID,
			)

			if opts.outputDir != "" && saved < opts.snapshots {
				if err := saveSnapshot(opts.outputDir, sequence, ring[buf.Cookie], format); err != nil {
					logger.Warn("snapshot failed", "sequence", sequence, "error", err)
				} else {
					saved++
				}
			}

			recycle = append(recycle, buf)
		},
	})
	if err != nil {
		return err
	}

	for i := 0; i < opts.buffers; i++ {
		rb := &ringBuffer{buf: &csicapture.Buffer{Cookie: i}}
		for plane := 0; plane < 3; plane++ {
			region, err := dev.Pool.AllocCoherent(planeSize)
			if err != nil {
				return fmt.Errorf("buffer %d plane %d: %w", i, plane, err)
			}
			rb.buf.Planes[plane] = region.Addr
			rb.regions[plane] = region
		}
		ring[rb.buf.Cookie] = rb
		if err := engine.Enqueue(rb.buf); err != nil {
			return err
		}
	}

	if opts.outputDir != "" {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
			return err
		}
	}

	started := time.Now()
	if err := engine.StartStreaming(); err != nil {
		return err
	}

	var pace <-chan time.Time
	if opts.fps > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(opts.fps))
		defer ticker.Stop()
		pace = ticker.C
	}

	starvations := 0
	for frame := 0; frame < opts.frames; {
		if pace != nil {
			<-pace
		}

		fired, err := dev.CompleteFrame()
		if err != nil {
			engine.StopStreaming()
			return err
		}

		if !fired {
			// Starved: hand the withheld buffers back and recover.
			starvations++
			logger.Info("starved, re-arming", "frame", frame)
			if err := recycleBuffers(engine, &mu, &recycle); err != nil {
				engine.StopStreaming()
				return err
			}
			if err := engine.Rearm(); err != nil {
				engine.StopStreaming()
				return err
			}
			continue
		}

		engine.ServiceInterrupt()
		frame++

		// Between starveAt and the starvation the engine runs the queue
		// dry; everywhere else retired buffers go straight back.
		if opts.starveAt == 0 || frame < opts.starveAt || starvations > 0 {
			if err := recycleBuffers(engine, &mu, &recycle); err != nil {
				engine.StopStreaming()
				return err
			}
		}
	}

	elapsed := time.Since(started)
	stats := engine.Stats()

	if err := engine.StopStreaming(); err != nil {
		return err
	}

	mu.Lock()
	summary := []struct {
		label string
		value string
	}{
		{"session", stats.SessionID[:8]},
		{"format", format.String()},
		{"frames", fmt.Sprintf("%d", delivered)},
		{"drained", fmt.Sprintf("%d", drained)},
		{"starvations", fmt.Sprintf("%d", stats.StarvationEvents)},
		{"snapshots", fmt.Sprintf("%d", saved)},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
		{"rate", fmt.Sprintf("%.1f fps", float64(delivered)/elapsed.Seconds())},
	}
	mu.Unlock()

	fmt.Println("┌──────────────────────────────────────────┐")
	fmt.Println("│         capture session summary          │")
	fmt.Println("├──────────────────────────────────────────┤")
	for _, row := range summary {
		fmt.Printf("│ %-12s %-27s │\n", row.label, row.value)
	}
	fmt.Println("└──────────────────────────────────────────┘")

	return nil
}

// recycleBuffers re-enqueues every buffer the callback has retired so far.
func recycleBuffers(engine *csicapture.Engine, mu *sync.Mutex, recycle *[]*csicapture.Buffer) error {
	mu.Lock()
	pending := *recycle
	*recycle = nil
	mu.Unlock()

	for _, buf := range pending {
		if err := engine.Enqueue(buf); err != nil {
			return err
		}
	}
	return nil
}

// saveSnapshot converts one captured planar frame to RGB and writes it as a
// PNG named after its sequence number.
func saveSnapshot(dir string, sequence uint64, rb *ringBuffer, format csicapture.Format) error {
	if rb == nil {
		return fmt.Errorf("unknown buffer")
	}

	img := planarToImage(rb, format)
	path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", sequence))
	return imaging.Save(img, path)
}

// planarToImage converts the three YUV444 planes to an NRGBA image using the
// BT.601 full-range matrix.
func planarToImage(rb *ringBuffer, format csicapture.Format) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, format.Width, format.Height))

	for row := 0; row < format.Height; row++ {
		base := row * format.BytesPerLine
		for col := 0; col < format.Width; col++ {
			y := rb.regions[0].Data[base+col]
			u := rb.regions[1].Data[base+col]
			v := rb.regions[2].Data[base+col]
			r, g, b := color.YCbCrToRGB(y, u, v)
			img.SetNRGBA(col, row, color.NRGBA{R: r, G: g, B: b, A: 0xFF})
		}
	}

	return img
}
