package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine/synthetic"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/backoff"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/emitter"
)

const (
	version = "v0.1.0"

	// pollStep bounds a single capture when the configured timeout is
	// unbounded, so a signal is noticed between polls.
	pollStep = time.Second
)

func main() {
	cfg, debug, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	gstpipeline.SetLogger(logger)

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Pipeline stopped gracefully")
}

// parseFlags loads the optional YAML config and applies the flags that were
// set on the command line on top of it.
func parseFlags(args []string) (*config.Config, bool, error) {
	fs := pflag.NewFlagSet("gst-pipeline", pflag.ContinueOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	description := fs.StringP("pipeline", "p", "", "GStreamer pipeline description ending in an appsink")
	width := fs.Uint32("width", 0, "frame width hint")
	height := fs.Uint32("height", 0, "frame height hint")
	depth := fs.Uint32("depth", 0, "bits per pixel hint (12 = NV12, 24 = RGB)")
	timeout := fs.Duration("timeout", 0, "capture timeout, negative waits forever")
	zeroCopy := fs.Bool("zero-copy", false, "map rgba slots into host memory")
	synth := fs.String("synthetic", "", "use the test-pattern engine with format NV12 or RGB")
	snapshotDir := fs.String("snapshot-dir", "", "directory to save converted frames")
	snapshotEvery := fs.Int("snapshot-every", 0, "save every Nth converted frame")
	broker := fs.String("mqtt-broker", "", "MQTT broker host:port for stats")
	statsInterval := fs.Duration("stats-interval", 0, "statistics reporting interval")
	warmupFor := fs.Duration("warmup", 0, "measure frame rate for this long before capturing")
	debug := fs.Bool("debug", false, "enable debug logging")

	fs.Lookup("synthetic").NoOptDefVal = synthetic.FormatNV12

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	if fs.Changed("pipeline") {
		cfg.Pipeline.Description = *description
	}
	if fs.Changed("width") {
		cfg.Pipeline.Width = *width
	}
	if fs.Changed("height") {
		cfg.Pipeline.Height = *height
	}
	if fs.Changed("depth") {
		cfg.Pipeline.Depth = *depth
	}
	if fs.Changed("timeout") {
		if *timeout < 0 {
			cfg.Capture.TimeoutMS = -1
		} else {
			cfg.Capture.TimeoutMS = int(timeout.Milliseconds())
		}
	}
	if fs.Changed("zero-copy") {
		cfg.Capture.ZeroCopy = *zeroCopy
	}
	if fs.Changed("synthetic") {
		cfg.Synthetic.Enabled = true
		cfg.Synthetic.Format = *synth
	}
	if fs.Changed("snapshot-dir") {
		cfg.Snapshot.Dir = *snapshotDir
	}
	if fs.Changed("snapshot-every") {
		cfg.Snapshot.Every = *snapshotEvery
	}
	if fs.Changed("mqtt-broker") {
		cfg.MQTT.Broker = *broker
	}
	if fs.Changed("stats-interval") {
		cfg.StatsS = int(statsInterval.Seconds())
	}
	if fs.Changed("warmup") {
		cfg.Capture.WarmupS = int(warmupFor.Seconds())
	}

	if err := config.Validate(cfg); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, *debug, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Device memory
	alloc, err := newAllocator()
	if err != nil {
		return fmt.Errorf("failed to create allocator: %w", err)
	}

	opts := []gstpipeline.Option{gstpipeline.WithAllocator(alloc)}

	// 2. Engine (GStreamer unless synthetic)
	if cfg.Synthetic.Enabled {
		eng, err := synthetic.New(synthetic.Config{
			Width:  int(cfg.Pipeline.Width),
			Height: int(cfg.Pipeline.Height),
			Format: cfg.Synthetic.Format,
			FPS:    cfg.Synthetic.FPS,
			Frames: cfg.Synthetic.Frames,
		})
		if err != nil {
			return fmt.Errorf("failed to create synthetic engine: %w", err)
		}
		opts = append(opts, gstpipeline.WithEngine(eng))
		if cfg.Pipeline.Description == "" {
			cfg.Pipeline.Description = "synthetic " + cfg.Synthetic.Format
		}
	}

	p, err := gstpipeline.NewFromConfig(gstpipeline.Config{
		Description: cfg.Pipeline.Description,
		Width:       cfg.Pipeline.Width,
		Height:      cfg.Pipeline.Height,
		Depth:       cfg.Pipeline.Depth,
		Slots:       cfg.Pipeline.Slots,
		SinkName:    cfg.Pipeline.SinkName,
	}, opts...)
	if err != nil {
		return err
	}
	defer p.Release()

	// 3. Open, retrying transient engine failures
	opener := backoff.New("gst-pipeline: open", backoff.DefaultConfig())
	if err := opener.Do(ctx, func(context.Context) error { return p.Open() }); err != nil {
		return err
	}

	// 4. Optional warm-up
	if d := cfg.Capture.Warmup(); d > 0 {
		stats, err := p.Warmup(ctx, d)
		if err != nil {
			return fmt.Errorf("warm-up failed: %w", err)
		}
		logger.Info("Warm-up complete",
			"frames", stats.FramesReceived,
			"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
			"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
			"stable", stats.IsStable,
		)
	}

	// 5. Optional snapshot writer
	zeroCopy := cfg.Capture.ZeroCopy
	if !zeroCopy && !deviceSlotsHostAddressable {
		logger.Warn("CPU color conversion cannot write device-only memory, enabling zero-copy")
		zeroCopy = true
	}
	var saver *FrameSaver
	if cfg.Snapshot.Dir != "" {
		saver, err = NewFrameSaver(cfg.Snapshot.Dir, cfg.Snapshot.Format, cfg.Snapshot.JPEGQuality)
		if err != nil {
			return fmt.Errorf("failed to create frame saver: %w", err)
		}
		if !zeroCopy {
			logger.Warn("Snapshots read converted pixels from host memory, enabling zero-copy")
			zeroCopy = true
		}
		logger.Info("Frame saving enabled",
			"output_dir", cfg.Snapshot.Dir,
			"format", cfg.Snapshot.Format,
			"every", cfg.Snapshot.Every)
	}

	// 6. Optional MQTT publisher
	var pub *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		pub = emitter.NewMQTTEmitter(cfg.MQTT)
		if err := pub.Connect(ctx); err != nil {
			logger.Warn("MQTT unavailable, stats stay local", "error", err)
		}
		defer pub.Disconnect()
	}

	// 7. Statistics reporter
	go reportStats(ctx, cfg.StatsInterval(), p, saver, pub, logger)

	// 8. Capture loop
	err = captureLoop(ctx, p, cfg, zeroCopy, saver, opener, logger)

	printFinalStats(p, saver, opener)
	return err
}

func captureLoop(
	ctx context.Context,
	p *gstpipeline.Pipeline,
	cfg *config.Config,
	zeroCopy bool,
	saver *FrameSaver,
	opener *backoff.Retrier,
	logger *slog.Logger,
) error {
	timeout := cfg.Capture.CaptureTimeout()
	if timeout < 0 {
		timeout = pollStep
	}

	// Snapshot writers finish before the loop returns so the last file is
	// complete when the process exits.
	var saves sync.WaitGroup
	defer saves.Wait()

	var converted uint64
	for ctx.Err() == nil {
		frame, err := p.CaptureRGBA(timeout, zeroCopy)
		switch {
		case err == nil:
		case errors.Is(err, gstpipeline.ErrNoFrame):
			logger.Debug("No new frame", "timeout", timeout)
			continue
		case errors.Is(err, gstpipeline.ErrStateTransition):
			if rerr := opener.Do(ctx, func(context.Context) error { return p.Open() }); rerr != nil {
				return rerr
			}
			continue
		case errors.Is(err, gstpipeline.ErrReleased):
			return err
		default:
			logger.Warn("Capture failed", "error", err)
			continue
		}

		converted++
		logger.Debug("Frame converted",
			"seq", frame.Seq,
			"slot", frame.Index,
			"trace_id", frame.TraceID,
			"zero_copy", frame.ZeroCopy)

		if saver != nil && converted%uint64(cfg.Snapshot.Every) == 0 {
			// The slot is reused after a full ring, so pixels are copied out
			// before encoding in the background.
			img, err := rgbaToImage(frame)
			if err != nil {
				saver.Drop()
				logger.Warn("Snapshot skipped", "error", err)
				continue
			}
			saves.Add(1)
			go func(seq uint64, ts time.Time) {
				defer saves.Done()
				if err := saver.Save(img, seq, ts); err != nil {
					logger.Error("Failed to save frame", "error", err)
				}
			}(frame.Seq, frame.Timestamp)
		}
	}
	return ctx.Err()
}

func printBanner(cfg *config.Config) {
	source := cfg.Pipeline.Description
	if cfg.Synthetic.Enabled {
		source = fmt.Sprintf("synthetic %s @ %.0f fps", cfg.Synthetic.Format, cfg.Synthetic.FPS)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        GStreamer Pipeline - appsink to RGBA capture          ║")
	fmt.Printf("║                    Version %-30s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Source:          %s\n", source)
	fmt.Printf("  Size hint:       %dx%d @ %d bpp\n", cfg.Pipeline.Width, cfg.Pipeline.Height, cfg.Pipeline.Depth)
	fmt.Printf("  Slots:           %d per pool\n", cfg.Pipeline.Slots)
	fmt.Printf("  Capture timeout: %d ms\n", cfg.Capture.TimeoutMS)
	fmt.Printf("  Zero-copy:       %v\n", cfg.Capture.ZeroCopy)
	if cfg.Snapshot.Dir != "" {
		fmt.Printf("  Snapshots:       %s every %d frames\n", cfg.Snapshot.Dir, cfg.Snapshot.Every)
	}
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT:            %s (%s)\n", cfg.MQTT.Broker, cfg.MQTT.Encoding)
	}
	fmt.Printf("  Stats Interval:  %v\n", cfg.StatsInterval())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
