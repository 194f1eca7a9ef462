package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/backoff"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/emitter"
)

// staleAfter marks the pipeline degraded in health reports when no frame
// arrived for this long while streaming.
const staleAfter = 5 * time.Second

// Health is the payload published on the health topic.
type Health struct {
	Status      string    `json:"status"`
	State       string    `json:"state"`
	LatencyMS   int64     `json:"latency_ms"`
	LastFrameAt time.Time `json:"last_frame_at"`
	Uptime      string    `json:"uptime"`
}

func healthOf(s gstpipeline.Stats) Health {
	status := "ok"
	switch {
	case s.State != gstpipeline.StateStreaming:
		status = "down"
	case !s.FormatNegotiated || time.Duration(s.LatencyMS)*time.Millisecond > staleAfter:
		status = "degraded"
	}
	return Health{
		Status:      status,
		State:       s.State.String(),
		LatencyMS:   s.LatencyMS,
		LastFrameAt: s.LastFrameAt,
		Uptime:      s.Uptime.Round(time.Second).String(),
	}
}

// reportStats periodically logs pipeline statistics and publishes them over
// MQTT when a publisher is configured
func reportStats(
	ctx context.Context,
	interval time.Duration,
	p *gstpipeline.Pipeline,
	saver *FrameSaver,
	pub *emitter.MQTTEmitter,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastIngested uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			fps := float64(s.FramesIngested-lastIngested) / interval.Seconds()
			lastIngested = s.FramesIngested

			printLiveStats(s, fps, saver)

			if pub == nil {
				continue
			}
			if err := pub.Publish(s); err != nil {
				logger.Debug("Stats publish failed", "error", err)
			}
			if err := pub.PublishHealth(healthOf(s)); err != nil {
				logger.Debug("Health publish failed", "error", err)
			}
		}
	}
}

// printLiveStats prints a snapshot of the pipeline counters
func printLiveStats(s gstpipeline.Stats, fps float64, saver *FrameSaver) {
	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Pipeline Statistics (Uptime: %v, State: %s)\n", s.Uptime.Round(time.Second), s.State)
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	fmt.Println("│ Capture:")
	fmt.Printf("│   Format:             %dx%d @ %d bpp (%s)\n",
		s.Format.Width, s.Format.Height, s.Format.BitsPerPixel, humanize.Bytes(uint64(s.Format.ByteSize)))
	fmt.Printf("│   Frames Ingested:    %8s frames (%.1f fps)\n", humanize.Comma(int64(s.FramesIngested)), fps)
	fmt.Printf("│   Frames Delivered:   %8s frames\n", humanize.Comma(int64(s.FramesDelivered)))
	fmt.Printf("│   Frames Dropped:     %8s frames (%.1f%%)\n",
		humanize.Comma(int64(s.FramesDropped)),
		dropRateFromCounts(s.FramesDelivered, s.FramesDropped))
	fmt.Printf("│   Malformed:          %8d\n", s.FramesMalformed)
	fmt.Printf("│   Size Mismatches:    %8d\n", s.SizeMismatches)
	fmt.Printf("│   Timeouts:           %8d\n", s.CaptureTimeouts)
	if !s.LastFrameAt.IsZero() {
		fmt.Printf("│   Last Frame:         %s\n", humanize.Time(s.LastFrameAt))
	}

	fmt.Println("│")
	fmt.Println("│ Conversion:")
	fmt.Printf("│   Converted:          %8s (NV12 %d, RGB %d)\n",
		humanize.Comma(int64(s.Conversions)), s.NV12Conversions, s.RGB8Conversions)
	fmt.Printf("│   Failures:           %8d\n", s.ConversionFailures)

	fmt.Println("│")
	fmt.Println("│ Pools:")
	fmt.Printf("│   Raw:                %2d slots, %8s, %d reconfigures\n",
		s.RawPool.SlotsLive, humanize.Bytes(s.RawPool.BytesLive), s.RawPool.Reconfigures)
	fmt.Printf("│   RGBA:               %2d slots, %8s, %d reconfigures\n",
		s.RGBAPool.SlotsLive, humanize.Bytes(s.RGBAPool.BytesLive), s.RGBAPool.Reconfigures)

	fmt.Println("│")
	fmt.Println("│ Bus:")
	for category, n := range s.BusErrors {
		if n > 0 {
			fmt.Printf("│   Errors (%-8s):   %8d\n", category, n)
		}
	}
	fmt.Printf("│   Warnings:           %8d\n", s.BusWarnings)
	if s.LastBusError != "" {
		fmt.Printf("│   Last Error:         %s\n", s.LastBusError)
	}

	if saver != nil {
		saved, dropped := saver.Stats()
		fmt.Println("│")
		fmt.Println("│ Frame Saving:")
		fmt.Printf("│   Frames Saved:       %8d frames\n", saved)
		fmt.Printf("│   Save Drops:         %8d frames\n", dropped)
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinalStats prints final statistics at shutdown
func printFinalStats(p *gstpipeline.Pipeline, saver *FrameSaver, opener *backoff.Retrier) {
	s := p.Stats()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	fmt.Printf("  Frames Ingested:       %s\n", humanize.Comma(int64(s.FramesIngested)))
	fmt.Printf("  Frames Delivered:      %s\n", humanize.Comma(int64(s.FramesDelivered)))
	fmt.Printf("  Frames Dropped:        %s (%.1f%%)\n",
		humanize.Comma(int64(s.FramesDropped)),
		dropRateFromCounts(s.FramesDelivered, s.FramesDropped))
	fmt.Printf("  Conversions:           %s (%d failed)\n",
		humanize.Comma(int64(s.Conversions)), s.ConversionFailures)
	fmt.Printf("  Opens:                 %d (%d open attempts, %d failed)\n",
		s.Opens, opener.Attempts(), opener.Failures())
	fmt.Printf("  End of Stream:         %d\n", s.EOS)

	if saver != nil {
		saved, dropped := saver.Stats()
		fmt.Println()
		fmt.Printf("  Frames Saved:          %d\n", saved)
		if dropped > 0 {
			fmt.Printf("  Save Drops:            %d\n", dropped)
		}
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
}

// dropRateFromCounts returns dropped as a percentage of all published frames
func dropRateFromCounts(delivered, dropped uint64) float64 {
	total := delivered + dropped
	if total == 0 {
		return 0
	}
	return float64(dropped) / float64(total) * 100.0
}
