package main

import (
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine/synthetic"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/backoff"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/config"
)

func TestParseFlags_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "pipeline:\n  description: \"videotestsrc ! appsink name=mysink\"\n  width: 640\ncapture:\n  timeout_ms: 500\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, debug, err := parseFlags([]string{
		"--config", path,
		"--height", "360",
		"--timeout=-1s",
		"--zero-copy",
		"--debug",
	})
	require.NoError(t, err)

	assert.True(t, debug)
	assert.EqualValues(t, 640, cfg.Pipeline.Width, "config value kept when flag unset")
	assert.EqualValues(t, 360, cfg.Pipeline.Height)
	assert.Equal(t, -1, cfg.Capture.TimeoutMS)
	assert.True(t, cfg.Capture.ZeroCopy)
}

func TestParseFlags_SyntheticWithoutDescription(t *testing.T) {
	cfg, _, err := parseFlags([]string{"--synthetic", "--width", "320", "--height", "240"})
	require.NoError(t, err)

	assert.True(t, cfg.Synthetic.Enabled)
	assert.Equal(t, "NV12", cfg.Synthetic.Format)

	cfg, _, err = parseFlags([]string{"--synthetic=rgb"})
	require.NoError(t, err)
	assert.Equal(t, "RGB", cfg.Synthetic.Format)
}

func TestParseFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no source", nil},
		{"unknown flag", []string{"--nope"}},
		{"odd nv12", []string{"--synthetic", "--width", "33"}},
		{"missing config", []string{"--config", "/does/not/exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseFlags(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestRGBAToImage_Clamps(t *testing.T) {
	frame := gstpipeline.RGBAFrame{
		Width:  2,
		Height: 1,
		Pixels: []float32{-4, 12.4, 300, 255, 0, 127.6, 254.9, 1},
	}

	img, err := rgbaToImage(frame)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 12, 255, 255, 0, 128, 255, 1}, img.Pix)
}

func TestRGBAToImage_DeviceOnly(t *testing.T) {
	_, err := rgbaToImage(gstpipeline.RGBAFrame{Width: 2, Height: 2})
	assert.Error(t, err)

	_, err = rgbaToImage(gstpipeline.RGBAFrame{Width: 2, Height: 2, Pixels: make([]float32, 4)})
	assert.Error(t, err, "short pixel buffer")
}

func TestFrameSaver_Save(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"png", "jpg"} {
		saver, err := NewFrameSaver(dir, format, 80)
		require.NoError(t, err)

		img, err := rgbaToImage(gstpipeline.RGBAFrame{Width: 4, Height: 4, Pixels: make([]float32, 64)})
		require.NoError(t, err)

		ts := time.Date(2025, 11, 5, 23, 45, 17, 123e6, time.UTC)
		require.NoError(t, saver.Save(img, 42, ts))

		saved, dropped := saver.Stats()
		assert.EqualValues(t, 1, saved)
		assert.Zero(t, dropped)
	}

	assert.FileExists(t, filepath.Join(dir, "frame_000042_20251105_234517.123.png"))
	assert.FileExists(t, filepath.Join(dir, "frame_000042_20251105_234517.123.jpeg"))

	_, err := NewFrameSaver(dir, "gif", 0)
	assert.Error(t, err)
}

func TestHealthOf(t *testing.T) {
	tests := []struct {
		name  string
		stats gstpipeline.Stats
		want  string
	}{
		{"closed", gstpipeline.Stats{State: gstpipeline.StateClosed}, "down"},
		{"no frame yet", gstpipeline.Stats{State: gstpipeline.StateStreaming}, "degraded"},
		{"stale", gstpipeline.Stats{State: gstpipeline.StateStreaming, FormatNegotiated: true, LatencyMS: 6000}, "degraded"},
		{"flowing", gstpipeline.Stats{State: gstpipeline.StateStreaming, FormatNegotiated: true, LatencyMS: 40}, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, healthOf(tt.stats).Status)
		})
	}
}

func TestDropRateFromCounts(t *testing.T) {
	assert.Zero(t, dropRateFromCounts(0, 0))
	assert.InDelta(t, 25.0, dropRateFromCounts(3, 1), 1e-9)
}

func TestCaptureLoop_SnapshotsCompleteOnReturn(t *testing.T) {
	dir := t.TempDir()

	eng, err := synthetic.New(synthetic.Config{Width: 64, Height: 32, FPS: 200})
	require.NoError(t, err)
	p, err := gstpipeline.Create("synthetic",
		gstpipeline.WithEngine(eng),
		gstpipeline.WithSize(64, 32),
		gstpipeline.WithSlots(4),
		gstpipeline.WithSettleDelays(0, 0),
	)
	require.NoError(t, err)
	defer p.Release()
	require.NoError(t, p.Open())

	cfg := config.Default()
	cfg.Capture.TimeoutMS = 50
	cfg.Snapshot.Every = 1

	saver, err := NewFrameSaver(dir, "png", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err = captureLoop(ctx, p, cfg, true, saver, backoff.New("test", backoff.DefaultConfig()), logger)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// No writer may still be running once the loop has returned.
	saved, dropped := saver.Stats()
	assert.Positive(t, saved)
	assert.EqualValues(t, p.Stats().Conversions, saved+dropped)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, int(saved))
	for _, e := range entries {
		f, err := os.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		_, err = png.Decode(f)
		f.Close()
		assert.NoError(t, err, "%s must be a complete png", e.Name())
	}
}
