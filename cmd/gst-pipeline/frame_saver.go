package main

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline"
)

// FrameSaver writes converted frames to disk as PNG or JPEG.
//
// Thread-safe: Save can be called from multiple goroutines.
type FrameSaver struct {
	outputDir     string
	format        string
	jpegQuality   int
	framesSaved   atomic.Uint64
	framesDropped atomic.Uint64
}

// NewFrameSaver creates a frame saver with given output directory and format.
//
// Format: "png" or "jpeg" ("jpg" is accepted)
// JPEGQuality: 1-100 (only used for JPEG)
func NewFrameSaver(outputDir, format string, jpegQuality int) (*FrameSaver, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if format == "jpg" {
		format = "jpeg"
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("unsupported format: %s (must be png or jpeg)", format)
	}

	return &FrameSaver{
		outputDir:   outputDir,
		format:      format,
		jpegQuality: jpegQuality,
	}, nil
}

// Save encodes img to disk.
//
// Filename format: frame_{seq:06d}_{timestamp}.{ext}
// Example: frame_000042_20251105_234517.123.png
func (fs *FrameSaver) Save(img image.Image, seq uint64, ts time.Time) error {
	filename := fmt.Sprintf("frame_%06d_%s.%s",
		seq,
		ts.Format("20060102_150405.000"),
		fs.format)
	path := filepath.Join(fs.outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		fs.framesDropped.Inc()
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch fs.format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: fs.jpegQuality})
	}
	if err != nil {
		fs.framesDropped.Inc()
		return fmt.Errorf("%s encode failed: %w", fs.format, err)
	}

	fs.framesSaved.Inc()
	return nil
}

// Drop counts a frame that could not be prepared for saving.
func (fs *FrameSaver) Drop() {
	fs.framesDropped.Inc()
}

// Stats returns current save statistics.
func (fs *FrameSaver) Stats() (saved, dropped uint64) {
	return fs.framesSaved.Load(), fs.framesDropped.Load()
}

// rgbaToImage copies float RGBA pixels (0-255 per channel) into an 8-bit
// image, clamping out-of-range values.
func rgbaToImage(frame gstpipeline.RGBAFrame) (*image.RGBA, error) {
	w, h := int(frame.Width), int(frame.Height)
	if frame.Pixels == nil {
		return nil, fmt.Errorf("frame %d has no host pixels (device-only slot)", frame.Seq)
	}
	if len(frame.Pixels) < w*h*4 {
		return nil, fmt.Errorf("invalid RGBA data size: got %d, expected %d",
			len(frame.Pixels), w*h*4)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = clampByte(frame.Pixels[i])
	}
	return img, nil
}

func clampByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
