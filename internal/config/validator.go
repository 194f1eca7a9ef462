package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

const (
	defaultInstanceID = "gst-pipeline"
	defaultSinkName   = "mysink"
	defaultWidth      = 1280
	defaultHeight     = 720
	defaultDepth      = 12
	defaultSlots      = 16
	defaultTimeoutMS  = 1000
	defaultStatsS     = 5
)

// Validate checks if the configuration is valid and fills defaults in place.
// A pipeline description is required unless the synthetic engine is enabled.
func Validate(cfg *Config) error {
	applyDefaults(cfg)

	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Pipeline.Description == "" && !cfg.Synthetic.Enabled {
		return fmt.Errorf("pipeline.description is required (or enable synthetic)")
	}
	if cfg.Pipeline.Slots < 1 {
		return fmt.Errorf("pipeline.slots must be >= 1, got %d", cfg.Pipeline.Slots)
	}

	if cfg.Capture.TimeoutMS < -1 {
		return fmt.Errorf("capture.timeout_ms must be >= -1, got %d", cfg.Capture.TimeoutMS)
	}
	if cfg.Capture.WarmupS < 0 {
		return fmt.Errorf("capture.warmup_s must be >= 0, got %d", cfg.Capture.WarmupS)
	}

	if err := validateSynthetic(cfg.Synthetic, cfg.Pipeline); err != nil {
		return fmt.Errorf("synthetic: %w", err)
	}
	if err := validateSnapshot(cfg.Snapshot); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	switch cfg.MQTT.Encoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("mqtt.encoding must be 'json' or 'msgpack', got '%s'", cfg.MQTT.Encoding)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID
	}
	if cfg.StatsS <= 0 {
		cfg.StatsS = defaultStatsS
	}

	p := &cfg.Pipeline
	if p.SinkName == "" {
		p.SinkName = defaultSinkName
	}
	if p.Width == 0 {
		p.Width = defaultWidth
	}
	if p.Height == 0 {
		p.Height = defaultHeight
	}
	if p.Depth == 0 {
		p.Depth = defaultDepth
	}
	if p.Slots == 0 {
		p.Slots = defaultSlots
	}

	if cfg.Capture.TimeoutMS == 0 {
		cfg.Capture.TimeoutMS = defaultTimeoutMS
	}

	if cfg.Synthetic.Format == "" {
		cfg.Synthetic.Format = "NV12"
	}
	cfg.Synthetic.Format = strings.ToUpper(cfg.Synthetic.Format)
	if cfg.Synthetic.FPS == 0 {
		cfg.Synthetic.FPS = 30
	}

	if cfg.Snapshot.Every == 0 {
		cfg.Snapshot.Every = 30
	}
	if cfg.Snapshot.Format == "" {
		cfg.Snapshot.Format = "png"
	}
	if cfg.Snapshot.JPEGQuality == 0 {
		cfg.Snapshot.JPEGQuality = 90
	}

	// Set default topics if not provided
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.InstanceID
	}
	if cfg.MQTT.Topics.Stats == "" {
		cfg.MQTT.Topics.Stats = fmt.Sprintf("care/pipeline/%s/stats", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("care/health/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Encoding == "" {
		cfg.MQTT.Encoding = "json"
	}
}

func validateSynthetic(s SyntheticConfig, p PipelineConfig) error {
	if !s.Enabled {
		return nil
	}
	switch s.Format {
	case "NV12":
		if p.Width%2 != 0 || p.Height%2 != 0 {
			return fmt.Errorf("NV12 needs even dimensions, got %dx%d", p.Width, p.Height)
		}
	case "RGB":
	default:
		return fmt.Errorf("unknown format '%s' (must be 'NV12' or 'RGB')", s.Format)
	}
	if s.FPS < 0 {
		return fmt.Errorf("fps must be > 0, got %v", s.FPS)
	}
	if s.Frames < 0 {
		return fmt.Errorf("frames must be >= 0, got %d", s.Frames)
	}
	return nil
}

func validateSnapshot(s SnapshotConfig) error {
	if s.Dir == "" {
		// Snapshots disabled, remaining fields are ignored
		return nil
	}
	if s.Every < 1 {
		return fmt.Errorf("every must be >= 1, got %d", s.Every)
	}
	switch s.Format {
	case "png":
	case "jpeg", "jpg":
		if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
			return fmt.Errorf("invalid JPEG quality %d (must be 1-100)", s.JPEGQuality)
		}
	default:
		return fmt.Errorf("invalid format %s (must be png or jpeg)", s.Format)
	}
	return nil
}
