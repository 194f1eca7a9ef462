package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gst-pipeline command configuration
type Config struct {
	InstanceID string          `yaml:"instance_id"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Capture    CaptureConfig   `yaml:"capture"`
	Synthetic  SyntheticConfig `yaml:"synthetic"`
	Snapshot   SnapshotConfig  `yaml:"snapshot"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	StatsS     int             `yaml:"stats_interval_s"` // stats log/publish interval in seconds (default: 5)
}

// PipelineConfig contains decode engine and pool settings
type PipelineConfig struct {
	Description string `yaml:"description"` // GStreamer launch string, must end in an appsink
	SinkName    string `yaml:"sink_name"`   // appsink element name (default: mysink)
	Width       uint32 `yaml:"width"`       // hint until the first buffer (default: 1280)
	Height      uint32 `yaml:"height"`      // hint until the first buffer (default: 720)
	Depth       uint32 `yaml:"depth"`       // bits per pixel hint (default: 12)
	Slots       int    `yaml:"slots"`       // ring buffer slots per pool (default: 16)
}

// CaptureConfig contains consumer loop settings
type CaptureConfig struct {
	TimeoutMS int  `yaml:"timeout_ms"` // per-capture timeout, -1 waits forever (default: 1000)
	ZeroCopy  bool `yaml:"zero_copy"`  // mapped rgba slots readable from the host
	WarmupS   int  `yaml:"warmup_s"`   // warm-up duration in seconds, 0 disables
}

// SyntheticConfig replaces GStreamer with the test-pattern engine when enabled
type SyntheticConfig struct {
	Enabled bool    `yaml:"enabled"`
	Format  string  `yaml:"format"` // NV12 or RGB (default: NV12)
	FPS     float64 `yaml:"fps"`    // default: 30
	Frames  int     `yaml:"frames"` // 0 runs until stopped
}

// SnapshotConfig controls writing converted frames to disk
type SnapshotConfig struct {
	Dir         string `yaml:"dir"`          // empty disables snapshots
	Every       int    `yaml:"every"`        // save every Nth frame (default: 30)
	Format      string `yaml:"format"`       // png or jpeg (default: png)
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100 (default: 90)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string     `yaml:"broker"` // host:port, empty disables publishing
	ClientID string     `yaml:"client_id"`
	Topics   MQTTTopics `yaml:"topics"`
	Encoding string     `yaml:"encoding"` // json or msgpack (default: json)
	QoS      byte       `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Stats  string `yaml:"stats"`
	Health string `yaml:"health"`
}

// CaptureTimeout returns the per-capture timeout as a duration. Negative
// values mean wait without deadline.
func (c CaptureConfig) CaptureTimeout() time.Duration {
	if c.TimeoutMS < 0 {
		return -1
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Warmup returns the warm-up duration.
func (c CaptureConfig) Warmup() time.Duration {
	return time.Duration(c.WarmupS) * time.Second
}

// StatsInterval returns the stats reporting interval.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsS) * time.Second
}

// Default returns a configuration with every default filled in and no
// pipeline description.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration bytes and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
