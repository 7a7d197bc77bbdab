// Package config loads flowtap's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written in config as a
// plain string ("30s", "500ms") rather than a raw integer nanosecond
// count, which gopkg.in/yaml.v3 does not parse for bare time.Duration
// fields.
type Duration time.Duration

// UnmarshalYAML parses a duration string via time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	DataPlane DataPlaneConfig `yaml:"data_plane"`
	Rules     RulesConfig     `yaml:"rules"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Stats     StatsConfig     `yaml:"stats"`
}

// DataPlaneConfig contains receive-side and flow-tracking settings.
type DataPlaneConfig struct {
	EvictionTimeout          Duration     `yaml:"eviction_timeout"`
	FlowTableShards          int          `yaml:"flow_table_shards"`
	FlowTableInitialCapacity int          `yaml:"flow_table_initial_capacity"`
	HandoffShards            int          `yaml:"handoff_shards"`
	HandoffBufferSize        int          `yaml:"handoff_buffer_size"`
	BurstSize                int          `yaml:"burst_size"`
	Cores                    []CoreConfig `yaml:"cores"`
}

// CoreConfig describes one pinned receive core and the queues it owns.
type CoreConfig struct {
	ID     int           `yaml:"id"`
	Pin    bool          `yaml:"pin"`
	Queues []QueueConfig `yaml:"queues"`
}

// QueueConfig names a bound receive queue and its kind.
type QueueConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "receive" or "sink"
}

// RulesConfig configures the rule hot-swap control socket.
type RulesConfig struct {
	ControlSocketPath string `yaml:"control_socket_path"`
}

// StoreConfig configures the packet persistence consumer.
type StoreConfig struct {
	OutputDir   string `yaml:"output_dir"`
	LRUCapacity int    `yaml:"lru_capacity"`
}

// LoggingConfig contains application logging settings for both sinks.
type LoggingConfig struct {
	Console SinkConfig `yaml:"console"`
	File    SinkConfig `yaml:"file"`
}

// SinkConfig mirrors internal/logger.SinkConfig in YAML form.
type SinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Path    string `yaml:"path"`
}

// StatsConfig controls the periodic stats-to-log monitor.
type StatsConfig struct {
	ReportInterval Duration `yaml:"report_interval"`
}

// Load reads and parses the configuration file, applying defaults for
// anything left unset. A missing file is not an error: flowtap runs on
// defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataPlane.EvictionTimeout == 0 {
		cfg.DataPlane.EvictionTimeout = Duration(30 * time.Second)
	}
	if cfg.DataPlane.FlowTableShards == 0 {
		cfg.DataPlane.FlowTableShards = 16
	}
	if cfg.DataPlane.FlowTableInitialCapacity == 0 {
		cfg.DataPlane.FlowTableInitialCapacity = 4096
	}
	if cfg.DataPlane.HandoffShards == 0 {
		cfg.DataPlane.HandoffShards = 4
	}
	if cfg.DataPlane.HandoffBufferSize == 0 {
		cfg.DataPlane.HandoffBufferSize = 4096
	}
	if cfg.DataPlane.BurstSize == 0 {
		cfg.DataPlane.BurstSize = 32
	}

	if cfg.Rules.ControlSocketPath == "" {
		cfg.Rules.ControlSocketPath = "/var/run/flowtap/rules.sock"
	}

	if cfg.Store.OutputDir == "" {
		cfg.Store.OutputDir = "/var/lib/flowtap/flows"
	}
	if cfg.Store.LRUCapacity == 0 {
		cfg.Store.LRUCapacity = 1000
	}

	if cfg.Stats.ReportInterval == 0 {
		cfg.Stats.ReportInterval = Duration(30 * time.Second)
	}

	if !cfg.Logging.Console.Enabled && !cfg.Logging.File.Enabled {
		cfg.Logging.Console.Enabled = true
	}
	if cfg.Logging.Console.Level == "" {
		cfg.Logging.Console.Level = "info"
	}
	if cfg.Logging.Console.Format == "" {
		cfg.Logging.Console.Format = "text"
	}
	if cfg.Logging.File.Level == "" {
		cfg.Logging.File.Level = "info"
	}
	if cfg.Logging.File.Format == "" {
		cfg.Logging.File.Format = "json"
	}
}
