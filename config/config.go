package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DISPLAYFPS_OUTPUT_PATH.
const EnvPrefix = "DISPLAYFPS"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds runtime configuration for a tracking session.
// Values come from defaults, an optional config file, DISPLAYFPS_* environment
// variables and command-line flags, in increasing precedence.
type Config struct {
	Debug   bool          `mapstructure:"debug"`
	Session SessionConfig `mapstructure:"session"`
	Capture CaptureConfig `mapstructure:"capture"`
	Window  WindowConfig  `mapstructure:"window"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Console ConsoleConfig `mapstructure:"console"`
}

// SessionConfig controls timing of the sampling run.
type SessionConfig struct {
	// DurationSeconds of zero runs until interrupted.
	DurationSeconds float64       `mapstructure:"duration_seconds"`
	DelaySeconds    float64       `mapstructure:"delay_seconds"`
	BucketWidth     time.Duration `mapstructure:"bucket_width"`
	MaxSampleRate   float64       `mapstructure:"max_sample_rate"`
}

// CaptureConfig selects the watched screen region. A zero-sized region
// means the whole primary display.
type CaptureConfig struct {
	RegionX int           `mapstructure:"region_x"`
	RegionY int           `mapstructure:"region_y"`
	RegionW int           `mapstructure:"region_w"`
	RegionH int           `mapstructure:"region_h"`
	Grid    int           `mapstructure:"grid"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WindowConfig controls foreground window labelling.
type WindowConfig struct {
	LabelMode        string        `mapstructure:"label_mode"` // title, process or both
	Sentinel         string        `mapstructure:"sentinel"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ProcessCacheSize int           `mapstructure:"process_cache_size"`
}

// OutputConfig defines where rows are persisted.
type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Append bool   `mapstructure:"append"`
	Sync   bool   `mapstructure:"sync"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// ConsoleConfig controls the per-row console line.
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Color   bool `mapstructure:"color"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into v, if there is one, and decodes
// the merged result. A missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration produced by defaults alone.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("session.duration_seconds", 60.0)
	v.SetDefault("session.delay_seconds", 0.0)
	v.SetDefault("session.bucket_width", "1s")
	v.SetDefault("session.max_sample_rate", 0.0)

	v.SetDefault("capture.region_x", 0)
	v.SetDefault("capture.region_y", 0)
	v.SetDefault("capture.region_w", 0)
	v.SetDefault("capture.region_h", 0)
	v.SetDefault("capture.grid", 0)
	v.SetDefault("capture.timeout", "250ms")

	v.SetDefault("window.label_mode", "title")
	v.SetDefault("window.sentinel", "unknown")
	v.SetDefault("window.timeout", "100ms")
	v.SetDefault("window.process_cache_size", 256)

	v.SetDefault("output.path", "fps_log.csv")
	v.SetDefault("output.append", false)
	v.SetDefault("output.sync", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.address", "")

	v.SetDefault("console.enabled", true)
	v.SetDefault("console.color", true)
}

// Validate rejects values that cannot describe a session and clamps the
// tuning knobs back to safe ranges.
func (c *Config) Validate() error {
	if c.Session.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration %v", ErrInvalid, c.Session.DurationSeconds)
	}
	if c.Session.DelaySeconds < 0 {
		return fmt.Errorf("%w: negative start delay %v", ErrInvalid, c.Session.DelaySeconds)
	}
	if c.Session.MaxSampleRate < 0 {
		return fmt.Errorf("%w: negative max sample rate %v", ErrInvalid, c.Session.MaxSampleRate)
	}
	if c.Capture.RegionW < 0 || c.Capture.RegionH < 0 {
		return fmt.Errorf("%w: negative capture region size", ErrInvalid)
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalid)
	}
	switch strings.ToLower(strings.TrimSpace(c.Window.LabelMode)) {
	case "", "title", "process", "both":
	default:
		return fmt.Errorf("%w: unknown label mode %q", ErrInvalid, c.Window.LabelMode)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Logging.Format)
	}

	if c.Session.BucketWidth <= 0 {
		c.Session.BucketWidth = time.Second
	}
	if c.Capture.Grid < 0 {
		c.Capture.Grid = 0
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = 250 * time.Millisecond
	}
	if c.Window.Timeout <= 0 {
		c.Window.Timeout = 100 * time.Millisecond
	}
	if c.Window.ProcessCacheSize <= 0 {
		c.Window.ProcessCacheSize = 256
	}
	if strings.TrimSpace(c.Window.Sentinel) == "" {
		c.Window.Sentinel = "unknown"
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Duration is the bounded session length; ok is false for unbounded runs.
func (c SessionConfig) Duration() (d time.Duration, ok bool) {
	if c.DurationSeconds <= 0 {
		return 0, false
	}
	return seconds(c.DurationSeconds), true
}

// Delay returns the start delay.
func (c SessionConfig) Delay() time.Duration { return seconds(c.DelaySeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
