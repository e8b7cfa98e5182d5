package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. CXADC_SERVER_POLICY.
const EnvPrefix = "CXADC"

// Config represents the complete configuration for the capture server
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Log     LogConfig     `yaml:"log"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig holds listener and connection settings
type ServerConfig struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Policy       string        `yaml:"policy"`
	PoolSize     int           `yaml:"pool_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	AllowedCIDRs []string      `yaml:"allowed_cidrs"`
}

// CaptureConfig holds device and ring buffer settings
type CaptureConfig struct {
	CxadcDevice    string        `yaml:"cxadc_device"`
	BasebandDevice string        `yaml:"baseband_device"`
	CxadcBuffer    int           `yaml:"cxadc_buffer"`
	BasebandBuffer int           `yaml:"baseband_buffer"`
	ChunkSize      int           `yaml:"chunk_size"`
	SyntheticRate  int           `yaml:"synthetic_rate"` // bytes/s of the cxadc test pattern
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// HistoryConfig holds the session journal settings. An empty path disables
// the journal.
type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// NewViper returns a viper instance resolving CXADC_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load builds the configuration: defaults, then the YAML file named by the
// "config" key (flag or CXADC_CONFIG), then environment overrides.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	cfg := getDefaultConfig()

	if path := v.GetString("config"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, v)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			Policy:       "goroutine",
			PoolSize:     16,
			PollInterval: 50 * time.Millisecond,
		},
		Capture: CaptureConfig{
			CxadcDevice:    "/dev/cxadc0",
			CxadcBuffer:    256 << 20,
			BasebandBuffer: 16 << 20,
			ChunkSize:      64 << 10,
			SyntheticRate:  40_000_000,
			StopTimeout:    5 * time.Second,
		},
		Log: LogConfig{
			Level:      "INFO",
			Format:     "auto",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		History: HistoryConfig{
			Limit: 50,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies CXADC_* overrides. Values that do not parse are
// ignored.
func applyEnvOverrides(cfg *Config, v *viper.Viper) {
	overrideDuration(v, "server.read_timeout", &cfg.Server.ReadTimeout)
	overrideDuration(v, "server.write_timeout", &cfg.Server.WriteTimeout)
	overrideString(v, "server.policy", &cfg.Server.Policy)
	overrideInt(v, "server.pool_size", &cfg.Server.PoolSize)
	overrideDuration(v, "server.poll_interval", &cfg.Server.PollInterval)
	if cidrs := v.GetString("server.allowed_cidrs"); cidrs != "" {
		cfg.Server.AllowedCIDRs = splitList(cidrs)
	}

	overrideString(v, "capture.cxadc_device", &cfg.Capture.CxadcDevice)
	overrideString(v, "capture.baseband_device", &cfg.Capture.BasebandDevice)
	overrideInt(v, "capture.cxadc_buffer", &cfg.Capture.CxadcBuffer)
	overrideInt(v, "capture.baseband_buffer", &cfg.Capture.BasebandBuffer)
	overrideInt(v, "capture.chunk_size", &cfg.Capture.ChunkSize)
	overrideInt(v, "capture.synthetic_rate", &cfg.Capture.SyntheticRate)
	overrideDuration(v, "capture.stop_timeout", &cfg.Capture.StopTimeout)

	overrideString(v, "log.level", &cfg.Log.Level)
	overrideString(v, "log.file", &cfg.Log.File)
	overrideString(v, "log.format", &cfg.Log.Format)
	overrideInt(v, "log.max_size_mb", &cfg.Log.MaxSizeMB)
	overrideInt(v, "log.max_backups", &cfg.Log.MaxBackups)
	overrideInt(v, "log.max_age_days", &cfg.Log.MaxAgeDays)

	overrideString(v, "history.path", &cfg.History.Path)
	overrideInt(v, "history.limit", &cfg.History.Limit)
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if s := v.GetString(key); s != "" {
		*dst = s
	}
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if s := v.GetString(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = n
		}
	}
}

func overrideDuration(v *viper.Viper, key string, dst *time.Duration) {
	if s := v.GetString(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	validPolicies := []string{"goroutine", "pool", "serial"}
	if !slices.Contains(validPolicies, cfg.Server.Policy) {
		return fmt.Errorf("invalid server policy %s, must be one of: %v", cfg.Server.Policy, validPolicies)
	}
	if cfg.Server.Policy == "pool" && cfg.Server.PoolSize <= 0 {
		return fmt.Errorf("pool size %d must be positive", cfg.Server.PoolSize)
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if cfg.Server.PollInterval <= 0 {
		return fmt.Errorf("poll interval %s must be positive", cfg.Server.PollInterval)
	}
	for _, cidr := range cfg.Server.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
	}

	if cfg.Capture.CxadcBuffer <= 0 || cfg.Capture.BasebandBuffer <= 0 {
		return fmt.Errorf("buffer sizes must be positive: cxadc=%d, baseband=%d", cfg.Capture.CxadcBuffer, cfg.Capture.BasebandBuffer)
	}
	if cfg.Capture.ChunkSize <= 0 {
		return fmt.Errorf("chunk size %d must be positive", cfg.Capture.ChunkSize)
	}
	if cfg.Capture.SyntheticRate < 0 {
		return fmt.Errorf("synthetic rate %d must not be negative", cfg.Capture.SyntheticRate)
	}
	if cfg.Capture.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout %s must be positive", cfg.Capture.StopTimeout)
	}

	validFormats := []string{"auto", "json", "text"}
	if !slices.Contains(validFormats, strings.ToLower(cfg.Log.Format)) {
		return fmt.Errorf("invalid log format %s, must be one of: %v", cfg.Log.Format, validFormats)
	}
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !slices.Contains(validLevels, strings.ToUpper(cfg.Log.Level)) {
		return fmt.Errorf("invalid log level %s, must be one of: %v", cfg.Log.Level, validLevels)
	}

	if cfg.History.Limit <= 0 {
		return fmt.Errorf("history limit %d must be positive", cfg.History.Limit)
	}

	return nil
}
