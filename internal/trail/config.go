package trailrunner

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config holds the optional file- and environment-backed settings. All
// fields are optional; the zero value changes nothing when applied.
type Config struct {
	Include     string        `mapstructure:"include"`      // include pattern (regexp)
	Markers     []string      `mapstructure:"markers"`      // root markers, priority order
	Executor    string        `mapstructure:"executor"`     // "serial" or "pool"
	Workers     int           `mapstructure:"workers"`      // pool size
	ItemTimeout time.Duration `mapstructure:"item_timeout"` // per-task deadline
}

// LoadConfig reads .trailrunner.yaml from dir, with TRAILRUNNER_* environment
// variables taking precedence over file values. A missing config file is not
// an error; the zero Config is returned.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName(".trailrunner")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("TRAILRUNNER")
	v.AutomaticEnv()

	// Register keys so env-only values survive Unmarshal.
	v.SetDefault("include", "")
	v.SetDefault("markers", []string(nil))
	v.SetDefault("executor", "")
	v.SetDefault("workers", 0)
	v.SetDefault("item_timeout", time.Duration(0))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// ApplyConfig applies cfg to the runner and, when an executor kind is named,
// to the process-wide executor registry. Empty fields leave the current
// settings alone.
func (r *Runner) ApplyConfig(cfg Config) error {
	if cfg.Include != "" {
		re, err := regexp.Compile(cfg.Include)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", cfg.Include, err)
		}
		r.include = re
	}
	if len(cfg.Markers) > 0 {
		RootMarkers = append([]string(nil), cfg.Markers...)
	}

	switch cfg.Executor {
	case "":
	case "serial":
		SetExecutor(Executor{Kind: ExecSerial, ItemTimeout: cfg.ItemTimeout})
	case "pool":
		SetExecutor(Executor{Kind: ExecPool, Workers: cfg.Workers, ItemTimeout: cfg.ItemTimeout})
	default:
		return fmt.Errorf("unknown executor kind %q", cfg.Executor)
	}
	return nil
}
