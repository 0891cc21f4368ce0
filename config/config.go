// Package config loads cgmlsim settings from a YAML file, CGMLSIM_*
// environment variables and built-in defaults, in that order of precedence
// after explicit flags.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CGMLSIM_BATCH_GAMES.
const EnvPrefix = "CGMLSIM"

// Config is the full configuration.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SimulationConfig controls a single game.
type SimulationConfig struct {
	Players       int   `mapstructure:"players"` // 0 means the definition's maximum
	Seed          int64 `mapstructure:"seed"`    // 0 means seed from the clock
	MaxIterations int   `mapstructure:"max_iterations"`
	HumanSeats    []int `mapstructure:"human_seats"`
}

// BatchConfig controls Monte Carlo runs.
type BatchConfig struct {
	Games   int `mapstructure:"games"`
	Workers int `mapstructure:"workers"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// New returns a viper instance with defaults and environment binding but
// no file. Callers may bind flags onto it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("simulation.players", 0)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.max_iterations", 10000)
	v.SetDefault("simulation.human_seats", []int{0})
	v.SetDefault("batch.games", 100)
	v.SetDefault("batch.workers", runtime.NumCPU())
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read merges the config file into v. An explicit path must exist; with no
// path, cgmlsim.yaml is looked up in the working directory and
// $HOME/.config/cgmlsim and silently skipped when absent.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName("cgmlsim")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/cgmlsim")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads defaults, the file at path and the environment.
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate rejects values no command can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Simulation.Players < 0 {
		errs = append(errs, fmt.Errorf("simulation.players must not be negative, got %d", c.Simulation.Players))
	}
	if c.Simulation.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("simulation.max_iterations must not be negative, got %d", c.Simulation.MaxIterations))
	}
	if c.Batch.Games < 1 {
		errs = append(errs, fmt.Errorf("batch.games must be at least 1, got %d", c.Batch.Games))
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errors.Join(errs...)
}
