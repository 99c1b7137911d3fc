// Package config loads retain's configuration from defaults, an optional
// YAML file, RETAIN_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/retain/internal/fsrs"
)

// EnvPrefix is the prefix of environment variables read by Load.
// RETAIN_SCHEDULER__DESIRED_RETENTION maps to scheduler.desired_retention.
const EnvPrefix = "RETAIN_"

// Config is the full application configuration.
type Config struct {
	DBPath    string          `koanf:"db_path" validate:"required"`
	Log       LogConfig       `koanf:"log"`
	HTTP      HTTPConfig      `koanf:"http"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Review    ReviewConfig    `koanf:"review"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SchedulerConfig mirrors fsrs.Params.
type SchedulerConfig struct {
	DesiredRetention float64         `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MinimumInterval  int             `koanf:"minimum_interval" validate:"gte=1"`
	MaximumInterval  int             `koanf:"maximum_interval" validate:"gtefield=MinimumInterval,lte=36500"`
	LearningSteps    []time.Duration `koanf:"learning_steps" validate:"dive,gt=0"`
	RelearningSteps  []time.Duration `koanf:"relearning_steps" validate:"dive,gt=0"`
	EnableFuzz       bool            `koanf:"enable_fuzz"`
	FuzzFactor       float64         `koanf:"fuzz_factor" validate:"gte=0,lte=2"`
	Weights          []float64       `koanf:"weights" validate:"len=21"`
}

type ReviewConfig struct {
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1,lte=10"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	p := fsrs.DefaultParams()
	return Config{
		DBPath: "retain.db",
		Log:    LogConfig{Level: "info", Format: "text"},
		HTTP:   HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Scheduler: SchedulerConfig{
			DesiredRetention: p.DesiredRetention,
			MinimumInterval:  p.MinimumInterval,
			MaximumInterval:  p.MaximumInterval,
			LearningSteps:    p.LearningSteps,
			RelearningSteps:  p.RelearningSteps,
			EnableFuzz:       p.EnableFuzz,
			FuzzFactor:       p.FuzzFactor,
			Weights:          p.Weights[:],
		},
		Review: ReviewConfig{MaxAttempts: 3},
	}
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"db":         "db_path",
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "http.addr",
	"retention":  "scheduler.desired_retention",
	"no-fuzz":    "scheduler.enable_fuzz",
}

// Load builds the configuration. path may be empty, in which case no file is
// read; flags may be nil. A .env file in the working directory is loaded
// into the environment first if it exists.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Default().toMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagValue(flags)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns RETAIN_SCHEDULER__FUZZ_FACTOR into scheduler.fuzz_factor.
// A double underscore separates levels so single underscores can stay in
// key names.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// flagValue only passes flags that were set explicitly, so defaults declared
// on the flag set never mask file or environment values.
func flagValue(set *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		if f.Name == "no-fuzz" {
			noFuzz, _ := set.GetBool(f.Name)
			return key, !noFuzz
		}
		return key, posflag.FlagVal(set, f)
	}
}

// toMap flattens the configuration into koanf keys.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"db_path":                     c.DBPath,
		"log.level":                   c.Log.Level,
		"log.format":                  c.Log.Format,
		"http.addr":                   c.HTTP.Addr,
		"http.shutdown_timeout":       c.HTTP.ShutdownTimeout,
		"scheduler.desired_retention": c.Scheduler.DesiredRetention,
		"scheduler.minimum_interval":  c.Scheduler.MinimumInterval,
		"scheduler.maximum_interval":  c.Scheduler.MaximumInterval,
		"scheduler.learning_steps":    c.Scheduler.LearningSteps,
		"scheduler.relearning_steps":  c.Scheduler.RelearningSteps,
		"scheduler.enable_fuzz":       c.Scheduler.EnableFuzz,
		"scheduler.fuzz_factor":       c.Scheduler.FuzzFactor,
		"scheduler.weights":           c.Scheduler.Weights,
		"review.max_attempts":         c.Review.MaxAttempts,
	}
}

// Validate checks the configuration, including the scheduler parameters.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Scheduler.Params(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Params converts the scheduler section into validated fsrs parameters.
func (s SchedulerConfig) Params() (*fsrs.Params, error) {
	if len(s.Weights) != fsrs.NumWeights {
		return nil, fmt.Errorf("%w: need %d weights, got %d", fsrs.ErrInvalidParameters, fsrs.NumWeights, len(s.Weights))
	}
	p := &fsrs.Params{
		DesiredRetention: s.DesiredRetention,
		MinimumInterval:  s.MinimumInterval,
		MaximumInterval:  s.MaximumInterval,
		LearningSteps:    s.LearningSteps,
		RelearningSteps:  s.RelearningSteps,
		EnableFuzz:       s.EnableFuzz,
		FuzzFactor:       s.FuzzFactor,
	}
	copy(p.Weights[:], s.Weights)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// PathFromEnv returns the config file named by RETAIN_CONFIG, if any.
func PathFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}
