// Package config loads examprep settings from defaults, a YAML file,
// EXAMPREP_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: EXAMPREP_SCHEDULER__MIN_EASE sets scheduler.min_ease.
const EnvPrefix = "EXAMPREP_"

type Config struct {
	DB        DBConfig        `koanf:"db"`
	HTTP      HTTPConfig      `koanf:"http"`
	Sync      SyncConfig      `koanf:"sync"`
	Log       LogConfig       `koanf:"log"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type SyncConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
	OnStart  bool   `koanf:"on_start"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchedulerConfig overrides the review scheduling policy.
type SchedulerConfig struct {
	InitialEase        float64 `koanf:"initial_ease"`
	MinEase            float64 `koanf:"min_ease"`
	MaxEase            float64 `koanf:"max_ease"`
	FirstIntervalDays  int     `koanf:"first_interval_days"`
	SecondIntervalDays int     `koanf:"second_interval_days"`
	MaxIntervalDays    int     `koanf:"max_interval_days"`
	// Timezone names the IANA zone due dates are truncated in. Empty uses
	// the zone of the server clock.
	Timezone string `koanf:"timezone" validate:"omitempty,timezone"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := sm2.DefaultPolicy()
	return Config{
		DB:   DBConfig{Path: "examprep.db"},
		HTTP: HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Sync: SyncConfig{ReposDir: "repos"},
		Log:  LogConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{
			InitialEase:        p.InitialEase,
			MinEase:            p.MinEase,
			MaxEase:            p.MaxEase,
			FirstIntervalDays:  p.FirstIntervalDays,
			SecondIntervalDays: p.SecondIntervalDays,
			MaxIntervalDays:    p.MaxIntervalDays,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db":            "db.path",
	"addr":          "http.addr",
	"repos-dir":     "sync.repos_dir",
	"sync-on-start": "sync.on_start",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// RegisterFlags adds the configuration flags to fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("db", d.DB.Path, "Path to the SQLite database file")
	fs.String("addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("repos-dir", d.Sync.ReposDir, "Directory git deck sources are cloned into")
	fs.Bool("sync-on-start", d.Sync.OnStart, "Sync all deck sources before serving")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "Log format: text or json")
}

// Load builds the configuration. configPath may be empty; a path that is
// given must exist. fs may be nil.
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the scheduler section forms a valid policy.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Scheduler.Policy(); err != nil {
		return fmt.Errorf("invalid config: scheduler: %w", err)
	}
	return nil
}

// Policy converts the scheduler section into a validated sm2.Policy.
func (c SchedulerConfig) Policy() (sm2.Policy, error) {
	p := sm2.Policy{
		InitialEase:        c.InitialEase,
		MinEase:            c.MinEase,
		MaxEase:            c.MaxEase,
		FirstIntervalDays:  c.FirstIntervalDays,
		SecondIntervalDays: c.SecondIntervalDays,
		MaxIntervalDays:    c.MaxIntervalDays,
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return sm2.Policy{}, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
		}
		p.Location = loc
	}
	if err := p.Validate(); err != nil {
		return sm2.Policy{}, err
	}
	return p, nil
}

// NewLogger returns a slog logger writing to w in the configured format and level.
// A nil w writes to stderr.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
