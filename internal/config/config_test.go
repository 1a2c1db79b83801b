package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/examprep/internal/sm2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "examprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	p, err := cfg.Scheduler.Policy()
	require.NoError(t, err)
	assert.Equal(t, sm2.DefaultPolicy(), p)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
db:
  path: from-file.db
http:
  addr: "127.0.0.1:9000"
  shutdown_timeout: 3s
log:
  level: debug
scheduler:
  min_ease: 1.5
  max_interval_days: 3650
  timezone: UTC
`)
	t.Setenv("EXAMPREP_HTTP__ADDR", "0.0.0.0:9100")
	t.Setenv("EXAMPREP_SCHEDULER__SECOND_INTERVAL_DAYS", "5")

	cfg, err := Load(path, newFlags(t, "--addr", "localhost:9200", "--config", path))
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DB.Path, "file overrides default")
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "localhost:9200", cfg.HTTP.Addr, "explicit flag overrides env and file")
	assert.Equal(t, 5, cfg.Scheduler.SecondIntervalDays, "env overrides default")
	assert.Equal(t, 1.5, cfg.Scheduler.MinEase)
	assert.Equal(t, 2.5, cfg.Scheduler.MaxEase)

	p, err := cfg.Scheduler.Policy()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.Location)
	assert.Equal(t, 3650, p.MaxIntervalDays)
}

func TestLoadWithoutFlags(t *testing.T) {
	t.Setenv("EXAMPREP_DB__PATH", "env.db")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DB.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad log level":     "log:\n  level: verbose\n",
		"bad log format":    "log:\n  format: xml\n",
		"bad address":       "http:\n  addr: nowhere\n",
		"inverted bounds":   "scheduler:\n  min_ease: 2.6\n",
		"zero warm-up":      "scheduler:\n  first_interval_days: 0\n",
		"cap below warm-up": "scheduler:\n  max_interval_days: 2\n",
		"unknown timezone":  "scheduler:\n  timezone: Mars/Olympus_Mons\n",
		"empty db path":     "db:\n  path: \"\"\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content), nil)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "card_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"card_id":"abc"`)
}
