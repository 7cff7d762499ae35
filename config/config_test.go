package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/persist"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "cache.toml", `
shards = 4
sweep_interval = "250ms"
max_concurrent_fetches = 8

[refetch]
rate = 5.5
burst = 2

[query]
stale_time = "10s"
cache_time = "never"

[persist]
driver = "memory"
mode = "write-through"

[log]
verbose = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Shards)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval.Std())
	assert.Equal(t, int64(8), cfg.MaxConcurrentFetches)
	assert.Equal(t, 10*time.Second, cfg.Query.StaleTime.Std())
	assert.Equal(t, types.Never, cfg.Query.CacheTime.Std())
	assert.Equal(t, DriverMemory, cfg.Persist.Driver)
	assert.Equal(t, ModeWriteThrough, cfg.Persist.Mode)
	assert.Equal(t, 1024, cfg.Persist.Buffer, "unset fields keep their defaults")
	assert.True(t, cfg.Log.Verbose)

	s := cfg.Settings(logging.Discard())
	assert.Equal(t, rate.Limit(5.5), s.RefetchLimit)
	assert.Equal(t, 2, s.RefetchBurst)

	opts := QueryOptions[string](cfg)
	assert.Equal(t, 10*time.Second, opts.StaleTime)
	assert.Equal(t, types.Never, opts.CacheTime)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "cache.yaml", `
shards: 2
sweep_interval: 2s
query:
  refetch_interval: 30s
persist:
  driver: sqlite
  path: ":memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Shards)
	assert.Equal(t, 2*time.Second, cfg.SweepInterval.Std())
	assert.Equal(t, 30*time.Second, cfg.Query.RefetchInterval.Std())
	assert.Equal(t, DriverSQLite, cfg.Persist.Driver)
	assert.Equal(t, ModeWriteBack, cfg.Persist.Mode)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeConfig(t, "cache.json", `{}`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "cache.toml", `sweep_interval = "soon"`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Shards = -1
	cfg.Persist.Driver = "redis"
	cfg.Persist.Mode = "sometimes"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "shards must not be negative")
	assert.ErrorContains(t, err, `unknown persist.driver "redis"`)
	assert.ErrorContains(t, err, `unknown persist.mode "sometimes"`)

	cfg = Default()
	cfg.Persist.Driver = DriverFile
	assert.ErrorContains(t, cfg.Validate(), "persist.path is required")

	assert.NoError(t, Default().Validate())
}

func TestEngineWiresPersistence(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()

	eng, err := Default().Engine(ctx, log, nil)
	require.NoError(t, err)
	assert.Nil(t, eng.Store)
	assert.Nil(t, eng.WritePolicy)
	assert.False(t, eng.Persistent())

	cfg := Default()
	cfg.Persist.Driver = DriverFile
	cfg.Persist.Path = t.TempDir()
	cfg.Persist.Mode = ModeWriteThrough
	eng, err = cfg.Engine(ctx, log, nil)
	require.NoError(t, err)
	assert.IsType(t, &persist.File{}, eng.Store)
	assert.IsType(t, &writepolicy.WriteThroughPolicy{}, eng.WritePolicy)

	cfg.Persist.Driver = DriverSQLite
	cfg.Persist.Path = ":memory:"
	cfg.Persist.Mode = ModeWriteBack
	eng, err = cfg.Engine(ctx, log, nil)
	require.NoError(t, err)
	assert.IsType(t, &persist.SQLite{}, eng.Store)
	assert.IsType(t, &writepolicy.WriteBackPolicy{}, eng.WritePolicy)
	eng.Close()
}

func TestDurationText(t *testing.T) {
	b, err := Duration(types.Never).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "never", string(b))

	b, err = Duration(90 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))
}
