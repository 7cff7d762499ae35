// Package config loads and validates the query cache configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/expiration"
	"github.com/krisalay/query-cache/persist"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

// Driver selects where resolved data is persisted.
type Driver string

const (
	DriverNone   Driver = "none"
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverSQLite Driver = "sqlite"
)

// Mode selects the write policy used for persistence.
type Mode string

const (
	ModeWriteBack    Mode = "write-back"
	ModeWriteThrough Mode = "write-through"
)

// Config is the file form of a client's settings.
type Config struct {
	Shards               int      `toml:"shards" yaml:"shards"`
	SweepInterval        Duration `toml:"sweep_interval" yaml:"sweep_interval"`
	MaxConcurrentFetches int64    `toml:"max_concurrent_fetches" yaml:"max_concurrent_fetches"`

	Refetch RefetchConfig `toml:"refetch" yaml:"refetch"`
	Query   QueryConfig   `toml:"query" yaml:"query"`
	Persist PersistConfig `toml:"persist" yaml:"persist"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// RefetchConfig rate limits interval refetches. A zero Rate means unlimited.
type RefetchConfig struct {
	Rate  float64 `toml:"rate" yaml:"rate"`
	Burst int     `toml:"burst" yaml:"burst"`
}

// QueryConfig holds the default options for queries registered by the CLI.
type QueryConfig struct {
	StaleTime       Duration `toml:"stale_time" yaml:"stale_time"`
	CacheTime       Duration `toml:"cache_time" yaml:"cache_time"`
	RefetchInterval Duration `toml:"refetch_interval" yaml:"refetch_interval"`
}

// PersistConfig selects the persister and write policy.
type PersistConfig struct {
	Driver Driver `toml:"driver" yaml:"driver"`
	// Path is a directory for the file driver and a DSN for sqlite.
	Path   string `toml:"path" yaml:"path"`
	Mode   Mode   `toml:"mode" yaml:"mode"`
	Buffer int    `toml:"buffer" yaml:"buffer"`
}

type LogConfig struct {
	Verbose bool `toml:"verbose" yaml:"verbose"`
	JSON    bool `toml:"json" yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Shards:        querycache.DefaultShards,
		SweepInterval: Duration(querycache.DefaultSweepInterval),
		Refetch:       RefetchConfig{Burst: 1},
		Query: QueryConfig{
			CacheTime: Duration(types.DefaultCacheTime),
		},
		Persist: PersistConfig{
			Driver: DriverNone,
			Mode:   ModeWriteBack,
			Buffer: 1024,
		},
	}
}

// Load reads a .toml, .yaml or .yml file over Default and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Shards < 0 {
		errs = append(errs, fmt.Errorf("shards must not be negative, got %d", c.Shards))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sweep_interval must not be negative, got %s", c.SweepInterval.Std()))
	}
	if c.MaxConcurrentFetches < 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_fetches must not be negative, got %d", c.MaxConcurrentFetches))
	}
	if c.Refetch.Rate < 0 {
		errs = append(errs, fmt.Errorf("refetch.rate must not be negative, got %v", c.Refetch.Rate))
	}
	if c.Query.StaleTime < 0 || c.Query.CacheTime < 0 || c.Query.RefetchInterval < 0 {
		errs = append(errs, errors.New("query durations must not be negative"))
	}

	switch c.Persist.Driver {
	case DriverNone, DriverMemory, "":
	case DriverFile, DriverSQLite:
		if c.Persist.Path == "" {
			errs = append(errs, fmt.Errorf("persist.path is required for driver %q", c.Persist.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown persist.driver %q", c.Persist.Driver))
	}

	switch c.Persist.Mode {
	case ModeWriteBack, ModeWriteThrough, "":
	default:
		errs = append(errs, fmt.Errorf("unknown persist.mode %q", c.Persist.Mode))
	}

	return errors.Join(errs...)
}

// Settings builds the client settings.
func (c Config) Settings(logger *slog.Logger) querycache.Settings {
	s := querycache.Settings{
		Shards:               c.Shards,
		SweepInterval:        c.SweepInterval.Std(),
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		RefetchBurst:         c.Refetch.Burst,
		Logger:               logger,
	}
	if c.Refetch.Rate > 0 {
		s.RefetchLimit = rate.Limit(c.Refetch.Rate)
	}
	return s
}

/*
Engine builds the policy layer: the default aging strategy, the persister
chosen by Persist.Driver behind the write policy chosen by Persist.Mode,
and the given metrics.
*/
func (c Config) Engine(ctx context.Context, logger *slog.Logger, metrics types.Metrics) (*engine.CacheEngine, error) {
	store, err := c.persister(ctx)
	if err != nil {
		return nil, err
	}

	var policy writepolicy.WritePolicy
	if store != nil {
		switch c.Persist.Mode {
		case ModeWriteThrough:
			policy = writepolicy.NewWriteThroughPolicy(store, logger)
		default:
			policy = writepolicy.NewWriteBackPolicy(store, c.Persist.Buffer, logger)
		}
	}

	return engine.NewCacheEngine(expiration.StaleWhileRevalidate{}, store, policy, metrics, logger), nil
}

func (c Config) persister(ctx context.Context) (types.Persister, error) {
	switch c.Persist.Driver {
	case DriverMemory:
		return persist.NewMemory(), nil
	case DriverFile:
		return persist.NewFile(c.Persist.Path)
	case DriverSQLite:
		return persist.NewSQLite(ctx, c.Persist.Path)
	default:
		return nil, nil
	}
}

// QueryOptions returns the configured default options for a query of V.
func QueryOptions[V any](c Config) types.Options[V] {
	return types.Options[V]{
		StaleTime:       c.Query.StaleTime.Std(),
		CacheTime:       c.Query.CacheTime.Std(),
		RefetchInterval: c.Query.RefetchInterval.Std(),
	}
}
