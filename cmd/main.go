package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/config"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

// ================= REMOTE API =================

// RemoteAPI stands in for a slow remote service the queries fetch from.
type RemoteAPI struct {
	mu      sync.RWMutex
	data    map[string]string
	failing map[string]bool
	calls   atomic.Int64
	latency time.Duration
}

func NewRemoteAPI(latency time.Duration) *RemoteAPI {
	return &RemoteAPI{
		data:    make(map[string]string),
		failing: make(map[string]bool),
		latency: latency,
	}
}

func (a *RemoteAPI) Set(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = value
}

func (a *RemoteAPI) Fail(key string, fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[key] = fail
}

// Fetch is the fetcher every demo query registers.
func (a *RemoteAPI) Fetch(ctx context.Context, key string) (string, error) {
	a.calls.Add(1)
	fmt.Println("API    → fetch:", key)

	select {
	case <-time.After(a.latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.failing[key] {
		return "", errors.New("service unavailable")
	}
	v, ok := a.data[key]
	if !ok {
		return "", fmt.Errorf("no record for %q", key)
	}
	return v, nil
}

// ================= CLI =================

type flags struct {
	configPath string
	verbose    bool
	json       bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:           "querycache",
		Short:         "Walk through and inspect the async query cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "config file (.toml, .yaml)")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&f.json, "json", false, "JSON logs")

	root.AddCommand(
		&cobra.Command{
			Use:   "demo",
			Short: "Run every cache scenario and print what happens",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDemo(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "inspect",
			Short: "Populate a cache and print its entries",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runInspect(cmd.Context(), f)
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(f flags) (config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, nil, err
		}
	}
	log := logging.New(logging.Options{
		Verbose: f.verbose || cfg.Log.Verbose,
		JSON:    f.json || cfg.Log.JSON,
	})
	return cfg, log, nil
}

func newClient(ctx context.Context, cfg config.Config, log *slog.Logger, metrics *types.Counters) (*querycache.Client[string, string], error) {
	eng, err := cfg.Engine(ctx, log, metrics)
	if err != nil {
		return nil, err
	}
	return querycache.NewClient[string, string](cfg.Settings(log), eng), nil
}

// ================= DEMO =================

func runDemo(ctx context.Context, f flags) error {
	cfg, log, err := loadConfig(f)
	if err != nil {
		return err
	}
	// The demo needs a persister that outlives one client.
	if cfg.Persist.Driver == config.DriverNone {
		cfg.Persist.Driver = config.DriverMemory
	}
	cfg.SweepInterval = config.Duration(200 * time.Millisecond)

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("SHARDS          :", cfg.Shards)
	fmt.Println("SWEEP INTERVAL  :", cfg.SweepInterval.Std())
	fmt.Println("PERSIST DRIVER  :", cfg.Persist.Driver)
	fmt.Println("PERSIST MODE    :", cfg.Persist.Mode)

	api := NewRemoteAPI(100 * time.Millisecond)
	api.Set("user:1", "alice")
	api.Set("user:2", "bob")
	api.Set("todos", "[write docs]")

	metrics := &types.Counters{}
	eng, err := cfg.Engine(ctx, log, metrics)
	if err != nil {
		return err
	}
	c := querycache.NewClient[string, string](cfg.Settings(log), eng)

	// ====================================================
	fmt.Println("\n==================== 1) FIRST SUBSCRIBE ====================")
	obs, err := c.Observe("user:1", api.Fetch, types.Options[string]{StaleTime: time.Second})
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → snapshot:", describe(obs.Snapshot()))
	fmt.Println("CACHE  → update  :", describe(waitFor(obs, func(s types.Snapshot[string]) bool { return !s.IsFetching })))

	// ====================================================
	fmt.Println("\n==================== 2) DEDUPLICATION ====================")
	before := api.calls.Load()
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			v, err := c.Fetch(ctx, "user:2", api.Fetch, types.Options[string]{})
			fmt.Printf("GOROUTINE-%d → FETCH user:2 = %v (err=%v)\n", id, v, err)
		}(i)
	}
	wg.Wait()
	fmt.Println("API    → calls for 5 concurrent fetches:", api.calls.Load()-before)

	// ====================================================
	fmt.Println("\n==================== 3) STALE-WHILE-REVALIDATE ====================")
	api.Set("user:1", "alice v2")
	time.Sleep(1100 * time.Millisecond)
	second, err := c.Observe("user:1", api.Fetch, types.Options[string]{StaleTime: time.Second})
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → served immediately:", describe(second.Snapshot()))
	fmt.Println("CACHE  → after revalidation:", describe(waitFor(second, func(s types.Snapshot[string]) bool { return !s.IsFetching })))
	second.Close()

	// ====================================================
	fmt.Println("\n==================== 4) INVALIDATE ====================")
	api.Set("user:1", "alice v3")
	c.Invalidate("user:1")
	fmt.Println("CACHE  → right after invalidate:", describe(obs.Snapshot()))
	fmt.Println("CACHE  → after refetch         :", describe(waitFor(obs, func(s types.Snapshot[string]) bool { return !s.IsFetching })))

	// ====================================================
	fmt.Println("\n==================== 5) SET DATA ====================")
	c.SetData("user:1", "alice (optimistic)")
	fmt.Println("CACHE  → after set data:", describe(obs.Snapshot()))

	// ====================================================
	fmt.Println("\n==================== 6) ERROR RETENTION ====================")
	api.Fail("user:1", true)
	_ = c.Refetch("user:1")
	fmt.Println("CACHE  → failed refetch keeps data:", describe(waitFor(obs, func(s types.Snapshot[string]) bool { return s.Err != nil })))
	api.Fail("user:1", false)
	obs.Close()

	// ====================================================
	fmt.Println("\n==================== 7) INTERVAL REFETCH ====================")
	ticker, err := c.Observe("todos", api.Fetch, types.Options[string]{RefetchInterval: 300 * time.Millisecond})
	if err != nil {
		return err
	}
	before = api.calls.Load()
	time.Sleep(time.Second)
	fmt.Println("API    → calls during 1s with a 300ms interval:", api.calls.Load()-before)
	ticker.Close()
	before = api.calls.Load()
	time.Sleep(700 * time.Millisecond)
	fmt.Println("API    → calls after the last observer left:", api.calls.Load()-before)

	// ====================================================
	fmt.Println("\n==================== 8) GARBAGE COLLECTION ====================")
	_, _ = c.Fetch(ctx, "temp", func(context.Context, string) (string, error) { return "short lived", nil },
		types.Options[string]{CacheTime: 500 * time.Millisecond})
	fmt.Println("CACHE  → entries:", c.Len())
	time.Sleep(time.Second)
	_, ok := c.Peek("temp")
	fmt.Println("CACHE  → temp still cached after cache time:", ok)

	// ====================================================
	fmt.Println("\n==================== 9) PERSISTENCE ====================")
	store := eng.Store
	c.Close()
	fmt.Println("CACHE  → client closed")

	var eng2 *engine.CacheEngine
	if cfg.Persist.Driver == config.DriverMemory {
		// A memory store only survives inside this process, so hand it over.
		eng2 = engine.NewCacheEngine(nil, store, writepolicy.NewWriteThroughPolicy(store, log), metrics, log)
	} else if eng2, err = cfg.Engine(ctx, log, metrics); err != nil {
		return err
	}
	c2 := querycache.NewClient[string, string](cfg.Settings(log), eng2)
	defer c2.Close()

	slow := func(ctx context.Context, key string) (string, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return api.Fetch(ctx, key)
	}
	restored, err := c2.Observe("user:2", slow, types.Options[string]{StaleTime: time.Minute})
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → restored before the fetch lands:", describe(waitFor(restored, func(s types.Snapshot[string]) bool { return s.HasData })))
	restored.Close()

	// ====================================================
	printStats(metrics.Stats())

	fmt.Println("\n==================== SHUTDOWN ====================")
	return nil
}

func waitFor(o *querycache.Observer[string, string], done func(types.Snapshot[string]) bool) types.Snapshot[string] {
	s := o.Snapshot()
	if done(s) {
		return s
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s = <-o.Updates():
			if done(s) {
				return s
			}
		case <-timeout:
			return o.Snapshot()
		}
	}
}

func describe(s types.Snapshot[string]) string {
	out := fmt.Sprintf("status=%s data=%q loading=%t fetching=%t stale=%t", s.Status, s.Data, s.IsLoading, s.IsFetching, s.IsStale)
	if s.Err != nil {
		out += fmt.Sprintf(" err=%q", s.Err)
	}
	return out
}

func printStats(s types.Stats) {
	fmt.Println("\n==================== METRICS ====================")
	fmt.Printf("HITS        : %d\n", s.Hits)
	fmt.Printf("MISSES      : %d\n", s.Misses)
	fmt.Printf("FETCHES     : %d\n", s.Fetches)
	fmt.Printf("DEDUPS      : %d\n", s.Dedups)
	fmt.Printf("INVALIDATED : %d\n", s.Invalidated)
	fmt.Printf("EXPIRED     : %d\n", s.Expired)
	fmt.Printf("REFRESHES   : %d\n", s.Refreshes)
	fmt.Printf("HIT RATIO   : %.2f\n", s.HitRatio())
}

// ================= INSPECT =================

func runInspect(ctx context.Context, f flags) error {
	cfg, log, err := loadConfig(f)
	if err != nil {
		return err
	}

	metrics := &types.Counters{}
	c, err := newClient(ctx, cfg, log, metrics)
	if err != nil {
		return err
	}
	defer c.Close()

	api := NewRemoteAPI(10 * time.Millisecond)
	opts := config.QueryOptions[string](cfg)
	for i := range 8 {
		key := fmt.Sprintf("item:%d", i)
		api.Set(key, fmt.Sprintf("value %d", i))
		if _, err := c.Fetch(ctx, key, api.Fetch, opts); err != nil {
			return err
		}
	}
	obs, err := c.Observe("item:0", api.Fetch, opts)
	if err != nil {
		return err
	}
	defer obs.Close()
	c.Invalidate("item:3")
	c.Hydrate("seeded", "from server", time.Now().Add(-90*time.Second))

	entries := c.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tSTALE\tFETCHING\tOBSERVERS\tUPDATED\tCACHE TIME")
	for _, e := range entries {
		updated := "never"
		if !e.UpdatedAt.IsZero() {
			updated = humanize.Time(e.UpdatedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%d\t%s\t%s\n",
			e.Key, e.Status, e.IsStale, e.IsFetching, e.Observers, updated, e.Timing.CacheTime)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := metrics.Stats()
	fmt.Printf("\n%s entries, %s fetches, hit ratio %.2f\n",
		humanize.Comma(int64(len(entries))), humanize.Comma(int64(s.Fetches)), s.HitRatio())
	return nil
}
