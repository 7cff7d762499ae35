package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/config"
	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/types"
)

func main() {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		shards      = 8
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
		staleTime   = 60 * time.Second
	)

	printConfig := func() {
		fmt.Println("CONFIG")
		fmt.Println("---------------------------------")
		fmt.Println("Shards       :", shards)
		fmt.Println("Preload Keys :", humanize.Comma(preloadKeys))
		fmt.Println("Goroutines   :", goroutines)
		fmt.Println("Ops/Goroutine:", humanize.Comma(opsPerG))
		fmt.Println("Stale Time   :", staleTime)
		fmt.Println("---------------------------------")
	}

	fmt.Println("\n================ QUERY CACHE BENCHMARK =================")
	printConfig()

	// ---------------- Remote Source ----------------
	var fetches atomic.Int64
	fetcher := func(_ context.Context, key string) (int, error) {
		fetches.Add(1)
		return len(key), nil
	}

	// ---------------- Client ----------------
	cfg := config.Default()
	cfg.Shards = shards
	log := logging.Discard()
	metrics := &types.Counters{}
	eng, err := cfg.Engine(ctx, log, metrics)
	if err != nil {
		panic(err)
	}
	c := querycache.NewClient[string, int](cfg.Settings(log), eng)
	opts := types.Options[int]{StaleTime: staleTime}

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	for i := 0; i < preloadKeys; i++ {
		c.SetData(fmt.Sprintf("key-%d", i), i)
	}
	fmt.Println("Preload complete.")

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		_, _ = c.Fetch(ctx, fmt.Sprintf("key-%d", i%preloadKeys), fetcher, opts)
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				key := fmt.Sprintf("key-%d", (j+id)%preloadKeys)
				_, _ = c.Fetch(ctx, key, fetcher, opts)
			}
		}(i)
	}

	wg.Wait()

	duration := time.Since(start)
	totalOps := goroutines * opsPerG
	stats := metrics.Stats()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %s\n", humanize.Comma(int64(totalOps)))
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %s ops/sec\n", humanize.CommafWithDigits(float64(totalOps)/duration.Seconds(), 2))
	fmt.Printf("Fetcher Calls    : %d\n", fetches.Load())
	fmt.Printf("Hit Ratio        : %.4f\n", stats.HitRatio())
	fmt.Println("=========================================")

	c.Close()
}
