package querycache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/persist"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

func newBenchmarkClient(b *testing.B, eng *engine.CacheEngine) *querycache.Client[string, int] {
	c := querycache.NewClient[string, int](querycache.Settings{
		Shards: 8,
		Logger: logging.Discard(),
	}, eng)
	b.Cleanup(c.Close)
	return c
}

func benchFetcher(_ context.Context, key string) (int, error) {
	return len(key), nil
}

var freshOpts = types.Options[int]{StaleTime: time.Hour}

//
// ================= SINGLE THREAD BENCH =================
//

func BenchmarkFetchHit(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient(b, nil)
	c.SetData("key", 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Fetch(ctx, "key", benchFetcher, freshOpts)
	}
}

func BenchmarkFetchMiss(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Fetch(ctx, fmt.Sprintf("miss-%d", i), benchFetcher, freshOpts)
	}
}

func BenchmarkSetData(b *testing.B) {
	c := newBenchmarkClient(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.SetData(fmt.Sprintf("key-%d", i%1024), i)
	}
}

func BenchmarkSetDataWriteBack(b *testing.B) {
	store := persist.NewMemory()
	eng := engine.NewCacheEngine(nil, store, writepolicy.NewWriteBackPolicy(store, 4096, logging.Discard()), nil, logging.Discard())
	c := newBenchmarkClient(b, eng)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.SetData(fmt.Sprintf("key-%d", i%1024), i)
	}
}

//
// ================= OBSERVERS =================
//

func BenchmarkSetDataWithObservers(b *testing.B) {
	c := newBenchmarkClient(b, nil)
	c.SetData("key", 0)

	for range 16 {
		o, err := c.Observe("key", nil, freshOpts)
		if err != nil {
			b.Fatal(err)
		}
		b.Cleanup(o.Close)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.SetData("key", i)
	}
}

//
// ================= PARALLEL BENCH =================
//

func BenchmarkParallelFetchHit(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient(b, nil)

	for i := 0; i < 1000; i++ {
		c.SetData(fmt.Sprintf("key-%d", i), i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Fetch(ctx, fmt.Sprintf("key-%d", i%1000), benchFetcher, freshOpts)
			i++
		}
	})
}

func BenchmarkConcurrentFetchSameKey(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("hot-%d", i)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.Fetch(ctx, key, benchFetcher, freshOpts)
			}()
		}
		wg.Wait()
	}
}
