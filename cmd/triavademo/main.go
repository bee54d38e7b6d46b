// Command triavademo is a small runnable smoke test of the cache's basic
// surface: expiring puts, a bounded LRU cache under eviction pressure,
// and read-through loading. It exists for manual sanity checks, the way
// oriys-nova's cmd/*/main.go binaries exercise one subsystem each.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ADICADI/triava"
)

func main() {
	ctx := context.Background()

	basic := triava.New[string, string](
		triava.WithID[string, string]("demo-basic"),
		triava.WithExpectedSize[string, string](100),
		triava.WithMaxIdleTime[string, string](time.Minute),
	)
	defer basic.Close()

	if err := basic.Put(ctx, "greeting", "hello"); err != nil {
		slog.Error("put failed", "error", err)
		return
	}
	if v, ok, err := basic.Get(ctx, "greeting"); err == nil && ok {
		fmt.Println("basic cache:", v)
	}

	bounded := triava.New[string, int](
		triava.WithID[string, int]("demo-bounded"),
		triava.WithExpectedSize[string, int](4),
		triava.WithEvictionPolicy[string, int](triava.LRU),
	)
	defer bounded.Close()

	for i := 0; i < 20; i++ {
		_ = bounded.Put(ctx, fmt.Sprintf("key-%d", i), i)
	}
	time.Sleep(50 * time.Millisecond)
	fmt.Println("bounded cache size after 20 puts into a 4-entry LRU cache:", bounded.Size())

	throughCache := triava.New[string, string](
		triava.WithID[string, string]("demo-read-through"),
		triava.WithLoader[string, string](triava.LoaderFunc[string, string](
			func(ctx context.Context, key string) (string, error) {
				return strings.ToUpper(key), nil
			},
		)),
	)
	defer throughCache.Close()

	v, ok, err := throughCache.Get(ctx, "cold-key")
	fmt.Println("read-through load:", v, ok, err)

	stats := basic.Stats()
	fmt.Printf("basic cache stats: hits=%d misses=%d puts=%d\n", stats.Hits, stats.Misses, stats.Puts)
}
