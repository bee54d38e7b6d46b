package triava_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ADICADI/triava"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()

	if err := c.Put(context.Background(), "a", "1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := c.Get(context.Background(), "a")
	if err != nil || !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v, %v; want 1, true, nil", v, ok, err)
	}
}

func TestGetMissingKeyIsMiss(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Errorf("Get(absent) = _, %v, %v; want false, nil", ok, err)
	}
}

func TestPutIfAbsent(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()
	ctx := context.Background()

	stored, err := c.PutIfAbsent(ctx, "a", "1")
	if err != nil || !stored {
		t.Fatalf("first PutIfAbsent = %v, %v; want true, nil", stored, err)
	}
	stored, err = c.PutIfAbsent(ctx, "a", "2")
	if err != nil || stored {
		t.Fatalf("second PutIfAbsent = %v, %v; want false, nil", stored, err)
	}
	v, _, _ := c.Get(ctx, "a")
	if v != "1" {
		t.Errorf("value after a rejected PutIfAbsent = %q, want 1", v)
	}
}

func TestReplaceOnlyIfPresent(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()
	ctx := context.Background()

	replaced, err := c.Replace(ctx, "a", "1")
	if err != nil || replaced {
		t.Fatalf("Replace on absent key = %v, %v; want false, nil", replaced, err)
	}
	_ = c.Put(ctx, "a", "1")
	replaced, err = c.Replace(ctx, "a", "2")
	if err != nil || !replaced {
		t.Fatalf("Replace on present key = %v, %v; want true, nil", replaced, err)
	}
	v, _, _ := c.Get(ctx, "a")
	if v != "2" {
		t.Errorf("value after Replace = %q, want 2", v)
	}
}

func TestReplaceExpectConditional(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()
	ctx := context.Background()
	eq := func(a, b string) bool { return a == b }

	_ = c.Put(ctx, "a", "1")

	replaced, err := c.ReplaceExpect(ctx, "a", "wrong", "2", eq)
	if err != nil || replaced {
		t.Fatalf("ReplaceExpect with wrong old value = %v, %v; want false, nil", replaced, err)
	}
	replaced, err = c.ReplaceExpect(ctx, "a", "1", "2", eq)
	if err != nil || !replaced {
		t.Fatalf("ReplaceExpect with correct old value = %v, %v; want true, nil", replaced, err)
	}
	v, _, _ := c.Get(ctx, "a")
	if v != "2" {
		t.Errorf("value after conditional replace = %q, want 2", v)
	}
}

func TestRemove(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()
	ctx := context.Background()

	_ = c.Put(ctx, "a", "1")
	removed, err := c.Remove(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("Remove(a) = %v, %v; want true, nil", removed, err)
	}
	if c.ContainsKey("a") {
		t.Error("key should be gone after Remove")
	}
	removed, err = c.Remove(ctx, "a")
	if err != nil || removed {
		t.Fatalf("Remove of an already-absent key = %v, %v; want false, nil", removed, err)
	}
}

func TestClear(t *testing.T) {
	c := triava.New[string, int](triava.WithExpectedSize[string, int](10))
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = c.Put(ctx, string(rune('a'+i)), i)
	}
	if c.Size() != 5 {
		t.Fatalf("Size() before Clear = %d, want 5", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", c.Size())
	}
}

func TestMaxIdleTimeExpiry(t *testing.T) {
	c := triava.New[string, string](
		triava.WithExpectedSize[string, string](10),
		triava.WithMaxIdleTime[string, string](20*time.Millisecond),
		triava.WithTickInterval[string, string](2*time.Millisecond),
	)
	defer c.Close()
	ctx := context.Background()

	_ = c.Put(ctx, "a", "1")
	if !c.ContainsKey("a") {
		t.Fatal("key should be present immediately after Put")
	}

	time.Sleep(80 * time.Millisecond)

	_, ok, err := c.Get(ctx, "a")
	if err != nil || ok {
		t.Errorf("Get after idle expiry = _, %v, %v; want false, nil", ok, err)
	}
}

func TestExpirySweeperDoesNotCountAsRemove(t *testing.T) {
	c := triava.New[string, string](
		triava.WithExpectedSize[string, string](10),
		triava.WithMaxIdleTime[string, string](20*time.Millisecond),
		triava.WithTickInterval[string, string](2*time.Millisecond),
	)
	defer c.Close()
	ctx := context.Background()

	_ = c.Put(ctx, "a", "1")
	time.Sleep(80 * time.Millisecond)
	c.ContainsKey("a") // a plain read: it neither removes the entry nor wakes the sweeper

	if got := c.Stats().Removes; got != 0 {
		t.Errorf("Stats().Removes after idle expiry = %d, want 0 (expiry is not a remove operation)", got)
	}
}

func TestLRUEvictionUnderCapacityPressure(t *testing.T) {
	c := triava.New[string, int](
		triava.WithExpectedSize[string, int](10),
		triava.WithConcurrencyLevel[string, int](2),
		triava.WithEvictionPolicy[string, int](triava.LRU),
	)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Put(ctx, key, i); err != nil && !errors.Is(err, triava.ErrDropped) {
			t.Fatalf("Put: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for c.Size() > 12 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Size() > 12 {
		t.Errorf("Size() after eviction pressure = %d, want <= ~12 (expected_size + 15%% block mark)", c.Size())
	}
}

func TestReadThroughLoader(t *testing.T) {
	var loadCount atomic.Int64
	c := triava.New[string, string](
		triava.WithExpectedSize[string, string](10),
		triava.WithLoader[string, string](triava.LoaderFunc[string, string](
			func(ctx context.Context, key string) (string, error) {
				loadCount.Add(1)
				return strings.ToUpper(key), nil
			},
		)),
	)
	defer c.Close()

	v, ok, err := c.Get(context.Background(), "hello")
	if err != nil || !ok || v != "HELLO" {
		t.Fatalf("Get with loader = %q, %v, %v; want HELLO, true, nil", v, ok, err)
	}
	if loadCount.Load() != 1 {
		t.Errorf("loadCount = %d, want 1", loadCount.Load())
	}

	// A second Get should be served from the cache, not the loader.
	_, _, _ = c.Get(context.Background(), "hello")
	if loadCount.Load() != 1 {
		t.Errorf("loadCount after cached hit = %d, want still 1", loadCount.Load())
	}
}

func TestConcurrentLoadsForSameKeyDeduplicate(t *testing.T) {
	var loadCount atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})

	c := triava.New[string, string](
		triava.WithExpectedSize[string, string](10),
		triava.WithLoader[string, string](triava.LoaderFunc[string, string](
			func(ctx context.Context, key string) (string, error) {
				if loadCount.Add(1) == 1 {
					close(started)
					<-release
				}
				return "value", nil
			},
		)),
	)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Get(context.Background(), "shared")
		}()
	}

	<-started
	close(release)
	wg.Wait()

	if loadCount.Load() != 1 {
		t.Errorf("loadCount = %d, want 1 (deduplicated across concurrent callers)", loadCount.Load())
	}
}

func TestWriteThroughFailureBlocksLocalPut(t *testing.T) {
	writeErr := errors.New("backing store unavailable")
	c := triava.New[string, string](
		triava.WithExpectedSize[string, string](10),
		triava.WithWriter[string, string](triava.WriterFuncs[string, string]{
			WriteFunc: func(ctx context.Context, key, value string) error { return writeErr },
		}),
	)
	defer c.Close()

	err := c.Put(context.Background(), "a", "1")
	if !errors.Is(err, triava.ErrWriterError) {
		t.Fatalf("Put error = %v, want ErrWriterError", err)
	}
	if c.ContainsKey("a") {
		t.Error("a failed write-through put must not be applied locally")
	}
}

func TestJamPolicyDrop(t *testing.T) {
	c := triava.New[string, int](
		triava.WithExpectedSize[string, int](2),
		triava.WithEvictionPolicy[string, int](triava.LRU),
		triava.WithJamPolicy[string, int](triava.JamPolicyDrop),
	)
	defer c.Close()
	ctx := context.Background()

	var drops int
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Put(ctx, key, i); errors.Is(err, triava.ErrDropped) {
			drops++
		} else if err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if drops == 0 {
		t.Error("expected at least one dropped put under JamPolicyDrop with a tiny expected size")
	}
}

func TestGetAllPutAllRemoveAll(t *testing.T) {
	c := triava.New[string, int](triava.WithExpectedSize[string, int](10))
	defer c.Close()
	ctx := context.Background()

	if err := c.PutAll(ctx, map[string]int{"a": 1, "b": 2, "c": 3}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	got, err := c.GetAll(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if got["a"] != 1 || got["b"] != 2 {
		t.Errorf("GetAll = %v, want a=1 b=2", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("GetAll should not include keys that were never present")
	}

	if err := c.RemoveAll(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if c.ContainsKey("a") || c.ContainsKey("b") {
		t.Error("removed keys should no longer be present")
	}
	if !c.ContainsKey("c") {
		t.Error("RemoveAll must not touch keys outside its list")
	}
}

func TestPutAllContinuesPastPerKeyFailures(t *testing.T) {
	writeErr := errors.New("backing store unavailable")
	c := triava.New[string, int](
		triava.WithExpectedSize[string, int](10),
		triava.WithWriter[string, int](triava.WriterFuncs[string, int]{
			WriteFunc: func(ctx context.Context, key string, value int) error {
				if key == "bad" {
					return writeErr
				}
				return nil
			},
		}),
	)
	defer c.Close()
	ctx := context.Background()

	err := c.PutAll(ctx, map[string]int{"a": 1, "bad": 2, "c": 3})
	if !errors.Is(err, triava.ErrWriterError) {
		t.Fatalf("PutAll error = %v, want ErrWriterError", err)
	}
	if !c.ContainsKey("a") || !c.ContainsKey("c") {
		t.Error("PutAll must apply every key that did not fail, not stop at the first failure")
	}
	if c.ContainsKey("bad") {
		t.Error("the rejected key must not be applied locally")
	}
}

func TestRemoveAllContinuesPastPerKeyFailures(t *testing.T) {
	writeErr := errors.New("backing store unavailable")
	c := triava.New[string, int](
		triava.WithExpectedSize[string, int](10),
		triava.WithWriter[string, int](triava.WriterFuncs[string, int]{
			WriteFunc: func(ctx context.Context, key string, value int) error { return nil },
			DeleteFunc: func(ctx context.Context, key string) error {
				if key == "bad" {
					return writeErr
				}
				return nil
			},
		}),
	)
	defer c.Close()
	ctx := context.Background()

	if err := c.PutAll(ctx, map[string]int{"a": 1, "bad": 2, "c": 3}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	err := c.RemoveAll(ctx, []string{"a", "bad", "c"})
	if !errors.Is(err, triava.ErrWriterError) {
		t.Fatalf("RemoveAll error = %v, want ErrWriterError", err)
	}
	if c.ContainsKey("a") || c.ContainsKey("c") {
		t.Error("RemoveAll must remove every key that did not fail, not stop at the first failure")
	}
	if !c.ContainsKey("bad") {
		t.Error("a key whose write-through delete failed must remain present")
	}
}

func TestQuiescentSizeStaysAtOrUnderUserDataElements(t *testing.T) {
	c := triava.New[string, int](
		triava.WithExpectedSize[string, int](10),
		triava.WithEvictionPolicy[string, int](triava.LRU),
	)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Put(ctx, key, i); err != nil && !errors.Is(err, triava.ErrDropped) {
			t.Fatalf("Put: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for c.Size() > 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Size() > 10 {
		t.Errorf("quiescent Size() = %d, want <= 10 (user_data_elements), not just <= block_start_at", c.Size())
	}
}

func TestClosedCacheRejectsMutations(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	c.Close()

	if err := c.Put(context.Background(), "a", "1"); !errors.Is(err, triava.ErrClosedCache) {
		t.Errorf("Put on closed cache = %v, want ErrClosedCache", err)
	}
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c := triava.New[string, string](triava.WithExpectedSize[string, string](10))
	defer c.Close()
	ctx := context.Background()

	_ = c.Put(ctx, "a", "1")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Puts != 1 {
		t.Errorf("Stats() = %+v, want Hits=1 Misses=1 Puts=1", stats)
	}
}
