package templatex

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrCreateBuildsOnce(t *testing.T) {
	cache := NewPageCache[string](0)
	var builds atomic.Int32
	release := make(chan struct{})

	build := func() (*Template, error) {
		builds.Add(1)
		<-release
		return New("%body%"), nil
	}

	var wg sync.WaitGroup
	results := make([]*Template, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tpl, err := cache.GetOrCreate("/srv/site/docs", build)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
			}
			results[i] = tpl
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if builds.Load() != 1 {
		t.Errorf("builds = %d, want 1", builds.Load())
	}
	for i, tpl := range results {
		if tpl != results[0] {
			t.Errorf("result %d is a different template", i)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestGetOrCreateReusesEntry(t *testing.T) {
	cache := NewPageCache[int](0)
	first, err := cache.GetOrCreate(404, func() (*Template, error) { return New("a"), nil })
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.GetOrCreate(404, func() (*Template, error) {
		t.Error("build called for cached key")
		return New("b"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("GetOrCreate returned a new template for a cached key")
	}
}

func TestGetOrCreateDoesNotCacheFailures(t *testing.T) {
	cache := NewPageCache[int](0)
	boom := errors.New("boom")

	if _, err := cache.GetOrCreate(500, func() (*Template, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("GetOrCreate() error = %v, want %v", err, boom)
	}
	if _, ok := cache.Get(500); ok {
		t.Fatal("failed build was cached")
	}

	tpl, err := cache.GetOrCreate(500, func() (*Template, error) { return New("ok"), nil })
	if err != nil || tpl == nil {
		t.Fatalf("GetOrCreate() retry = %v, %v", tpl, err)
	}
}

func TestBoundedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewPageCache[string](2)
	for _, key := range []string{"/a", "/b"} {
		cache.Put(key, New(key))
	}
	// Touch /a so /b becomes the eviction candidate.
	if _, ok := cache.Get("/a"); !ok {
		t.Fatal("expected /a to be cached")
	}
	cache.Put("/c", New("/c"))

	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
	if _, ok := cache.Get("/b"); ok {
		t.Error("/b should have been evicted")
	}
	for _, key := range []string{"/a", "/c"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
}
