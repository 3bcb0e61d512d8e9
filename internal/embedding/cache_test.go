package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type fakeEmbedder struct {
	calls atomic.Int64
	delay time.Duration
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1, 2}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }
func (f *fakeEmbedder) Dim() int      { return 3 }

type fakeRemote struct {
	mu   sync.Mutex
	data map[string]string
	down bool
	gets int
	sets int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string]string{}}
}

func (f *fakeRemote) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return "", false, errors.New("connection refused")
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.down {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func TestCacheSingleFlight(t *testing.T) {
	provider := &fakeEmbedder{delay: 30 * time.Millisecond}
	c, err := NewCache(logger.NewNop(), provider, nil, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Embed(context.Background(), "same   text"); err != nil {
				t.Errorf("Embed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 provider call for %d concurrent lookups, got %d", n, got)
	}
}

func TestCacheBatchSingleFlight(t *testing.T) {
	provider := &fakeEmbedder{delay: 30 * time.Millisecond}
	c, err := NewCache(logger.NewNop(), provider, nil, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.EmbedBatch(context.Background(), []string{"same text"})
			if err != nil {
				t.Errorf("EmbedBatch: %v", err)
				return
			}
			if len(out) != 1 || len(out[0]) == 0 {
				t.Errorf("unexpected batch result: %v", out)
			}
		}()
	}
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 provider call for %d concurrent batches, got %d", n, got)
	}
}

func TestCacheBatchJoinsEmbedFlight(t *testing.T) {
	provider := &fakeEmbedder{delay: 50 * time.Millisecond}
	c, err := NewCache(logger.NewNop(), provider, nil, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := c.Embed(context.Background(), "shared"); err != nil {
			t.Errorf("Embed: %v", err)
		}
	}()
	// Let the single-text flight start before the batch arrives.
	time.Sleep(10 * time.Millisecond)

	out, err := c.EmbedBatch(context.Background(), []string{"shared", "fresh"})
	wg.Wait()
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out[0]) == 0 || len(out[1]) == 0 {
		t.Fatalf("batch returned empty vectors: %v", out)
	}
	// One flight for "shared" (joined by the batch) and one batched call
	// for "fresh".
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestCacheBatchDeduplicatesRepeatedText(t *testing.T) {
	provider := &fakeEmbedder{}
	c, err := NewCache(logger.NewNop(), provider, nil, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	out, err := c.EmbedBatch(context.Background(), []string{"dup", "dup"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out[0]) == 0 || len(out[1]) == 0 {
		t.Fatalf("expected both positions filled, got %v", out)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call for a repeated text, got %d", got)
	}
}

func TestCacheStatsSummaryAfterBatchJump(t *testing.T) {
	provider := &fakeEmbedder{}
	c, err := NewCache(logger.NewNop(), provider, nil, 128, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	// 60 misses in one jump lands past the 50-request interval without
	// ever touching an exact multiple.
	texts := make([]string, 60)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got := c.statsMark.Load(); got != 60 {
		t.Fatalf("expected summary mark at 60, got %d", got)
	}

	// 30 more requests stay inside the interval; no new summary.
	more := make([]string, 30)
	for i := range more {
		more[i] = fmt.Sprintf("more-%d", i)
	}
	if _, err := c.EmbedBatch(context.Background(), more); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got := c.statsMark.Load(); got != 60 {
		t.Fatalf("expected summary mark unchanged at 60, got %d", got)
	}

	last := make([]string, 30)
	for i := range last {
		last[i] = fmt.Sprintf("last-%d", i)
	}
	if _, err := c.EmbedBatch(context.Background(), last); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if got := c.statsMark.Load(); got != 120 {
		t.Fatalf("expected summary mark at 120, got %d", got)
	}
}

func TestCacheKeyNormalizesWhitespace(t *testing.T) {
	a := Key("m", "hello   world")
	b := Key("m", " hello\nworld ")
	if a != b {
		t.Fatalf("whitespace-differing texts produced different keys: %q vs %q", a, b)
	}
	if Key("m", "hello world") == Key("other", "hello world") {
		t.Fatal("different models produced the same key")
	}
	if a[:4] != "emb:" {
		t.Fatalf("key missing prefix: %q", a)
	}
}

func TestCachePopulatesBothTiers(t *testing.T) {
	provider := &fakeEmbedder{}
	remote := newFakeRemote()
	c, err := NewCache(logger.NewNop(), provider, remote, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	vec, err := c.Embed(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector length %d", len(vec))
	}
	if remote.sets != 1 {
		t.Fatalf("expected 1 remote write, got %d", remote.sets)
	}

	// Second lookup is a pure cache hit.
	if _, err := c.Embed(context.Background(), "alpha"); err != nil {
		t.Fatalf("Embed (cached): %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected provider untouched on hit, got %d calls", got)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats hits=%d misses=%d, want 1/1", st.Hits, st.Misses)
	}
}

func TestCacheRemoteOutageDegradesSilently(t *testing.T) {
	provider := &fakeEmbedder{}
	remote := newFakeRemote()
	remote.down = true
	c, err := NewCache(logger.NewNop(), provider, remote, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := c.Embed(context.Background(), "beta"); err != nil {
		t.Fatalf("Embed should not surface remote outage: %v", err)
	}
	// Local tier still serves repeats without the provider.
	if _, err := c.Embed(context.Background(), "beta"); err != nil {
		t.Fatalf("Embed (local tier): %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
	if c.Stats().RemoteOutages == 0 {
		t.Fatal("expected outage counter to advance")
	}
}

func TestCacheRemoteHitFillsLocal(t *testing.T) {
	provider := &fakeEmbedder{}
	remote := newFakeRemote()
	remote.data[Key("test-model", "gamma")] = "[9,8,7]"
	c, err := NewCache(logger.NewNop(), provider, remote, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	vec, err := c.Embed(context.Background(), "gamma")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 9 || vec[1] != 8 || vec[2] != 7 {
		t.Fatalf("unexpected vector from remote tier: %v", vec)
	}
	if provider.calls.Load() != 0 {
		t.Fatal("provider should not be called on remote hit")
	}
	// Evidence the local tier was filled: kill the remote and look up again.
	remote.down = true
	if _, err := c.Embed(context.Background(), "gamma"); err != nil {
		t.Fatalf("Embed (local after remote hit): %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Fatal("provider called despite local fill")
	}
}

func TestCacheEmbedBatchMixedHits(t *testing.T) {
	provider := &fakeEmbedder{}
	c, err := NewCache(logger.NewNop(), provider, nil, 16, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := c.Embed(context.Background(), "one"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	for i, v := range out {
		if len(v) == 0 {
			t.Fatalf("vector %d empty", i)
		}
	}
	// One seed call plus one batched call for the two misses.
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestCacheLocalEviction(t *testing.T) {
	provider := &fakeEmbedder{}
	c, err := NewCache(logger.NewNop(), provider, nil, 2, time.Hour)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.Embed(context.Background(), fmt.Sprintf("text-%d", i)); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if got := c.Stats().LocalSize; got > 2 {
		t.Fatalf("local tier exceeded capacity: %d", got)
	}
}
