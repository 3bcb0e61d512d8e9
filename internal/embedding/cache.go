package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yungbote/contextbrain/internal/platform/logger"
)

const (
	keyPrefix        = "emb:"
	statsLogInterval = 50
	defaultLocalSize = 2048
	defaultRemoteTTL = 7 * 24 * time.Hour
)

// flight is one in-progress provider call for a key. Followers block on
// done and read vec/err once the owner closes it.
type flight struct {
	done chan struct{}
	vec  []float32
	err  error
}

// Cache is the read-through embedding cache every other component sits
// behind. Lookup order: remote tier, local LRU, provider; a provider
// result populates both tiers. Remote-tier failures degrade silently to
// the local tier and are only counted, never surfaced.
//
// Concurrent lookups of the same uncached key share one in-flight
// provider call; the provider is billed per call, so duplicates are
// never issued. The flight registry is claimed under one lock by both
// the single and batch paths, which lets EmbedBatch keep its
// one-provider-call-per-batch shape for the keys it owns while joining
// flights another caller already started.
type Cache struct {
	log      *logger.Logger
	provider Embedder
	remote   RemoteCache
	local    *lru.Cache[string, []float32]
	ttl      time.Duration

	mu      sync.Mutex
	flights map[string]*flight

	hits      atomic.Int64
	misses    atomic.Int64
	degraded  atomic.Int64
	statsMark atomic.Int64
}

func NewCache(log *logger.Logger, provider Embedder, remote RemoteCache, localSize int, ttl time.Duration) (*Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("embedding: logger required")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding: provider required")
	}
	if localSize <= 0 {
		localSize = defaultLocalSize
	}
	if ttl <= 0 {
		ttl = defaultRemoteTTL
	}
	local, err := lru.New[string, []float32](localSize)
	if err != nil {
		return nil, fmt.Errorf("embedding: init local tier: %w", err)
	}
	return &Cache{
		log:      log.With("service", "EmbeddingCache"),
		provider: provider,
		remote:   remote,
		local:    local,
		ttl:      ttl,
		flights:  map[string]*flight{},
	}, nil
}

// Key derives the cache key from the model id and whitespace-normalized
// text. Deterministic across processes so the remote tier is shared.
func Key(model, text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	digest := sha256.Sum256([]byte(model + ":" + normalized))
	return keyPrefix + hex.EncodeToString(digest[:])
}

// claim registers a flight for key, or returns the one already running.
// owned reports whether the caller must complete (and release) it.
func (c *Cache) claim(key string) (f *flight, owned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.flights[key]; ok {
		return f, false
	}
	f = &flight{done: make(chan struct{})}
	c.flights[key] = f
	return f, true
}

func (c *Cache) release(key string, f *flight, vec []float32, err error) {
	f.vec, f.err = vec, err
	c.mu.Lock()
	delete(c.flights, key)
	c.mu.Unlock()
	close(f.done)
}

func (c *Cache) await(ctx context.Context, f *flight) ([]float32, error) {
	select {
	case <-f.done:
		return f.vec, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Embed returns the vector for one text, from cache when possible.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(c.provider.Model(), text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		c.logStatsMaybe()
		return vec, nil
	}
	c.misses.Add(1)
	c.logStatsMaybe()

	f, owned := c.claim(key)
	if !owned {
		return c.await(ctx, f)
	}
	// Re-check under the flight: a sibling may have filled the tiers
	// between our miss and the claim.
	if vec, ok := c.lookup(ctx, key); ok {
		c.release(key, f, vec, nil)
		return vec, nil
	}
	vectors, err := c.provider.Embed(ctx, []string{text})
	if err != nil {
		c.release(key, f, nil, err)
		return nil, err
	}
	vec := vectors[0]
	c.fill(ctx, key, vec)
	c.release(key, f, vec, nil)
	return vec, nil
}

// EmbedBatch embeds many texts, serving each from cache when possible
// and batching the remaining misses into one provider call. Misses
// whose key is already in flight (a concurrent Embed or another batch)
// join that flight instead of re-billing the provider.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	type claimedMiss struct {
		idx    int
		key    string
		flight *flight
	}
	var owned []claimedMiss
	var joined []claimedMiss

	for i, text := range texts {
		key := Key(c.provider.Model(), text)
		if vec, ok := c.lookup(ctx, key); ok {
			c.hits.Add(1)
			out[i] = vec
			continue
		}
		c.misses.Add(1)
		f, isOwner := c.claim(key)
		if isOwner {
			owned = append(owned, claimedMiss{idx: i, key: key, flight: f})
		} else {
			joined = append(joined, claimedMiss{idx: i, key: key, flight: f})
		}
	}
	c.logStatsMaybe()

	if len(owned) > 0 {
		missTexts := make([]string, len(owned))
		for j, m := range owned {
			missTexts[j] = texts[m.idx]
		}
		vectors, err := c.provider.Embed(ctx, missTexts)
		if err != nil {
			for _, m := range owned {
				c.release(m.key, m.flight, nil, err)
			}
			return nil, err
		}
		for j, m := range owned {
			out[m.idx] = vectors[j]
			c.fill(ctx, m.key, vectors[j])
			c.release(m.key, m.flight, vectors[j], nil)
		}
	}

	for _, m := range joined {
		vec, err := c.await(ctx, m.flight)
		if err != nil {
			return nil, err
		}
		out[m.idx] = vec
	}
	return out, nil
}

func (c *Cache) Dim() int      { return c.provider.Dim() }
func (c *Cache) Model() string { return c.provider.Model() }

type Stats struct {
	Hits          int64
	Misses        int64
	RemoteOutages int64
	LocalSize     int
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		RemoteOutages: c.degraded.Load(),
		LocalSize:     c.local.Len(),
	}
}

func (c *Cache) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.remote != nil {
		raw, ok, err := c.remote.Get(ctx, key)
		if err != nil {
			c.degraded.Add(1)
			c.log.Warn("embedding cache: remote tier unavailable, using local tier", "error", err)
		} else if ok {
			var vec []float32
			if json.Unmarshal([]byte(raw), &vec) == nil && len(vec) > 0 {
				c.local.Add(key, vec)
				return vec, true
			}
		}
	}
	if vec, ok := c.local.Get(key); ok {
		return vec, true
	}
	return nil, false
}

func (c *Cache) fill(ctx context.Context, key string, vec []float32) {
	c.local.Add(key, vec)
	if c.remote == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.remote.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.degraded.Add(1)
		c.log.Warn("embedding cache: remote tier write failed", "error", err)
	}
}

// logStatsMaybe emits a summary once the request count has advanced at
// least statsLogInterval past the last summary. Batch requests bump the
// counters in one jump, so an exact-multiple check would skip summaries.
func (c *Cache) logStatsMaybe() {
	total := c.hits.Load() + c.misses.Load()
	mark := c.statsMark.Load()
	if total-mark < statsLogInterval {
		return
	}
	if !c.statsMark.CompareAndSwap(mark, total) {
		return
	}
	hitRate := float64(c.hits.Load()) / float64(total) * 100
	c.log.Info("embedding cache stats",
		"hits", c.hits.Load(),
		"misses", c.misses.Load(),
		"hit_rate_pct", fmt.Sprintf("%.0f", hitRate),
		"local_size", c.local.Len(),
		"remote_outages", c.degraded.Load(),
	)
}
