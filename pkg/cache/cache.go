// Package cache implements the two-level result cache: an in-memory LRU tier
// fronting a cold tier (filesystem-backed object store or Redis), with TTL
// and three independent size caps.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonaylor89/freqmoda/pkg/kvkeys"
	"github.com/jonaylor89/freqmoda/pkg/objstore"
)

// entry is what the in-memory tier stores: the rendered bytes plus expiry.
type entry struct {
	bytes  []byte
	expiry time.Time
}

func (e entry) expired(now time.Time) bool { return now.After(e.expiry) }

// ColdTier is the cold-storage side of the cache: either the filesystem
// object store or a Redis client, both addressed by fingerprint hex.
type ColdTier interface {
	Get(ctx context.Context, fingerprintHex string) ([]byte, time.Time, bool, error)
	Set(ctx context.Context, fingerprintHex string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, fingerprintHex string) error
}

// Cache is the two-level result cache described in spec 4.E.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, entry]
	cold ColdTier

	maxEntries   int
	maxMemBytes  int64
	curMemBytes  int64
}

// New constructs a Cache. maxEntries bounds the in-memory LRU's entry count;
// maxMemBytes additionally bounds its total byte footprint, evicted
// independently of the LRU's own entry-count eviction.
func New(cold ColdTier, maxEntries int, maxMemBytes int64) (*Cache, error) {
	c := &Cache{cold: cold, maxEntries: maxEntries, maxMemBytes: maxMemBytes}
	l, err := lru.NewWithEvict(maxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("new lru: %w", err)
	}
	c.lru = l
	return c, nil
}

func (c *Cache) onEvict(_ string, e entry) {
	c.curMemBytes -= int64(len(e.bytes))
}

// Get honours TTL: an expired entry is treated as absent and opportunistically
// deleted from both tiers on this same call (lazy cleanup, per design note).
func (c *Cache) Get(ctx context.Context, fingerprintHex string) ([]byte, bool, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(fingerprintHex); ok {
		if e.expired(time.Now()) {
			c.lru.Remove(fingerprintHex)
			c.mu.Unlock()
			_ = c.cold.Delete(ctx, fingerprintHex)
			return nil, false, nil
		}
		c.mu.Unlock()
		return e.bytes, true, nil
	}
	c.mu.Unlock()

	data, expiry, ok, err := c.cold.Get(ctx, fingerprintHex)
	if err != nil {
		return nil, false, fmt.Errorf("cold tier get: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(expiry) {
		_ = c.cold.Delete(ctx, fingerprintHex)
		return nil, false, nil
	}

	c.insertMem(fingerprintHex, data, expiry)
	return data, true, nil
}

// Set writes through to both tiers. Evicts LRU entries first if inserting
// would exceed the in-memory byte cap; the cold tier's own disk-byte cap is
// enforced by its implementation (see pkg/objstore-backed ColdTier).
func (c *Cache) Set(ctx context.Context, fingerprintHex string, data []byte, ttl time.Duration) error {
	if err := c.cold.Set(ctx, fingerprintHex, data, ttl); err != nil {
		return fmt.Errorf("cold tier set: %w", err)
	}
	c.insertMem(fingerprintHex, data, time.Now().Add(ttl))
	return nil
}

func (c *Cache) insertMem(key string, data []byte, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	for c.curMemBytes+size > c.maxMemBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
	c.lru.Add(key, entry{bytes: data, expiry: expiry})
	c.curMemBytes += size
}

// Delete removes fingerprintHex from both tiers.
func (c *Cache) Delete(ctx context.Context, fingerprintHex string) error {
	c.mu.Lock()
	c.lru.Remove(fingerprintHex)
	c.mu.Unlock()
	return c.cold.Delete(ctx, fingerprintHex)
}

// MemEntries reports the current in-memory entry count, for cap testing.
func (c *Cache) MemEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// MemBytes reports the current in-memory byte footprint, for cap testing.
func (c *Cache) MemBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curMemBytes
}

// FilesystemColdTier is a ColdTier backed by an objstore.Store, sharding keys
// by fingerprint exactly as spec 4.B/4.E describe, with a sidecar file
// holding the TTL expiry instant. A recency list tracks last access so that
// exceeding maxDiskBytes evicts the least-recently-used entries first.
type FilesystemColdTier struct {
	store        objstore.Store
	maxDiskBytes int64
	maxEntries   int

	mu           sync.Mutex
	recency      *list.List
	elems        map[string]*list.Element
	sizes        map[string]int64
	curDiskBytes int64
}

type recencyNode struct{ key string }

func NewFilesystemColdTier(store objstore.Store, maxEntries int, maxDiskBytes int64) *FilesystemColdTier {
	return &FilesystemColdTier{
		store:        store,
		maxEntries:   maxEntries,
		maxDiskBytes: maxDiskBytes,
		recency:      list.New(),
		elems:        make(map[string]*list.Element),
		sizes:        make(map[string]int64),
	}
}

// touch records fingerprintHex as most-recently-used.
func (f *FilesystemColdTier) touch(fingerprintHex string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.elems[fingerprintHex]; ok {
		f.recency.MoveToFront(e)
		return
	}
	f.elems[fingerprintHex] = f.recency.PushFront(recencyNode{key: fingerprintHex})
}

func shardedKey(fingerprintHex string) string {
	return fingerprintHex[0:2] + "/" + fingerprintHex[2:4] + "/" + fingerprintHex
}

func (f *FilesystemColdTier) Get(ctx context.Context, fingerprintHex string) ([]byte, time.Time, bool, error) {
	data, err := f.store.Get(ctx, shardedKey(fingerprintHex))
	if err == objstore.ErrNotFound {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	ttlRaw, err := f.store.Get(ctx, shardedKey(fingerprintHex)+".ttl")
	if err != nil {
		// no sidecar means treat as already expired, forcing a rebuild.
		return nil, time.Time{}, false, nil
	}
	expiry, err := time.Parse(time.RFC3339Nano, string(ttlRaw))
	if err != nil {
		return nil, time.Time{}, false, nil
	}
	f.touch(fingerprintHex)
	return data, expiry, true, nil
}

func (f *FilesystemColdTier) Set(ctx context.Context, fingerprintHex string, data []byte, ttl time.Duration) error {
	key := shardedKey(fingerprintHex)
	if err := f.store.Put(ctx, key, data); err != nil {
		return err
	}
	expiry := time.Now().Add(ttl)
	if err := f.store.Put(ctx, key+".ttl", []byte(expiry.Format(time.RFC3339Nano))); err != nil {
		return err
	}

	f.mu.Lock()
	if prev, ok := f.sizes[fingerprintHex]; ok {
		f.curDiskBytes -= prev
	}
	f.sizes[fingerprintHex] = int64(len(data))
	f.curDiskBytes += int64(len(data))
	if e, ok := f.elems[fingerprintHex]; ok {
		f.recency.MoveToFront(e)
	} else {
		f.elems[fingerprintHex] = f.recency.PushFront(recencyNode{key: fingerprintHex})
	}

	var evict []string
	for (f.curDiskBytes > f.maxDiskBytes || f.recency.Len() > f.maxEntries) && f.recency.Len() > 1 {
		back := f.recency.Back()
		node := back.Value.(recencyNode)
		if node.key == fingerprintHex {
			break // never evict the entry we just wrote
		}
		f.recency.Remove(back)
		delete(f.elems, node.key)
		f.curDiskBytes -= f.sizes[node.key]
		delete(f.sizes, node.key)
		evict = append(evict, node.key)
	}
	f.mu.Unlock()

	for _, k := range evict {
		_ = f.Delete(ctx, k)
	}
	return nil
}

func (f *FilesystemColdTier) Delete(ctx context.Context, fingerprintHex string) error {
	f.mu.Lock()
	if e, ok := f.elems[fingerprintHex]; ok {
		f.recency.Remove(e)
		delete(f.elems, fingerprintHex)
	}
	if sz, ok := f.sizes[fingerprintHex]; ok {
		f.curDiskBytes -= sz
		delete(f.sizes, fingerprintHex)
	}
	f.mu.Unlock()

	key := shardedKey(fingerprintHex)
	_ = f.store.Delete(ctx, key+".ttl")
	return f.store.Delete(ctx, key)
}

// RedisColdTier is a ColdTier backed by Redis, used when Cache.Backend is
// "redis" instead of the filesystem -- the optional Redis cold tier named in
// the domain stack, exercising the same client idiom the teacher's queue
// package uses for write-through caching.
type RedisColdTier struct {
	client *redis.Client
}

func NewRedisColdTier(client *redis.Client) *RedisColdTier {
	return &RedisColdTier{client: client}
}

func (r *RedisColdTier) Get(ctx context.Context, fingerprintHex string) ([]byte, time.Time, bool, error) {
	data, err := r.client.Get(ctx, kvkeys.ResultCache(fingerprintHex)).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	ttl, err := r.client.TTL(ctx, kvkeys.ResultCache(fingerprintHex)).Result()
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return data, time.Now().Add(ttl), true, nil
}

func (r *RedisColdTier) Set(ctx context.Context, fingerprintHex string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, kvkeys.ResultCache(fingerprintHex), data, ttl).Err()
}

func (r *RedisColdTier) Delete(ctx context.Context, fingerprintHex string) error {
	return r.client.Del(ctx, kvkeys.ResultCache(fingerprintHex)).Err()
}
