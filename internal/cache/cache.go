package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Backend stores memoized responses by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cache memoizes remote calls by (operation, input). Concurrent calls for the
// same key share one invocation.
type Cache struct {
	backend Backend
	group   singleflight.Group
}

func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// Key derives a cache key from an operation name and its inputs. Each input
// is length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(op string, inputs ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, in := range inputs {
		binary.BigEndian.PutUint64(n[:], uint64(len(in)))
		h.Write(n[:])
		h.Write(in)
	}
	return op + ":" + hex.EncodeToString(h.Sum(nil))
}

// callTimeout bounds a shared call once it no longer follows any caller's
// cancellation.
const callTimeout = 5 * time.Minute

// Do returns the cached value for key, calling fn at most once to fill it.
// Backend failures degrade to a miss; errors from fn are never cached.
// fn runs detached from ctx so that one caller going away does not fail the
// others sharing the call; each caller still stops waiting when its own ctx
// is done.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok := c.lookup(ctx, key); ok {
		return val, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callTimeout)
		defer cancel()

		if val, ok := c.lookup(callCtx, key); ok {
			return val, nil
		}

		val, err := fn(callCtx)
		if err != nil {
			return nil, err
		}

		if err := c.backend.Set(callCtx, key, val); err != nil {
			log.Printf("cache: failed to store %s: %v", key, err)
		}
		return val, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		log.Printf("cache: lookup %s failed: %v", key, err)
		return nil, false
	}
	return val, ok
}

// MemoryBackend keeps entries for the life of the process.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.entries[key]
	return val, ok, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = value
	return nil
}

func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
