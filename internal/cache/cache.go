// Package cache holds in-process caches for derived ledger data.
package cache

import (
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Len() int
}

var _ Cache[int] = (*LRU[int])(nil)

// Versioned caches values computed from a versioned source. Keys are
// qualified with the source version at lookup time, so a mutation makes
// every older entry unreachable and LRU eviction reclaims it.
type Versioned[T any] struct {
	store   Cache[T]
	version func() uint64
	group   singleflight.Group
}

func NewVersioned[T any](store Cache[T], version func() uint64) *Versioned[T] {
	return &Versioned[T]{store: store, version: version}
}

// GetOrCompute returns the cached value for key at the current version,
// computing it with fn on a miss. Concurrent misses for the same key share
// one computation. Errors are not cached.
func (v *Versioned[T]) GetOrCompute(key string, fn func() (T, error)) (val T, hit bool, err error) {
	qk := strconv.FormatUint(v.version(), 10) + "/" + key
	if cached, ok := v.store.Get(qk); ok {
		return cached, true, nil
	}
	res, err, _ := v.group.Do(qk, func() (any, error) {
		out, err := fn()
		if err != nil {
			return out, err
		}
		v.store.Set(qk, out)
		return out, nil
	})
	if err != nil {
		return val, false, err
	}
	return res.(T), false, nil
}
