// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package segmented implements the concurrent base shared by concurrentmap
// and concurrentset: a fixed number of independently-locked hash-table
// segments, plus one per-thread non-locking write cache per configured
// thread. AsyncSet tries a segment lock first and falls back to the
// calling thread's cache under contention; Sync drains every cache back
// into its segments.
package segmented

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/hashtable"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/reducer"
)

type segment[K, V any] struct {
	mu    sync.Mutex
	table *hashtable.Table[K, V]
}

// Table is the segmented hash base: S segments, each a hashtable.Table
// guarded by its own mutex, plus T per-thread write caches. S is the
// smallest power of two at least 4*T. The zero value is not usable;
// construct with New.
type Table[K, V any] struct {
	segments []*segment[K, V]
	caches   []*hashtable.Table[K, V]

	equal func(a, b K) bool
	hash  func(K) uint64

	logger logging.Logger
	stats  *stats.Stats
}

// New constructs a Table sized for cfg.Threads threads. hash must be a
// pure function of its argument; equal must report whether two keys with
// equal hashes are actually the same key.
func New[K, V any](cfg runtime.Config, hash func(K) uint64, equal func(a, b K) bool) *Table[K, V] {
	nSegments := segmentCount(cfg.Threads)
	t := &Table[K, V]{
		segments: make([]*segment[K, V], nSegments),
		caches:   make([]*hashtable.Table[K, V], cfg.Threads),
		equal:    equal,
		hash:     hash,
		logger:   logging.Default,
	}
	for i := range t.segments {
		t.segments[i] = &segment[K, V]{table: hashtable.New[K, V](equal)}
	}
	for i := range t.caches {
		t.caches[i] = hashtable.New[K, V](equal)
	}
	return t
}

// segmentCount returns the smallest power of two >= 4*nThreads, at least 1.
func segmentCount(nThreads int) int {
	min := 4 * nThreads
	if min < 1 {
		min = 1
	}
	n := 1
	for n < min {
		n *= 2
	}
	return n
}

// SetLogger overrides the logger used by every segment's balance guard.
func (t *Table[K, V]) SetLogger(l logging.Logger) {
	t.logger = l
	for _, s := range t.segments {
		s.table.SetLogger(l)
	}
}

// SetStats attaches the optional metrics sink incremented on every
// AsyncSet cache fallback and every segment's rehash. A nil Stats (the
// default) costs nothing on the hot path.
func (t *Table[K, V]) SetStats(s *stats.Stats) {
	t.stats = s
	for _, seg := range t.segments {
		seg.table.SetStats(s)
	}
}

// NSegments returns the segment count S.
func (t *Table[K, V]) NSegments() int { return len(t.segments) }

func (t *Table[K, V]) segmentFor(hash uint64) *segment[K, V] {
	return t.segments[hash&uint64(len(t.segments)-1)]
}

// Set inserts value for key under the owning segment's lock, combining
// with any existing value via reduce.
func (t *Table[K, V]) Set(key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	s := t.segmentFor(hash)
	start := time.Now()
	s.mu.Lock()
	t.stats.ObserveSegmentLockWait(time.Since(start))
	s.table.Set(key, hash, value, reduce)
	s.mu.Unlock()
}

// AsyncSet is the fast path: it tries a non-blocking lock of the owning
// segment, and on success behaves like Set. On contention it instead
// writes to threadID's cache, an ordinary non-thread-safe table that only
// that thread ever touches, so the write proceeds at cache speed
// regardless of segment contention. threadID must be in [0, len(caches)).
func (t *Table[K, V]) AsyncSet(threadID int, key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	s := t.segmentFor(hash)
	if s.mu.TryLock() {
		s.table.Set(key, hash, value, reduce)
		s.mu.Unlock()
		return
	}
	t.stats.IncCacheFallback()
	t.caches[threadID].Set(key, hash, value, reduce)
}

// Sync drains every thread's cache into its owning segments, using reduce
// to combine with any value already present. Safe to call only when no
// goroutine is concurrently calling AsyncSet with the same threadID.
func (t *Table[K, V]) Sync(pool runtime.ThreadPool, reduce reducer.Reducer[V]) {
	pool.ParallelFor(len(t.caches), func(_ /* worker */, threadID int) error {
		cache := t.caches[threadID]
		cache.ForEach(func(key K, hash uint64, value V) {
			t.Set(key, hash, value, reduce)
		})
		cache.ClearAndShrink()
		return nil
	})
}

// Has reports whether key is present, under the owning segment's lock.
func (t *Table[K, V]) Has(key K, hash uint64) bool {
	s := t.segmentFor(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Has(key, hash)
}

// Get returns the value stored for key, or def if absent, under the
// owning segment's lock.
func (t *Table[K, V]) Get(key K, hash uint64, def V) V {
	s := t.segmentFor(hash)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Get(key, hash, def)
}

// Unset removes key, if present, under the owning segment's lock.
func (t *Table[K, V]) Unset(key K, hash uint64) {
	s := t.segmentFor(hash)
	s.mu.Lock()
	s.table.Unset(key, hash)
	s.mu.Unlock()
}

// Clear empties every segment and every thread cache, parallelized over
// segments.
func (t *Table[K, V]) Clear() {
	var wg sync.WaitGroup
	wg.Add(len(t.segments))
	for _, s := range t.segments {
		s := s
		go func() {
			defer wg.Done()
			s.mu.Lock()
			s.table.Clear()
			s.mu.Unlock()
		}()
	}
	wg.Wait()
	for _, c := range t.caches {
		c.Clear()
	}
}

// ClearAndShrink empties every segment and thread cache and resets each
// to its initial bucket count.
func (t *Table[K, V]) ClearAndShrink() {
	var wg sync.WaitGroup
	wg.Add(len(t.segments))
	for _, s := range t.segments {
		s := s
		go func() {
			defer wg.Done()
			s.mu.Lock()
			s.table.ClearAndShrink()
			s.mu.Unlock()
		}()
	}
	wg.Wait()
	for _, c := range t.caches {
		c.ClearAndShrink()
	}
}

// ForEach calls handler for every (key, hash, value) across every
// segment. Concurrent mutation is not supported; callers must ensure no
// Set/AsyncSet/Sync runs during iteration.
func (t *Table[K, V]) ForEach(handler func(key K, hash uint64, value V)) {
	for _, s := range t.segments {
		s.table.ForEach(handler)
	}
}

// Serialize emits segment count, max load factor, then, for each segment
// in order, its key count followed by its (key, value) entries. Hashes
// are not written; Parse recomputes them.
func (t *Table[K, V]) Serialize(w io.Writer, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	maxLoadFactor := hashtable.DefaultMaxLoadFactor
	if len(t.segments) > 0 {
		maxLoadFactor = t.segments[0].table.MaxLoadFactor
	}
	if err := encodeUint64(w, uint64(len(t.segments))); err != nil {
		return fmt.Errorf("segmented: writing segment count: %w", err)
	}
	if err := encodeFloat64(w, maxLoadFactor); err != nil {
		return fmt.Errorf("segmented: writing max load factor: %w", err)
	}
	for i, s := range t.segments {
		if err := encodeUint64(w, uint64(s.table.Len())); err != nil {
			return fmt.Errorf("segmented: writing segment %d key count: %w", i, err)
		}
		var encErr error
		s.table.ForEach(func(key K, _ uint64, value V) {
			if encErr != nil {
				return
			}
			if err := keyCodec.Encode(w, key); err != nil {
				encErr = fmt.Errorf("segmented: encoding key in segment %d: %w", i, err)
				return
			}
			if err := valueCodec.Encode(w, value); err != nil {
				encErr = fmt.Errorf("segmented: encoding value in segment %d: %w", i, err)
			}
		})
		if encErr != nil {
			return encErr
		}
	}
	return nil
}

// Parse reads a stream written by Serialize and inserts every entry via
// Set with reducer "keep" (first writer wins), rehashing each key with
// this table's own hash function. If the destination's segment count
// differs from the source's, entries may land in different segments than
// they originated in; this is an accepted consequence of re-sharding on
// parse, not an error.
func (t *Table[K, V]) Parse(r io.Reader, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	t.ClearAndShrink()

	nSegments, err := decodeUint64(r)
	if err != nil {
		return fmt.Errorf("segmented: reading segment count: %w", err)
	}
	maxLoadFactor, err := decodeFloat64(r)
	if err != nil {
		return fmt.Errorf("segmented: reading max load factor: %w", err)
	}
	for _, s := range t.segments {
		s.table.MaxLoadFactor = maxLoadFactor
	}

	for seg := uint64(0); seg < nSegments; seg++ {
		nKeys, err := decodeUint64(r)
		if err != nil {
			return fmt.Errorf("segmented: reading segment %d key count: %w", seg, err)
		}
		for i := uint64(0); i < nKeys; i++ {
			key, err := keyCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("segmented: decoding key %d/%d in segment %d: %w", i, nKeys, seg, err)
			}
			value, err := valueCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("segmented: decoding value %d/%d in segment %d: %w", i, nKeys, seg, err)
			}
			t.Set(key, t.hash(key), value, reducer.Keep[V])
		}
	}
	return nil
}
