// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package concurrentmap is the thread-safe typed facade over the
// segmented hash base in internal/segmented: a Map usable from many
// goroutines within one process, with a lock-contention fast path via
// AsyncSet/Sync.
package concurrentmap

import (
	"io"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/internal/segmented"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/reducer"
)

// Map associates keys of type K with values of type V, safe for
// concurrent use by multiple goroutines. The zero value is not usable;
// construct with New.
type Map[K, V any] struct {
	table *segmented.Table[K, V]
	cfg   runtime.Config
	hash  func(K) uint64
}

// New constructs an empty Map sized for cfg.Threads threads. hash must be
// a pure function of its argument; equal must report whether two keys
// with equal hashes are actually the same key. cfg.Pool is populated with
// a default errgroup-backed pool if nil.
func New[K, V any](cfg runtime.Config, hash func(K) uint64, equal func(a, b K) bool) *Map[K, V] {
	cfg = cfg.WithPool()
	return &Map[K, V]{
		table: segmented.New[K, V](cfg, hash, equal),
		cfg:   cfg,
		hash:  hash,
	}
}

// SetLogger overrides the logger used by every segment's balance guard.
func (m *Map[K, V]) SetLogger(l logging.Logger) { m.table.SetLogger(l) }

// SetStats attaches the optional metrics sink; see internal/stats.
func (m *Map[K, V]) SetStats(s *stats.Stats) { m.table.SetStats(s) }

// NSegments returns the segment count S.
func (m *Map[K, V]) NSegments() int { return m.table.NSegments() }

// Set inserts value for key under the owning segment's lock, combining
// with any existing value via reduce. This is the synchronous path: it
// always blocks on the segment lock.
func (m *Map[K, V]) Set(key K, value V, reduce reducer.Reducer[V]) {
	m.table.Set(key, m.hash(key), value, reduce)
}

// AsyncSet is the lock-contention fast path: threadID identifies the
// calling goroutine's slot in [0, cfg.Threads), used to select its
// private write cache if the owning segment's lock is contended. Callers
// must never use the same threadID from two goroutines concurrently.
func (m *Map[K, V]) AsyncSet(threadID int, key K, value V, reduce reducer.Reducer[V]) {
	m.table.AsyncSet(threadID, key, m.hash(key), value, reduce)
}

// Sync drains every thread's write cache into its owning segments, in
// parallel over threads, using reduce to combine with any value already
// present. Call this after a burst of AsyncSet calls and before any Get,
// Has, or ForEach that must observe them.
func (m *Map[K, V]) Sync(reduce reducer.Reducer[V]) {
	m.table.Sync(m.cfg.Pool, reduce)
}

// Get returns the value stored for key, or def if absent.
func (m *Map[K, V]) Get(key K, def V) V {
	return m.table.Get(key, m.hash(key), def)
}

// AsyncSetHash is AsyncSet for a caller that already has key's externally
// computed hash in hand, so the map never rehashes it. The distributed
// overlay is the only caller: it passes hash/NProcs (spec section 9's
// external hashing contract) rather than letting this map rederive a
// hash from the key through its own hash function.
func (m *Map[K, V]) AsyncSetHash(threadID int, key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	m.table.AsyncSet(threadID, key, hash, value, reduce)
}

// SetHash is Set with an externally supplied hash; see AsyncSetHash.
func (m *Map[K, V]) SetHash(key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	m.table.Set(key, hash, value, reduce)
}

// GetHash is Get with an externally supplied hash; see AsyncSetHash.
func (m *Map[K, V]) GetHash(key K, hash uint64, def V) V {
	return m.table.Get(key, hash, def)
}

// HasHash is Has with an externally supplied hash; see AsyncSetHash.
func (m *Map[K, V]) HasHash(key K, hash uint64) bool {
	return m.table.Has(key, hash)
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	return m.table.Has(key, m.hash(key))
}

// Unset removes key, if present.
func (m *Map[K, V]) Unset(key K) {
	m.table.Unset(key, m.hash(key))
}

// Clear empties the map without shrinking its segments.
func (m *Map[K, V]) Clear() { m.table.Clear() }

// ClearAndShrink empties the map and resets every segment to its initial
// bucket count.
func (m *Map[K, V]) ClearAndShrink() { m.table.ClearAndShrink() }

// ForEach calls handler for every (key, value) pair across every
// segment. Concurrent mutation during iteration is not supported.
func (m *Map[K, V]) ForEach(handler func(key K, value V)) {
	m.table.ForEach(func(key K, _ uint64, value V) {
		handler(key, value)
	})
}

// ForEachSerial is ForEach under another name: segmented.Table.ForEach is
// already a plain sequential scan over segments with no errgroup
// fan-out. It exists as a distinct method because distmap/distset's
// ForEachSerial calls it by name on the gathered replica of every rank's
// local shard, after the distributed all-gather (spec section 4.3).
func (m *Map[K, V]) ForEachSerial(handler func(key K, value V)) {
	m.ForEach(handler)
}

// Serialize emits segment count, max load factor, then each segment's
// entries in order.
func (m *Map[K, V]) Serialize(w io.Writer, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	return m.table.Serialize(w, keyCodec, valueCodec)
}

// Parse reads a stream written by Serialize and inserts every entry via
// Set with reducer "keep" (first writer wins). If the destination's
// segment count differs from the source's, entries may land in different
// segments than they originated in: this is the accepted re-sharding
// behavior, not an error.
func (m *Map[K, V]) Parse(r io.Reader, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	return m.table.Parse(r, keyCodec, valueCodec)
}
