// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package concurrentset is the thread-safe typed facade over the
// segmented hash base in internal/segmented, the value-less sibling of
// concurrentmap.Map.
package concurrentset

import (
	"io"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/internal/segmented"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/reducer"
)

// member is the empty value stored per key.
type member = struct{}

// Set stores keys of type K, each at most once, safe for concurrent use
// by multiple goroutines. The zero value is not usable; construct with
// New.
type Set[K any] struct {
	table *segmented.Table[K, member]
	cfg   runtime.Config
	hash  func(K) uint64
}

// New constructs an empty Set sized for cfg.Threads threads. hash must be
// a pure function of its argument; equal must report whether two keys
// with equal hashes are actually the same key.
func New[K any](cfg runtime.Config, hash func(K) uint64, equal func(a, b K) bool) *Set[K] {
	cfg = cfg.WithPool()
	return &Set[K]{
		table: segmented.New[K, member](cfg, hash, equal),
		cfg:   cfg,
		hash:  hash,
	}
}

// SetLogger overrides the logger used by every segment's balance guard.
func (s *Set[K]) SetLogger(l logging.Logger) { s.table.SetLogger(l) }

// SetStats attaches the optional metrics sink; see internal/stats.
func (s *Set[K]) SetStats(st *stats.Stats) { s.table.SetStats(st) }

// NSegments returns the segment count S.
func (s *Set[K]) NSegments() int { return s.table.NSegments() }

// Set inserts key under the owning segment's lock. Re-inserting an
// already-present key is a no-op.
func (s *Set[K]) Set(key K) {
	s.table.Set(key, s.hash(key), member{}, reducer.Keep[member])
}

// AsyncSet is the lock-contention fast path; see Map.AsyncSet.
func (s *Set[K]) AsyncSet(threadID int, key K) {
	s.table.AsyncSet(threadID, key, s.hash(key), member{}, reducer.Keep[member])
}

// Sync drains every thread's write cache into its owning segments.
func (s *Set[K]) Sync() {
	s.table.Sync(s.cfg.Pool, reducer.Keep[member])
}

// Has reports whether key is present.
func (s *Set[K]) Has(key K) bool {
	return s.table.Has(key, s.hash(key))
}

// AsyncSetHash is AsyncSet for a caller that already has key's externally
// computed hash in hand; see concurrentmap.Map.AsyncSetHash.
func (s *Set[K]) AsyncSetHash(threadID int, key K, hash uint64) {
	s.table.AsyncSet(threadID, key, hash, member{}, reducer.Keep[member])
}

// SetHash is Set with an externally supplied hash; see AsyncSetHash.
func (s *Set[K]) SetHash(key K, hash uint64) {
	s.table.Set(key, hash, member{}, reducer.Keep[member])
}

// HasHash is Has with an externally supplied hash; see AsyncSetHash.
func (s *Set[K]) HasHash(key K, hash uint64) bool {
	return s.table.Has(key, hash)
}

// Unset removes key, if present.
func (s *Set[K]) Unset(key K) {
	s.table.Unset(key, s.hash(key))
}

// Clear empties the set without shrinking its segments.
func (s *Set[K]) Clear() { s.table.Clear() }

// ClearAndShrink empties the set and resets every segment to its initial
// bucket count.
func (s *Set[K]) ClearAndShrink() { s.table.ClearAndShrink() }

// ForEach calls handler for every key across every segment.
func (s *Set[K]) ForEach(handler func(key K)) {
	s.table.ForEach(func(key K, _ uint64, _ member) {
		handler(key)
	})
}

// ForEachSerial is ForEach under another name; see Map.ForEachSerial.
func (s *Set[K]) ForEachSerial(handler func(key K)) {
	s.ForEach(handler)
}

// Serialize emits segment count, max load factor, then each segment's
// keys in order.
func (s *Set[K]) Serialize(w io.Writer, keyCodec codec.Codec[K]) error {
	return s.table.Serialize(w, keyCodec, memberCodec{})
}

// Parse reads a stream written by Serialize and inserts every key.
func (s *Set[K]) Parse(r io.Reader, keyCodec codec.Codec[K]) error {
	return s.table.Parse(r, keyCodec, memberCodec{})
}

// memberCodec encodes/decodes the empty value as zero bytes.
type memberCodec struct{}

func (memberCodec) Encode(io.Writer, member) error   { return nil }
func (memberCodec) Decode(io.Reader) (member, error) { return member{}, nil }
