// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashmap is the single-threaded typed facade over the
// linear-probing hash base in internal/hashtable: a Map adds a value per
// key and a serialize/parse pair on top of the base's set/get/has/unset.
package hashmap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/hashtable"
	"github.com/aristanetworks/parallelmap/reducer"
)

// Map associates keys of type K with values of type V. The zero value is
// not usable; construct with New.
type Map[K, V any] struct {
	table *hashtable.Table[K, V]
	hash  func(K) uint64
}

// New constructs an empty Map. hash must be a pure function of its
// argument; equal must report whether two keys with equal hashes are
// actually the same key.
func New[K, V any](hash func(K) uint64, equal func(a, b K) bool) *Map[K, V] {
	return &Map[K, V]{
		table: hashtable.New[K, V](equal),
		hash:  hash,
	}
}

// Len returns the number of keys stored.
func (m *Map[K, V]) Len() int { return m.table.Len() }

// Reserve grows the map, if needed, to hold at least nKeysMin keys without
// triggering a load-factor rehash.
func (m *Map[K, V]) Reserve(nKeysMin int) { m.table.Reserve(nKeysMin) }

// Set inserts value for key, combining with any existing value via reduce.
func (m *Map[K, V]) Set(key K, value V, reduce reducer.Reducer[V]) {
	m.table.Set(key, m.hash(key), value, reduce)
}

// Get returns the value stored for key, or def if key is absent.
func (m *Map[K, V]) Get(key K, def V) V {
	return m.table.Get(key, m.hash(key), def)
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	return m.table.Has(key, m.hash(key))
}

// Unset removes key, if present.
func (m *Map[K, V]) Unset(key K) {
	m.table.Unset(key, m.hash(key))
}

// Clear empties the map without shrinking its bucket array.
func (m *Map[K, V]) Clear() { m.table.Clear() }

// ClearAndShrink empties the map and resets its bucket array to the
// initial size.
func (m *Map[K, V]) ClearAndShrink() { m.table.ClearAndShrink() }

// ForEach calls handler for every (key, value) pair. Order is unspecified
// and not stable across rehashes; handler must not mutate the map.
func (m *Map[K, V]) ForEach(handler func(key K, value V)) {
	m.table.ForEach(func(key K, _ uint64, value V) {
		handler(key, value)
	})
}

// Serialize writes n_keys followed by each filled entry's (key, value) to
// w. The bucket layout and the stored hash are never written; Parse
// recomputes the hash with the destination map's own hash function.
func (m *Map[K, V]) Serialize(w io.Writer, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(m.Len())); err != nil {
		return fmt.Errorf("hashmap: writing key count: %w", err)
	}
	var encErr error
	m.ForEach(func(key K, value V) {
		if encErr != nil {
			return
		}
		if err := keyCodec.Encode(w, key); err != nil {
			encErr = fmt.Errorf("hashmap: encoding key: %w", err)
			return
		}
		if err := valueCodec.Encode(w, value); err != nil {
			encErr = fmt.Errorf("hashmap: encoding value: %w", err)
		}
	})
	return encErr
}

// Parse reads a stream written by Serialize and inserts every entry into
// m, reducing with "keep" (first writer wins) on any collision. It does
// not clear m first.
func (m *Map[K, V]) Parse(r io.Reader, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) error {
	var nKeys uint64
	if err := binary.Read(r, binary.LittleEndian, &nKeys); err != nil {
		return fmt.Errorf("hashmap: reading key count: %w", err)
	}
	m.Reserve(m.Len() + int(nKeys))
	for i := uint64(0); i < nKeys; i++ {
		key, err := keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("hashmap: decoding key %d/%d: %w", i, nKeys, err)
		}
		value, err := valueCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("hashmap: decoding value %d/%d: %w", i, nKeys, err)
		}
		m.Set(key, value, reducer.Keep[V])
	}
	return nil
}
