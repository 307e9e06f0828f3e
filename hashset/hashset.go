// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashset is the single-threaded typed facade over the
// linear-probing hash base in internal/hashtable, the value-less sibling
// of hashmap.Map: a Set stores only keys.
package hashset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/hashtable"
	"github.com/aristanetworks/parallelmap/reducer"
)

// member is the empty value stored per key; the hash base is generic over
// a value type, and the set flavor picks the zero-size one.
type member = struct{}

// Set stores keys of type K, each at most once. The zero value is not
// usable; construct with New.
type Set[K any] struct {
	table *hashtable.Table[K, member]
	hash  func(K) uint64
}

// New constructs an empty Set. hash must be a pure function of its
// argument; equal must report whether two keys with equal hashes are
// actually the same key.
func New[K any](hash func(K) uint64, equal func(a, b K) bool) *Set[K] {
	return &Set[K]{
		table: hashtable.New[K, member](equal),
		hash:  hash,
	}
}

// Len returns the number of keys stored.
func (s *Set[K]) Len() int { return s.table.Len() }

// Reserve grows the set, if needed, to hold at least nKeysMin keys without
// triggering a load-factor rehash.
func (s *Set[K]) Reserve(nKeysMin int) { s.table.Reserve(nKeysMin) }

// Set inserts key. Re-inserting an already-present key is a no-op.
func (s *Set[K]) Set(key K) {
	s.table.Set(key, s.hash(key), member{}, reducer.Keep[member])
}

// Has reports whether key is present.
func (s *Set[K]) Has(key K) bool {
	return s.table.Has(key, s.hash(key))
}

// Unset removes key, if present.
func (s *Set[K]) Unset(key K) {
	s.table.Unset(key, s.hash(key))
}

// Clear empties the set without shrinking its bucket array.
func (s *Set[K]) Clear() { s.table.Clear() }

// ClearAndShrink empties the set and resets its bucket array to the
// initial size.
func (s *Set[K]) ClearAndShrink() { s.table.ClearAndShrink() }

// ForEach calls handler for every key. Order is unspecified and not
// stable across rehashes; handler must not mutate the set.
func (s *Set[K]) ForEach(handler func(key K)) {
	s.table.ForEach(func(key K, _ uint64, _ member) {
		handler(key)
	})
}

// Serialize writes n_keys followed by each filled key to w.
func (s *Set[K]) Serialize(w io.Writer, keyCodec codec.Codec[K]) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(s.Len())); err != nil {
		return fmt.Errorf("hashset: writing key count: %w", err)
	}
	var encErr error
	s.ForEach(func(key K) {
		if encErr != nil {
			return
		}
		if err := keyCodec.Encode(w, key); err != nil {
			encErr = fmt.Errorf("hashset: encoding key: %w", err)
		}
	})
	return encErr
}

// Parse reads a stream written by Serialize and inserts every key into s.
// It does not clear s first.
func (s *Set[K]) Parse(r io.Reader, keyCodec codec.Codec[K]) error {
	var nKeys uint64
	if err := binary.Read(r, binary.LittleEndian, &nKeys); err != nil {
		return fmt.Errorf("hashset: reading key count: %w", err)
	}
	s.Reserve(s.Len() + int(nKeys))
	for i := uint64(0); i < nKeys; i++ {
		key, err := keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("hashset: decoding key %d/%d: %w", i, nKeys, err)
		}
		s.Set(key)
	}
	return nil
}
