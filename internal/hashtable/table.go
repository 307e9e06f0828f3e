// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package hashtable implements the linear-probing hash base shared by the
// map and set facades: a segment of a concurrent table, or the whole of a
// single-threaded one. Every operation takes the caller's precomputed
// 64-bit hash rather than computing it, so the concurrent overlay can reuse
// it for segment selection and the distributed overlay can reuse the
// quotient hash/P without rehashing.
package hashtable

import (
	"math"

	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/reducer"
)

const (
	// DefaultMaxLoadFactor is the fraction of buckets that may be filled
	// before a rehash is triggered on insert.
	DefaultMaxLoadFactor = 0.7

	// InitialBuckets is the bucket count of a freshly constructed table.
	InitialBuckets = 11

	// MaxProbes is the probe-chain length that triggers the balance guard.
	MaxProbes = 64
)

// Table is a linear-probing hash table keyed by K with externally-supplied
// 64-bit hashes. The zero value is not usable; construct with New.
type Table[K, V any] struct {
	MaxLoadFactor float64

	nKeys   int
	buckets []entry[K, V]

	equal  func(a, b K) bool
	logger logging.Logger
	stats  *stats.Stats

	unbalancedWarned bool
}

// New constructs an empty table with 11 buckets. equal must report whether
// two keys with (by construction) the same hash are actually equal.
func New[K, V any](equal func(a, b K) bool) *Table[K, V] {
	return &Table[K, V]{
		MaxLoadFactor: DefaultMaxLoadFactor,
		buckets:       make([]entry[K, V], InitialBuckets),
		equal:         equal,
		logger:        logging.Default,
	}
}

// SetLogger overrides the logger used for the balance guard's warning and
// fatal paths. The zero value keeps using logging.Default.
func (t *Table[K, V]) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.Default
	}
	t.logger = l
}

// SetStats attaches the optional metrics sink incremented on every
// rehash. A nil Stats (the default) costs nothing on the hot path.
func (t *Table[K, V]) SetStats(s *stats.Stats) {
	t.stats = s
}

// Len returns the number of keys currently stored.
func (t *Table[K, V]) Len() int { return t.nKeys }

// NBuckets returns the current bucket count.
func (t *Table[K, V]) NBuckets() int { return len(t.buckets) }

// Reserve grows the table, if needed, so that it can hold nKeysMin keys
// without triggering a load-factor rehash.
func (t *Table[K, V]) Reserve(nKeysMin int) {
	t.ReserveBuckets(int(float64(nKeysMin) / t.MaxLoadFactor))
}

// ReserveBuckets grows the table, if needed, to at least nBucketsMin
// buckets. It never shrinks; see ClearAndShrink for that.
func (t *Table[K, V]) ReserveBuckets(nBucketsMin int) {
	if nBucketsMin <= len(t.buckets) {
		return
	}
	t.rehash(int(nRehashBuckets(uint64(nBucketsMin))))
}

func (t *Table[K, V]) rehash(nNewBuckets int) {
	t.stats.IncRehash()
	newBuckets := make([]entry[K, V], nNewBuckets)
	for i := range t.buckets {
		e := &t.buckets[i]
		if !e.filled {
			continue
		}
		placeDuringRehash(newBuckets, e)
	}
	t.buckets = newBuckets
}

// placeDuringRehash inserts e into buckets by linear probing. It never
// finds a match (the source table had no duplicate keys), so it always
// lands in the first empty slot found.
func placeDuringRehash[K, V any](buckets []entry[K, V], e *entry[K, V]) {
	n := uint64(len(buckets))
	bucket := e.hash % n
	for i := uint64(0); i < n; i++ {
		if !buckets[bucket].filled {
			buckets[bucket] = *e
			return
		}
		bucket = (bucket + 1) % n
	}
}

// checkBalance implements the balance guard (spec section 4.1): a probe
// chain longer than MaxProbes is either an unlucky but survivable skew, or
// evidence the hash function is unusable for this key distribution.
func (t *Table[K, V]) checkBalance(nProbes int) {
	if nProbes <= MaxProbes {
		return
	}
	nBuckets := len(t.buckets)
	if t.nKeys < nBuckets/4 && !t.unbalancedWarned {
		t.logger.Warning("hash container is unbalanced")
		t.unbalancedWarned = true
	}
	if t.nKeys < nBuckets/16 {
		t.logger.Fatal("hash container is severely unbalanced")
		return
	}
	t.ReserveBuckets(int(math.Ceil(float64(nBuckets) * 1.6)))
}

// Set inserts value for key, or combines it into the existing value via
// reduce if key is already present.
func (t *Table[K, V]) Set(key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	n := uint64(len(t.buckets))
	bucket := hash % n
	nProbes := 0
	for uint64(nProbes) < n {
		e := &t.buckets[bucket]
		if !e.filled {
			*e = entry[K, V]{key: key, hash: hash, value: value, filled: true}
			t.nKeys++
			if float64(t.nKeys) >= float64(len(t.buckets))*t.MaxLoadFactor {
				t.ReserveBuckets(int(math.Ceil(float64(len(t.buckets)) * 1.4)))
			}
			break
		}
		if e.hash == hash && t.equal(e.key, key) {
			reduce(&e.value, value)
			break
		}
		nProbes++
		bucket = (bucket + 1) % n
	}
	t.checkBalance(nProbes)
}

// Get returns the value for key, or def if it is absent.
func (t *Table[K, V]) Get(key K, hash uint64, def V) V {
	if e := t.find(key, hash); e != nil {
		return e.value
	}
	return def
}

// Has reports whether key is present.
func (t *Table[K, V]) Has(key K, hash uint64) bool {
	return t.find(key, hash) != nil
}

func (t *Table[K, V]) find(key K, hash uint64) *entry[K, V] {
	n := uint64(len(t.buckets))
	bucket := hash % n
	for i := uint64(0); i < n; i++ {
		e := &t.buckets[bucket]
		if !e.filled {
			return nil
		}
		if e.hash == hash && t.equal(e.key, key) {
			return e
		}
		bucket = (bucket + 1) % n
	}
	return nil
}

// Unset removes key, if present, backward-shifting later entries on its
// probe chain to keep the open-addressing contiguity invariant intact.
func (t *Table[K, V]) Unset(key K, hash uint64) {
	n := uint64(len(t.buckets))
	bucket := hash % n
	for i := uint64(0); i < n; i++ {
		e := &t.buckets[bucket]
		if !e.filled {
			return
		}
		if e.hash == hash && t.equal(e.key, key) {
			t.buckets[bucket] = entry[K, V]{}
			t.nKeys--
			t.fillHole(bucket)
			return
		}
		bucket = (bucket + 1) % n
	}
}

// fillHole walks forward from hole, moving any entry whose home bucket lies
// on the cyclic arc between hole and its current position back into the
// hole, until a natural empty bucket ends the probe chain.
func (t *Table[K, V]) fillHole(hole uint64) {
	n := uint64(len(t.buckets))
	swap := (hole + 1) % n
	for t.buckets[swap].filled {
		origin := t.buckets[swap].hash % n
		if onCyclicArc(origin, hole, swap, n) {
			t.buckets[hole] = t.buckets[swap]
			t.buckets[swap] = entry[K, V]{}
			hole = swap
		}
		swap = (swap + 1) % n
	}
}

// onCyclicArc reports whether hole lies on the arc walking forward from
// origin to swap (inclusive of origin, exclusive of swap), modulo n. The
// three disjuncts cover the three possible cyclic orderings of the triple.
func onCyclicArc(origin, hole, swap, _ uint64) bool {
	return (swap < origin && origin <= hole) ||
		(origin <= hole && hole < swap) ||
		(hole < swap && swap < origin)
}

// Clear empties the table without shrinking its bucket array.
func (t *Table[K, V]) Clear() {
	if t.nKeys == 0 {
		return
	}
	for i := range t.buckets {
		t.buckets[i] = entry[K, V]{}
	}
	t.nKeys = 0
}

// ClearAndShrink empties the table and resets its bucket array to the
// initial size. This is the only way a table shrinks.
func (t *Table[K, V]) ClearAndShrink() {
	t.buckets = make([]entry[K, V], InitialBuckets)
	t.nKeys = 0
	t.unbalancedWarned = false
}

// ForEach calls handler for every filled entry, in physical bucket order.
// Order is unspecified and not stable across rehashes.
func (t *Table[K, V]) ForEach(handler func(key K, hash uint64, value V)) {
	if t.nKeys == 0 {
		return
	}
	for i := range t.buckets {
		e := &t.buckets[i]
		if e.filled {
			handler(e.key, e.hash, e.value)
		}
	}
}
