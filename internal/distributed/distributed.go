// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package distributed holds the partition and rank-shuffle helpers shared
// by distmap and distset: the hash/rank split that routes a key to its
// owning process (spec section 3's partition invariant), and the
// randomized pairing that drives the all-to-all shuffle in spec section
// 4.3.
package distributed

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aristanetworks/parallelmap/transport"
	"golang.org/x/exp/rand"
)

// Partition splits hash into the rank that owns it and the quotient hash
// used for intra-process probing, spec section 3: a key whose hash is h
// belongs to the process whose rank is h mod nProcs, and within that
// process its in-table hash is h / nProcs.
func Partition(hash uint64, nProcs int) (dest int, quotient uint64) {
	n := uint64(nProcs)
	return int(hash % n), hash / n
}

// QuotientHasher wraps hash so that the distributed container's local
// shard and remote buffers, on the Set/Parse paths that hash a key
// themselves, compute hash/nProcs: the same quotient every
// AsyncSetHash/SetHash call threads through explicitly. See spec section
// 9's external-hashing design note.
func QuotientHasher[K any](hash func(K) uint64, nProcs int) func(K) uint64 {
	n := uint64(nProcs)
	return func(k K) uint64 { return hash(k) / n }
}

// Shuffle computes rank 0's random permutation of [0, nProcs) via
// Fisher-Yates seeded from wall-clock time and broadcasts it to every
// rank, spec section 4.3 step 1. Every rank must call it; it is a
// collective.
func Shuffle(ctx context.Context, t transport.Transport) ([]int, error) {
	nProcs := t.NProcs()
	var out []byte
	if t.Rank() == 0 {
		perm := make([]int, nProcs)
		for i := range perm {
			perm[i] = i
		}
		rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
		for i := nProcs - 1; i > 0; i-- {
			j := int(rng.Uint64() % uint64(i+1))
			perm[i], perm[j] = perm[j], perm[i]
		}
		out = encodePermutation(perm)
	}
	received, err := t.Broadcast(ctx, 0, out)
	if err != nil {
		return nil, fmt.Errorf("distributed: broadcasting rank shuffle permutation: %w", err)
	}
	return decodePermutation(received, nProcs), nil
}

// Position returns s such that perm[s] == rank: this rank's position in
// the shuffled order, spec section 4.3 step 1's s = pi^-1(self). perm
// must be a permutation of [0, len(perm)) containing rank exactly once,
// which Shuffle always produces.
func Position(perm []int, rank int) int {
	for i, r := range perm {
		if r == rank {
			return i
		}
	}
	panic("distributed: rank not present in permutation")
}

// PairAt returns the (dest, src) pair rank s exchanges with at step i of
// nProcs-1, spec section 4.3 step 2: dest = perm[(s+i) mod nProcs],
// src = perm[(s+nProcs-i) mod nProcs]. By symmetry, the rank that has
// self as dest at step i is exactly self's src at step i.
func PairAt(perm []int, s, i, nProcs int) (dest, src int) {
	dest = perm[mod(s+i, nProcs)]
	src = perm[mod(s+nProcs-i, nProcs)]
	return dest, src
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

func encodePermutation(perm []int) []byte {
	buf := make([]byte, 8*len(perm))
	for i, v := range perm {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func decodePermutation(buf []byte, nProcs int) []int {
	perm := make([]int, nProcs)
	for i := range perm {
		perm[i] = int(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return perm
}
