// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import "sort"

// primes is the preselected prime set used to size rehashes. Composite
// bucket counts built from these primes have only large prime factors,
// which destroys periodicities in common integer key patterns.
var primes = []uint64{11, 17, 29, 47, 79, 127, 211, 337, 547, 887, 1433, 2311, 3739, 6053, 9791, 15859}

const (
	lastPrime = uint64(15859)
	bigPrime  = uint64(9791)
)

// nRehashBuckets computes the bucket count to rehash into so that it holds
// at least nBucketsMin buckets, following spec section 4.1: scale up by
// 1.25, repeatedly fold in bigPrime while still above lastPrime, then pick
// the smallest prime at least as large as what remains.
func nRehashBuckets(nBucketsMin uint64) uint64 {
	remaining := nBucketsMin + nBucketsMin/4
	n := uint64(1)
	for remaining > lastPrime {
		remaining /= bigPrime
		n *= bigPrime
	}
	i := sort.Search(len(primes), func(i int) bool { return primes[i] >= remaining })
	if i == len(primes) {
		i = len(primes) - 1
	}
	return n * primes[i]
}
