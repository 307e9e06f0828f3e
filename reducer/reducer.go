// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package reducer holds the named combiner functions shared by every
// container in this module. A Reducer is applied whenever two writes land
// on the same key: the concurrent and distributed overlays make no
// ordering guarantee across segments or ranks, so a Reducer must be
// associative and commutative for its result to be deterministic.
package reducer

import "golang.org/x/exp/constraints"

// Reducer combines an incoming value into acc in place. It must not retain
// incoming beyond the call.
type Reducer[V any] func(acc *V, incoming V)

// Keep discards incoming; the first writer to a key wins. Used by parse
// paths, where re-inserting an already-seen key should not perturb it.
func Keep[V any](acc *V, incoming V) {}

// Overwrite replaces acc with incoming; the last writer wins.
// concurrentvector.Vector.Set uses it when passed a nil reducer.
func Overwrite[V any](acc *V, incoming V) { *acc = incoming }

// Sum adds incoming into acc. For numeric V it is associative and
// commutative, so it is safe to use across the distributed shuffle; for
// string V it concatenates, which is associative but not commutative.
func Sum[V constraints.Ordered](acc *V, incoming V) { *acc += incoming }

// Min keeps the smaller of acc and incoming. Associative and commutative.
func Min[V constraints.Ordered](acc *V, incoming V) {
	if incoming < *acc {
		*acc = incoming
	}
}

// Max keeps the larger of acc and incoming. Associative and commutative.
func Max[V constraints.Ordered](acc *V, incoming V) {
	if incoming > *acc {
		*acc = incoming
	}
}
