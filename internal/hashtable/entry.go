// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

// entry is one bucket record: a key, its caller-supplied hash, and a value
// (unused by the set variant, which instantiates Table[K, struct{}]).
// Unfilled entries never participate in lookup comparison.
type entry[K, V any] struct {
	key    K
	hash   uint64
	value  V
	filled bool
}
