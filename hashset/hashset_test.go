// Copyright (c) 2020 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashset

import (
	"bytes"
	"testing"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/stretchr/testify/require"
)

func intEqual(a, b int) bool { return a == b }
func hashInt(i int) uint64   { return uint64(i) }

func newIntSet() *Set[int] {
	return New[int](hashInt, intEqual)
}

func TestSetAddHasUnset(t *testing.T) {
	s := newIntSet()
	s.Set(1)
	s.Set(2)
	require.Equal(t, 2, s.Len())
	require.True(t, s.Has(1))
	require.True(t, s.Has(2))
	require.False(t, s.Has(3))

	s.Unset(1)
	require.False(t, s.Has(1))
	require.Equal(t, 1, s.Len())
}

func TestSetReentrantIsNoop(t *testing.T) {
	s := newIntSet()
	s.Set(1)
	s.Set(1)
	s.Set(1)
	require.Equal(t, 1, s.Len())
}

func TestSetClearAndShrink(t *testing.T) {
	s := newIntSet()
	for i := 0; i < 50; i++ {
		s.Set(i)
	}
	s.ClearAndShrink()
	require.Equal(t, 0, s.Len())
}

func TestSetForEach(t *testing.T) {
	s := newIntSet()
	want := map[int]bool{}
	for i := 0; i < 100; i++ {
		s.Set(i)
		want[i] = true
	}
	got := map[int]bool{}
	s.ForEach(func(key int) { got[key] = true })
	require.Equal(t, want, got)
}

func TestSetSerializeParseRoundTrip(t *testing.T) {
	src := newIntSet()
	src.Set(0)
	src.Set(1)
	src.Set(2)

	var buf bytes.Buffer
	var keyCodec codec.Gob[int]
	require.NoError(t, src.Serialize(&buf, keyCodec))

	dst := newIntSet()
	require.NoError(t, dst.Parse(&buf, keyCodec))
	require.Equal(t, 3, dst.Len())
	require.True(t, dst.Has(0))
	require.True(t, dst.Has(1))
	require.True(t, dst.Has(2))
}
