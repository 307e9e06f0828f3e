// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package concurrentset

import (
	"bytes"
	"sync"
	"testing"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/stretchr/testify/require"
)

func hashInt(i int) uint64   { return uint64(i) }
func intEqual(a, b int) bool { return a == b }

func newIntSet(threads int) *Set[int] {
	return New[int](runtime.Config{Threads: threads}, hashInt, intEqual)
}

func TestSetHasUnset(t *testing.T) {
	s := newIntSet(4)
	s.Set(1)
	require.True(t, s.Has(1))
	s.Unset(1)
	require.False(t, s.Has(1))
}

func TestAsyncSetThenSync(t *testing.T) {
	s := newIntSet(4)
	var wg sync.WaitGroup
	wg.Add(4)
	for thread := 0; thread < 4; thread++ {
		thread := thread
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.AsyncSet(thread, thread*1000+i)
			}
		}()
	}
	wg.Wait()
	s.Sync()

	count := 0
	s.ForEach(func(key int) { count++ })
	require.Equal(t, 4000, count)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	src := newIntSet(4)
	for i := 0; i < 50; i++ {
		src.Set(i)
	}
	var buf bytes.Buffer
	var keyCodec codec.Gob[int]
	require.NoError(t, src.Serialize(&buf, keyCodec))

	dst := newIntSet(8)
	require.NoError(t, dst.Parse(&buf, keyCodec))
	for i := 0; i < 50; i++ {
		require.True(t, dst.Has(i))
	}
}
