// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package segmented

import (
	"bytes"
	"sync"
	"testing"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/reducer"
	"github.com/stretchr/testify/require"
)

func hashInt(i int) uint64   { return uint64(i) }
func intEqual(a, b int) bool { return a == b }

func newIntTable(threads int) *Table[int, int] {
	return New[int, int](runtime.Config{Threads: threads}, hashInt, intEqual)
}

func TestSegmentCountIsPowerOfTwoAtLeastFourThreads(t *testing.T) {
	tbl := newIntTable(3)
	require.Equal(t, 16, tbl.NSegments())
}

func TestSetAndGet(t *testing.T) {
	tbl := newIntTable(4)
	tbl.Set(1, hashInt(1), 100, reducer.Overwrite[int])
	require.Equal(t, 100, tbl.Get(1, hashInt(1), -1))
	require.True(t, tbl.Has(1, hashInt(1)))
}

func TestAsyncSetFallsBackToCacheUnderContention(t *testing.T) {
	tbl := newIntTable(2)
	seg := tbl.segmentFor(hashInt(1))
	seg.mu.Lock()
	tbl.AsyncSet(0, 1, hashInt(1), 42, reducer.Overwrite[int])
	seg.mu.Unlock()

	require.False(t, tbl.Has(1, hashInt(1)), "value should be cached, not yet visible in the segment")
	require.Equal(t, 42, tbl.caches[0].Get(1, hashInt(1), -1))
}

func TestSyncDrainsCachesIntoSegments(t *testing.T) {
	tbl := newIntTable(4)
	pool := runtime.NewPool(4)
	for i := 0; i < 100; i++ {
		tbl.caches[i%4].Set(i, hashInt(i), i*i, reducer.Overwrite[int])
	}
	tbl.Sync(pool, reducer.Overwrite[int])

	for i := 0; i < 100; i++ {
		require.Equal(t, i*i, tbl.Get(i, hashInt(i), -1))
		require.Equal(t, 0, tbl.caches[i%4].Len())
	}
}

func TestUnset(t *testing.T) {
	tbl := newIntTable(4)
	tbl.Set(1, hashInt(1), 1, reducer.Overwrite[int])
	tbl.Unset(1, hashInt(1))
	require.False(t, tbl.Has(1, hashInt(1)))
}

func TestClearAndShrink(t *testing.T) {
	tbl := newIntTable(4)
	for i := 0; i < 50; i++ {
		tbl.Set(i, hashInt(i), i, reducer.Overwrite[int])
	}
	tbl.ClearAndShrink()
	var total int
	tbl.ForEach(func(key int, hash uint64, value int) { total++ })
	require.Equal(t, 0, total)
}

func TestForEachVisitsEveryKey(t *testing.T) {
	tbl := newIntTable(4)
	want := map[int]int{}
	for i := 0; i < 500; i++ {
		tbl.Set(i, hashInt(i), i*i, reducer.Overwrite[int])
		want[i] = i * i
	}
	got := map[int]int{}
	tbl.ForEach(func(key int, hash uint64, value int) { got[key] = value })
	require.Equal(t, want, got)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	src := newIntTable(4)
	for i := 0; i < 50; i++ {
		src.Set(i, hashInt(i), i*i, reducer.Overwrite[int])
	}
	var buf bytes.Buffer
	var keyCodec, valCodec codec.Gob[int]
	require.NoError(t, src.Serialize(&buf, keyCodec, valCodec))

	dst := newIntTable(8) // different segment count on purpose
	require.NoError(t, dst.Parse(&buf, keyCodec, valCodec))
	for i := 0; i < 50; i++ {
		require.Equal(t, i*i, dst.Get(i, hashInt(i), -1))
	}
}

func TestConcurrentAsyncSetAcrossThreads(t *testing.T) {
	tbl := newIntTable(8)
	pool := runtime.NewPool(8)
	var wg sync.WaitGroup
	wg.Add(8)
	for thread := 0; thread < 8; thread++ {
		thread := thread
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := thread*1000 + i
				tbl.AsyncSet(thread, key, hashInt(key), 1, reducer.Overwrite[int])
			}
		}()
	}
	wg.Wait()
	tbl.Sync(pool, reducer.Overwrite[int])

	var total int
	tbl.ForEach(func(key int, hash uint64, value int) { total++ })
	require.Equal(t, 8000, total)
}
