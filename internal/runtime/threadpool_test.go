// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package runtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParallelForVisitsEveryIndexExactlyOnce(t *testing.T) {
	p := NewPool(4)
	var mu sync.Mutex
	seen := map[int]int{}
	err := p.ParallelFor(1000, func(threadID, i int) error {
		mu.Lock()
		seen[i]++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1000)
	for i, count := range seen {
		require.Equalf(t, 1, count, "index %d visited %d times", i, count)
	}
}

func TestParallelForThreadIDWithinRange(t *testing.T) {
	p := NewPool(4)
	var mu sync.Mutex
	ids := map[int]bool{}
	err := p.ParallelFor(100, func(threadID, i int) error {
		mu.Lock()
		ids[threadID] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	for id := range ids {
		require.GreaterOrEqual(t, id, 0)
		require.Less(t, id, 4)
	}
}

func TestParallelForPropagatesFirstError(t *testing.T) {
	p := NewPool(4)
	boom := errors.New("boom")
	err := p.ParallelFor(50, func(threadID, i int) error {
		if i == 10 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
}

func TestDynamicForRespectsChunkSize(t *testing.T) {
	p := NewPool(2)
	var mu sync.Mutex
	seen := map[int]bool{}
	threadOf := map[int]int{}
	err := p.DynamicFor(23, 5, func(threadID, i int) error {
		mu.Lock()
		seen[i] = true
		threadOf[i] = threadID
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 23)
	for i := 0; i < 23; i++ {
		// Every index of a 5-wide chunk runs under its chunk's threadID.
		require.Equalf(t, threadOf[i-i%5], threadOf[i], "index %d", i)
	}
}

func TestParallelForZeroIterationsIsNoop(t *testing.T) {
	p := NewPool(4)
	called := false
	err := p.ParallelFor(0, func(threadID, i int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestNewPoolClampsBelowOne(t *testing.T) {
	p := NewPool(0)
	require.Equal(t, 1, p.NThreads())
}

// TestDynamicForThreadIDsAreExclusive drives many more chunks than
// threads through a pool with a small, uneven chunk size, so chunks
// finish out of launch order, and asserts no two bodies ever observe the
// same threadID while both are in flight. Callers such as concurrentmap
// rely on this to index a per-thread cache without locking.
func TestDynamicForThreadIDsAreExclusive(t *testing.T) {
	const nThreads = 4
	p := NewPool(nThreads)

	var mu sync.Mutex
	inFlight := map[int]bool{}

	err := p.DynamicFor(500, 3, func(threadID, i int) error {
		mu.Lock()
		if inFlight[threadID] {
			mu.Unlock()
			t.Fatalf("threadID %d already in flight for index %d", threadID, i)
		}
		inFlight[threadID] = true
		mu.Unlock()

		// Vary the work so chunks do not finish in launch order.
		busyWork((i % 7) + 1)

		mu.Lock()
		inFlight[threadID] = false
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
}

func busyWork(n int) {
	x := 0
	for i := 0; i < n*1000; i++ {
		x += i
	}
	_ = x
}
