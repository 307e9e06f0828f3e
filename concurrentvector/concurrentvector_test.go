// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package concurrentvector

import (
	"sync"
	"testing"

	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/reducer"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	v := New[int](runtime.Config{Threads: 4}, 100, 0)
	require.Equal(t, 100, v.Len())
	v.Set(5, 42, reducer.Overwrite[int])
	require.Equal(t, 42, v.Get(5))
}

func TestInitialValue(t *testing.T) {
	v := New[int](runtime.Config{Threads: 4}, 10, 7)
	for i := 0; i < 10; i++ {
		require.Equal(t, 7, v.Get(i))
	}
}

func TestConcurrentSumAcrossGoroutines(t *testing.T) {
	v := New[int](runtime.Config{Threads: 8}, 16, 0)
	var wg sync.WaitGroup
	wg.Add(8)
	for g := 0; g < 8; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 16; i++ {
				for k := 0; k < 100; k++ {
					v.Set(i, 1, reducer.Sum[int])
				}
			}
		}()
	}
	wg.Wait()
	for i := 0; i < 16; i++ {
		require.Equal(t, 800, v.Get(i))
	}
}

func TestForEachSerialVisitsEveryIndexInOrder(t *testing.T) {
	v := New[int](runtime.Config{Threads: 4}, 50, 0)
	for i := 0; i < 50; i++ {
		v.Set(i, i*i, reducer.Overwrite[int])
	}
	var got []int
	v.ForEachSerial(func(i int, value int) {
		require.Equal(t, len(got), i)
		got = append(got, value)
	})
	require.Len(t, got, 50)
	for i, value := range got {
		require.Equal(t, i*i, value)
	}
}
