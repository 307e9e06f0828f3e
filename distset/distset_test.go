// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package distset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/transport"
	"github.com/aristanetworks/parallelmap/transport/local"
	"github.com/stretchr/testify/require"
)

func hashInt(i int) uint64   { return uint64(i) }
func intEqual(a, b int) bool { return a == b }

// brokenTransport wraps a working transport.Transport but fails every
// Send, simulating the messaging failure spec section 7 treats as fatal
// mid-collective.
type brokenTransport struct {
	transport.Transport
}

func (brokenTransport) Send(ctx context.Context, dest, tag int, data []byte) error {
	return errors.New("simulated send failure")
}

func newIntSets(nProcs, threads int) []*Set[int] {
	transports := local.NewGroup(nProcs)
	var keyCodec codec.Gob[int]
	sets := make([]*Set[int], nProcs)
	for rank, tr := range transports {
		cfg := runtime.Config{Rank: rank, NProcs: nProcs, Threads: threads}
		sets[rank] = New[int](cfg, tr, hashInt, intEqual, keyCodec)
	}
	return sets
}

// TestDistSetSyncShufflesKeysToTheirOwningRank mirrors the distmap
// variant: every rank inserts keys owned by the next rank, and after Sync
// every key should be present only on its owning rank.
func TestDistSetSyncShufflesKeysToTheirOwningRank(t *testing.T) {
	const nProcs = 4
	const nKeys = 2000
	sets := newIntSets(nProcs, 2)

	var wg sync.WaitGroup
	errs := make([]error, nProcs)
	for rank, s := range sets {
		rank, s := rank, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := (rank + 1) % nProcs; k < nKeys; k += nProcs {
				s.AsyncSet(0, k)
			}
			errs[rank] = s.Sync(context.Background())
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}

	for k := 0; k < nKeys; k++ {
		owner := k % nProcs
		for rank, s := range sets {
			has, err := s.HasLocal(k)
			if rank == owner {
				require.NoError(t, err)
				require.True(t, has)
			} else {
				require.Error(t, err)
			}
		}
	}
}

// TestDistSetSyncBarriersBetweenEveryExchange exercises the extra barrier
// distset.Set.Sync performs that distmap.Map.Sync does not: with more than
// two ranks, Sync must still complete and every rank must end up with its
// own share.
func TestDistSetSyncBarriersBetweenEveryExchange(t *testing.T) {
	const nProcs = 5
	sets := newIntSets(nProcs, 1)

	var wg sync.WaitGroup
	errs := make([]error, nProcs)
	wg.Add(nProcs)
	for rank, s := range sets {
		rank, s := rank, s
		go func() {
			defer wg.Done()
			for k := rank; k < 500; k += nProcs {
				s.AsyncSet(0, k)
			}
			errs[rank] = s.Sync(context.Background())
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}

	count := 0
	for _, s := range sets {
		s.ForEach(func(key int) { count++ })
	}
	require.Equal(t, 500, count)
}

// TestDistSetForEachSerialSeesEveryRanksShard confirms every rank ends up
// with a replicated view of the whole distributed set.
func TestDistSetForEachSerialSeesEveryRanksShard(t *testing.T) {
	const nProcs = 3
	sets := newIntSets(nProcs, 1)

	var wg sync.WaitGroup
	errs := make([]error, nProcs)
	wg.Add(nProcs)
	for rank, s := range sets {
		rank, s := rank, s
		go func() {
			defer wg.Done()
			for k := rank; k < 90; k += nProcs {
				s.AsyncSet(0, k)
			}
			errs[rank] = s.Sync(context.Background())
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}

	var mu sync.Mutex
	seen := map[int]int{}
	errs = make([]error, nProcs)
	wg.Add(nProcs)
	for rank, s := range sets {
		rank, s := rank, s
		go func() {
			defer wg.Done()
			errs[rank] = s.ForEachSerial(context.Background(), func(key int) {
				mu.Lock()
				seen[key]++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}
	require.Len(t, seen, 90)
	for key, count := range seen {
		require.Equalf(t, nProcs, count, "key %d", key)
	}
}

// TestDistSetSyncFatalsOnMessagingFailure mirrors the distmap test: a
// transport failure mid-shuffle must reach the logger's fatal path rather
// than surface as an ordinary error.
func TestDistSetSyncFatalsOnMessagingFailure(t *testing.T) {
	const nProcs = 2
	transports := local.NewGroup(nProcs)
	var keyCodec codec.Gob[int]

	s0 := New[int](runtime.Config{Rank: 0, NProcs: nProcs, Threads: 1}, brokenTransport{transports[0]}, hashInt, intEqual, keyCodec)
	fake0 := &logging.Fake{}
	s0.SetLogger(fake0)

	s1 := New[int](runtime.Config{Rank: 1, NProcs: nProcs, Threads: 1}, transports[1], hashInt, intEqual, keyCodec)
	fake1 := &logging.Fake{}
	s1.SetLogger(fake1)

	// Key 1 is owned by rank 1; rank 0 must ship it to rank 1 during Sync,
	// which will fail to send.
	s0.AsyncSet(0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s0.Sync(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = s1.Sync(ctx)
	}()
	wg.Wait()

	require.Greater(t, fake0.NFatals(), 0)
}
