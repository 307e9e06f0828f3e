// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ThreadPool runs parallel loops across a fixed number of worker threads,
// each iteration dispatched with its 0-based worker id. It is the
// consumed thread-pool primitive: query of configured thread count, and a
// parallel for-loop with dynamic chunked scheduling.
type ThreadPool interface {
	// NThreads returns the configured thread count.
	NThreads() int
	// ParallelFor dispatches n iterations of body across the pool's
	// threads, each call receiving its worker id in [0, NThreads()). No
	// two iterations running concurrently ever receive the same worker
	// id, so callers may use it to index a per-thread resource (e.g. a
	// write cache) without locking. It blocks until every iteration has
	// completed or one returns an error, in which case the first error
	// is returned and any in-flight iterations are allowed to finish.
	ParallelFor(n int, body func(threadID, i int) error) error
	// DynamicFor is like ParallelFor but dispatches work in chunks of
	// approximately chunkSize iterations, so that threads that finish
	// early steal additional chunks instead of sitting idle (dynamic
	// scheduling over a static interval split).
	DynamicFor(n, chunkSize int, body func(threadID, i int) error) error
}

// pool is the default ThreadPool: each loop runs one errgroup goroutine
// per chunk, with a weighted semaphore keeping at most NThreads() chunks
// in flight at once.
type pool struct {
	nThreads int
}

// NewPool constructs a ThreadPool with nThreads workers. nThreads<1 is
// treated as 1.
func NewPool(nThreads int) ThreadPool {
	if nThreads < 1 {
		nThreads = 1
	}
	return &pool{nThreads: nThreads}
}

func (p *pool) NThreads() int { return p.nThreads }

func (p *pool) ParallelFor(n int, body func(threadID, i int) error) error {
	return p.DynamicFor(n, ceilDiv(n, p.nThreads), body)
}

// DynamicFor splits [0, n) into chunks of chunkSize, hands each chunk to
// whichever worker goroutine next acquires the semaphore, and draws that
// goroutine's threadID from a free-list sized to NThreads so that two
// concurrently running chunks never share a thread id, regardless of the
// order in which earlier chunks happen to finish.
func (p *pool) DynamicFor(n, chunkSize int, body func(threadID, i int) error) error {
	if n <= 0 {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	sem := semaphore.NewWeighted(int64(p.nThreads))
	freeThreadIDs := make(chan int, p.nThreads)
	for id := 0; id < p.nThreads; id++ {
		freeThreadIDs <- id
	}
	g, ctx := errgroup.WithContext(context.Background())

	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		threadID := <-freeThreadIDs
		start, end := start, end
		g.Go(func() error {
			defer func() { freeThreadIDs <- threadID }()
			defer sem.Release(1)
			for i := start; i < end; i++ {
				if err := body(threadID, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		return n
	}
	return (n + d - 1) / d
}
