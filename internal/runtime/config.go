// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package runtime holds the process-wide singletons every container in
// this module is built on: the immutable (rank, process count, thread
// count) configuration, and the thread pool that drives parallel loops.
// It is captured once at container construction rather than read lazily
// from globals, matching the struct-literal configuration style goarista
// uses for its clients (see kafka.NewClient).
package runtime

// Config is the immutable per-container configuration captured at
// construction. Rank and NProcs describe this process's place among its
// distributed peers; Threads is the shared-memory parallelism degree used
// to size segmented tables and drive ThreadPool loops.
type Config struct {
	// Rank is this process's 0-based index among its NProcs peers.
	Rank int
	// NProcs is the total number of cooperating processes. 1 for a
	// single-process (non-distributed) container.
	NProcs int
	// Threads is the configured thread count. It never changes for the
	// lifetime of a container built from this Config.
	Threads int
	// Pool runs parallel loops across Threads workers. A nil Pool is
	// replaced with a default errgroup-backed pool sized to Threads the
	// first time a container built from this Config needs one.
	Pool ThreadPool
}

// WithPool returns a copy of c with Pool set, constructing the default
// pool if none was supplied.
func (c Config) WithPool() Config {
	if c.Pool == nil {
		c.Pool = NewPool(c.Threads)
	}
	return c
}

// Single returns the degenerate single-process, single-thread
// configuration. distmap and distset build the per-rank replicas they
// parse during ForEachSerial with it.
func Single() Config {
	return Config{Rank: 0, NProcs: 1, Threads: 1}.WithPool()
}
