// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package distrange implements the strided (process x thread) interval
// iterator of spec section 4.5: a helper for splitting an embarrassingly
// parallel range of work across cooperating processes and, within each
// process, across a thread pool with dynamic chunking.
package distrange

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aristanetworks/glog"
	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/distmap"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/reducer"
	"github.com/aristanetworks/parallelmap/transport"
)

// chunkSize is the approximate dynamic chunk size spec section 4.5
// specifies for ForEach/MapReduce's inner thread-pool loop.
const chunkSize = 5

// Range represents the strided half-open interval [start, end) with step
// inc, split across NProcs() processes and, within each process's share,
// across a thread pool. The zero value is not usable; construct with
// New.
type Range struct {
	t    transport.Transport
	pool runtime.ThreadPool

	start, end, inc int
}

// New constructs a Range over [start, end) with step inc.
func New(cfg runtime.Config, t transport.Transport, start, end, inc int) *Range {
	cfg = cfg.WithPool()
	return &Range{t: t, pool: cfg.Pool, start: start, end: end, inc: inc}
}

// values returns, in order, every value this rank owns:
// start + inc*(Rank() + k*NProcs()) for k = 0, 1, ….
func (r *Range) values() []int {
	nProcs := r.t.NProcs()
	stride := r.inc * nProcs
	var values []int
	v := r.start + r.inc*r.t.Rank()
	if r.inc > 0 {
		for ; v < r.end; v += stride {
			values = append(values, v)
		}
	} else if r.inc < 0 {
		for ; v > r.end; v += stride {
			values = append(values, v)
		}
	}
	return values
}

// ForEach dispatches handler for every value this rank owns, across the
// thread pool with dynamic chunking of approximately chunkSize values
// per chunk (spec section 4.5). If verbose, thread 0 logs progress at
// 10%-granularity of this rank's share.
func (r *Range) ForEach(handler func(threadID, value int) error, verbose bool) error {
	values := r.values()
	n := len(values)
	if n == 0 {
		return nil
	}

	tenth := n / 10
	if tenth == 0 {
		tenth = 1
	}

	return r.pool.DynamicFor(n, chunkSize, func(threadID, i int) error {
		if err := handler(threadID, values[i]); err != nil {
			return err
		}
		if verbose && threadID == 0 && (i+1)%tenth == 0 {
			glog.Infof("distrange: rank %d: %d%% done", r.t.Rank(), 100*(i+1)/n)
		}
		return nil
	})
}

// MapReduce folds this rank's share of the range through mapper,
// thread-accumulates with reduce into a V2, combines the thread
// accumulators with reduce, all-gathers every rank's accumulator, and combines them with reduce
// into the final V2, replicated on every rank (spec section 4.5's fold,
// mirroring distmap.MapReduce). reduce must be associative and
// commutative. v2Codec serializes the accumulator for the all-gather.
func MapReduce[V2 any](ctx context.Context, r *Range, mapper func(value int) V2, reduce reducer.Reducer[V2], zero V2, v2Codec codec.Codec[V2]) (V2, error) {
	values := r.values()

	threadAccum := make([]V2, r.pool.NThreads())
	for i := range threadAccum {
		threadAccum[i] = zero
	}
	if len(values) > 0 {
		err := r.pool.DynamicFor(len(values), chunkSize, func(threadID, i int) error {
			reduce(&threadAccum[threadID], mapper(values[i]))
			return nil
		})
		if err != nil {
			return zero, fmt.Errorf("distrange: mapreduce: mapping local share: %w", err)
		}
	}

	local := zero
	for _, v := range threadAccum {
		reduce(&local, v)
	}

	var buf bytes.Buffer
	if err := v2Codec.Encode(&buf, local); err != nil {
		return zero, fmt.Errorf("distrange: mapreduce: encoding local accumulator: %w", err)
	}
	payloads, err := r.t.AllGather(ctx, buf.Bytes())
	if err != nil {
		return zero, fmt.Errorf("distrange: mapreduce: all-gathering accumulators: %w", err)
	}

	final := zero
	for rank, payload := range payloads {
		v, err := v2Codec.Decode(bytes.NewReader(payload))
		if err != nil {
			return zero, fmt.Errorf("distrange: mapreduce: decoding rank %d's accumulator: %w", rank, err)
		}
		reduce(&final, v)
	}
	return final, nil
}

// MapReduceInto is the (mapper, reducer, DistributedMap) variant of spec
// section 4.5: it calls mapper for every value this rank owns, AsyncSets
// each emitted (key, value) pair into dm, and Syncs dm once this rank has
// finished emitting. Every rank must call it, since dm.Sync is a
// collective.
func MapReduceInto[K, V any](ctx context.Context, r *Range, dm *distmap.Map[K, V], mapper func(value int) (K, V), reduce reducer.Reducer[V]) error {
	values := r.values()
	if len(values) > 0 {
		err := r.pool.DynamicFor(len(values), chunkSize, func(threadID, i int) error {
			key, value := mapper(values[i])
			dm.AsyncSet(threadID, key, value, reduce)
			return nil
		})
		if err != nil {
			return fmt.Errorf("distrange: mapreduce into distmap: %w", err)
		}
	}
	return dm.Sync(ctx, reduce)
}
