// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package distmap is the distributed overlay's map facade: it partitions
// keys across cooperating processes by hash (spec section 3), buffering
// remote writes per destination and exchanging them in a bandwidth-
// efficient randomized all-to-all shuffle at Sync (spec section 4.3).
//
// Distributed deletion is out of scope (spec section 9's open question):
// Map exposes no Unset. A caller that needs to remove keys must rebuild
// the map from scratch.
package distmap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/concurrentmap"
	"github.com/aristanetworks/parallelmap/internal/distributed"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/reducer"
	"github.com/aristanetworks/parallelmap/transport"
)

// Map partitions keys of type K across the cooperating processes in t by
// hash, accumulating values of type V concurrently within each process
// via a local shard, and shuffling buffered remote writes between
// processes at Sync. The zero value is not usable; construct with New.
type Map[K, V any] struct {
	cfg   runtime.Config
	t     transport.Transport
	hash  func(K) uint64
	equal func(a, b K) bool

	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]

	local  *concurrentmap.Map[K, V]
	remote []*concurrentmap.Map[K, V] // remote[Rank()] is unused

	logger logging.Logger
	stats  *stats.Stats
}

// New constructs an empty Map. hash must be a pure function of its
// argument; equal must report whether two keys with equal hashes are
// actually the same key. keyCodec and valueCodec serialize the per-
// destination buffers this Map ships across the network during Sync.
func New[K, V any](cfg runtime.Config, t transport.Transport, hash func(K) uint64, equal func(a, b K) bool, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) *Map[K, V] {
	cfg = cfg.WithPool()
	quotientHash := distributed.QuotientHasher(hash, t.NProcs())

	remote := make([]*concurrentmap.Map[K, V], t.NProcs())
	for dest := range remote {
		if dest == t.Rank() {
			continue
		}
		remote[dest] = concurrentmap.New[K, V](cfg, quotientHash, equal)
	}

	return &Map[K, V]{
		cfg:        cfg,
		t:          t,
		hash:       hash,
		equal:      equal,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		local:      concurrentmap.New[K, V](cfg, quotientHash, equal),
		remote:     remote,
		logger:     logging.Default,
	}
}

// SetLogger overrides the logger used by the local shard and every
// remote buffer's balance guard.
func (d *Map[K, V]) SetLogger(l logging.Logger) {
	d.logger = l
	d.local.SetLogger(l)
	for _, r := range d.remote {
		if r != nil {
			r.SetLogger(l)
		}
	}
}

// SetStats attaches the optional metrics sink; see internal/stats.
func (d *Map[K, V]) SetStats(s *stats.Stats) {
	d.stats = s
	d.local.SetStats(s)
	for _, r := range d.remote {
		if r != nil {
			r.SetStats(s)
		}
	}
}

// Rank returns this process's 0-based rank.
func (d *Map[K, V]) Rank() int { return d.t.Rank() }

// NProcs returns the total number of cooperating processes.
func (d *Map[K, V]) NProcs() int { return d.t.NProcs() }

// AsyncSet routes key to its owning rank: the local shard's AsyncSet if
// this rank owns hash(key) mod NProcs(), or this process's buffer for
// the owning rank otherwise. Like concurrentmap.Map.AsyncSet, it never
// blocks: on lock contention it falls back to threadID's write cache.
// Visible to Get/GetLocal/ForEach only after Sync.
func (d *Map[K, V]) AsyncSet(threadID int, key K, value V, reduce reducer.Reducer[V]) {
	dest, quotient := distributed.Partition(d.hash(key), d.t.NProcs())
	if dest == d.t.Rank() {
		d.local.AsyncSetHash(threadID, key, quotient, value, reduce)
		return
	}
	d.remote[dest].AsyncSetHash(threadID, key, quotient, value, reduce)
}

// GetLocal returns the value stored for key if this rank owns it. The
// system does not route queries (spec section 4.3): if hash(key) mod
// NProcs() != Rank(), GetLocal returns an error rather than consulting
// the owning rank.
func (d *Map[K, V]) GetLocal(key K) (V, error) {
	var zero V
	dest, quotient := distributed.Partition(d.hash(key), d.t.NProcs())
	if dest != d.t.Rank() {
		return zero, fmt.Errorf("distmap: key owned by rank %d, not locally cached on rank %d", dest, d.t.Rank())
	}
	return d.local.GetHash(key, quotient, zero), nil
}

// ForEach iterates only the local shard, the keys this rank owns. See
// ForEachSerial for a replicated pass over every rank's shard.
func (d *Map[K, V]) ForEach(handler func(key K, value V)) {
	d.local.ForEach(handler)
}

// Sync performs the distributed shuffle of spec section 4.3: a
// collective every rank must call, in matching order with respect to
// other collectives. For i = 1..NProcs()-1 it drains this rank's buffer
// for a paired destination, exchanges it with the paired source over a
// chunked non-blocking send/receive, and merges what it receives into
// the local shard with reduce. It finishes by flushing the local shard's
// own thread caches. Reduce must be associative and commutative: the
// order values for the same key are combined in is unspecified.
func (d *Map[K, V]) Sync(ctx context.Context, reduce reducer.Reducer[V]) error {
	nProcs := d.t.NProcs()
	if nProcs > 1 {
		perm, err := distributed.Shuffle(ctx, d.t)
		if err != nil {
			d.logger.Fatalf("distmap: sync: broadcasting rank shuffle: %s", err)
			return nil
		}
		self := d.t.Rank()
		s := distributed.Position(perm, self)
		for i := 1; i < nProcs; i++ {
			dest, src := distributed.PairAt(perm, s, i, nProcs)
			if err := d.exchange(ctx, dest, src, reduce); err != nil {
				return err
			}
		}
	}
	d.local.Sync(reduce)
	return nil
}

// exchange drains remote[dest], trades it for whatever src sent us, and
// merges the result into the local shard.
func (d *Map[K, V]) exchange(ctx context.Context, dest, src int, reduce reducer.Reducer[V]) error {
	buf := d.remote[dest]
	buf.Sync(reduce)

	var out bytes.Buffer
	if err := buf.Serialize(&out, d.keyCodec, d.valueCodec); err != nil {
		return fmt.Errorf("distmap: serializing buffer for rank %d: %w", dest, err)
	}
	buf.ClearAndShrink()
	d.stats.AddShuffleBytesSent(out.Len())

	received, err := distributed.ExchangeBytes(ctx, d.t, dest, src, out.Bytes())
	if err != nil {
		// A messaging failure mid-collective is unrecoverable: every other
		// rank is waiting on this exchange too.
		d.logger.Fatalf("distmap: exchanging with rank %d/%d: %s", dest, src, err)
		return nil
	}
	d.stats.AddShuffleBytesRecv(len(received))

	// remote[dest] just drained and cleared; reuse it as scratch space to
	// parse what we received from src, per spec section 4.3 step 2.
	scratch := buf
	if err := scratch.Parse(bytes.NewReader(received), d.keyCodec, d.valueCodec); err != nil {
		return fmt.Errorf("distmap: parsing payload received from rank %d: %w", src, err)
	}
	scratch.ForEach(func(key K, value V) {
		d.local.Set(key, value, reduce)
	})
	scratch.ClearAndShrink()
	return nil
}

// ForEachSerial all-gathers every rank's local shard and iterates all of
// them, in rank order, on every rank: a replicated ordered pass over the
// whole distributed map (spec section 4.3).
func (d *Map[K, V]) ForEachSerial(ctx context.Context, handler func(key K, value V)) error {
	shards, err := d.gatherShards(ctx)
	if err != nil {
		return err
	}
	for _, shard := range shards {
		shard.ForEachSerial(handler)
	}
	return nil
}

func (d *Map[K, V]) gatherShards(ctx context.Context) ([]*concurrentmap.Map[K, V], error) {
	var buf bytes.Buffer
	if err := d.local.Serialize(&buf, d.keyCodec, d.valueCodec); err != nil {
		return nil, fmt.Errorf("distmap: serializing local shard: %w", err)
	}
	payloads, err := d.t.AllGather(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("distmap: all-gathering local shards: %w", err)
	}
	shards := make([]*concurrentmap.Map[K, V], len(payloads))
	for rank, payload := range payloads {
		shard := concurrentmap.New[K, V](runtime.Single(), d.hash, d.equal)
		if err := shard.Parse(bytes.NewReader(payload), d.keyCodec, d.valueCodec); err != nil {
			return nil, fmt.Errorf("distmap: parsing rank %d's gathered shard: %w", rank, err)
		}
		shards[rank] = shard
	}
	return shards, nil
}

// MapReduce is the distributed analog of fold (spec section 4.3): per
// thread it accumulates mapper(key, value) over this rank's local shard
// into a thread-local V2 combined with reduce, combines the thread
// accumulators with reduce, all-gathers every rank's accumulator, and combines them
// with reduce into the final V2, replicated on every rank. reduce must
// be associative and commutative. v2Codec serializes the accumulator for
// the all-gather.
func MapReduce[K, V, V2 any](ctx context.Context, d *Map[K, V], mapper func(key K, value V) V2, reduce reducer.Reducer[V2], zero V2, v2Codec codec.Codec[V2]) (V2, error) {
	type pair struct {
		key   K
		value V
	}
	var pairs []pair
	d.local.ForEach(func(key K, value V) {
		pairs = append(pairs, pair{key, value})
	})

	nThreads := d.cfg.Pool.NThreads()
	threadAccum := make([]V2, nThreads)
	for i := range threadAccum {
		threadAccum[i] = zero
	}
	if len(pairs) > 0 {
		err := d.cfg.Pool.ParallelFor(len(pairs), func(threadID, i int) error {
			reduce(&threadAccum[threadID], mapper(pairs[i].key, pairs[i].value))
			return nil
		})
		if err != nil {
			return zero, fmt.Errorf("distmap: mapreduce: mapping local shard: %w", err)
		}
	}

	local := zero
	for _, v := range threadAccum {
		reduce(&local, v)
	}

	var buf bytes.Buffer
	if err := v2Codec.Encode(&buf, local); err != nil {
		return zero, fmt.Errorf("distmap: mapreduce: encoding local accumulator: %w", err)
	}
	payloads, err := d.t.AllGather(ctx, buf.Bytes())
	if err != nil {
		return zero, fmt.Errorf("distmap: mapreduce: all-gathering accumulators: %w", err)
	}

	final := zero
	for rank, payload := range payloads {
		v, err := v2Codec.Decode(bytes.NewReader(payload))
		if err != nil {
			return zero, fmt.Errorf("distmap: mapreduce: decoding rank %d's accumulator: %w", rank, err)
		}
		reduce(&final, v)
	}
	return final, nil
}
