// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package distset is the distributed overlay's set facade, the value-
// less sibling of distmap: it partitions keys across cooperating
// processes by hash and shuffles buffered remote inserts between
// processes at Sync.
//
// Distributed deletion is out of scope (spec section 9's open question):
// Set exposes no Unset.
package distset

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/concurrentset"
	"github.com/aristanetworks/parallelmap/internal/distributed"
	"github.com/aristanetworks/parallelmap/internal/logging"
	"github.com/aristanetworks/parallelmap/internal/runtime"
	"github.com/aristanetworks/parallelmap/internal/stats"
	"github.com/aristanetworks/parallelmap/transport"
)

// Set partitions keys of type K across the cooperating processes in t by
// hash. The zero value is not usable; construct with New.
type Set[K any] struct {
	cfg   runtime.Config
	t     transport.Transport
	hash  func(K) uint64
	equal func(a, b K) bool

	keyCodec codec.Codec[K]

	local  *concurrentset.Set[K]
	remote []*concurrentset.Set[K] // remote[Rank()] is unused

	logger logging.Logger
	stats  *stats.Stats
}

// New constructs an empty Set. hash must be a pure function of its
// argument; equal must report whether two keys with equal hashes are
// actually the same key. keyCodec serializes the per-destination buffers
// this Set ships across the network during Sync.
func New[K any](cfg runtime.Config, t transport.Transport, hash func(K) uint64, equal func(a, b K) bool, keyCodec codec.Codec[K]) *Set[K] {
	cfg = cfg.WithPool()
	quotientHash := distributed.QuotientHasher(hash, t.NProcs())

	remote := make([]*concurrentset.Set[K], t.NProcs())
	for dest := range remote {
		if dest == t.Rank() {
			continue
		}
		remote[dest] = concurrentset.New[K](cfg, quotientHash, equal)
	}

	return &Set[K]{
		cfg:      cfg,
		t:        t,
		hash:     hash,
		equal:    equal,
		keyCodec: keyCodec,
		local:    concurrentset.New[K](cfg, quotientHash, equal),
		remote:   remote,
		logger:   logging.Default,
	}
}

// SetLogger overrides the logger used by the local shard and every
// remote buffer's balance guard.
func (d *Set[K]) SetLogger(l logging.Logger) {
	d.logger = l
	d.local.SetLogger(l)
	for _, r := range d.remote {
		if r != nil {
			r.SetLogger(l)
		}
	}
}

// SetStats attaches the optional metrics sink; see internal/stats.
func (d *Set[K]) SetStats(s *stats.Stats) {
	d.stats = s
	d.local.SetStats(s)
	for _, r := range d.remote {
		if r != nil {
			r.SetStats(s)
		}
	}
}

// Rank returns this process's 0-based rank.
func (d *Set[K]) Rank() int { return d.t.Rank() }

// NProcs returns the total number of cooperating processes.
func (d *Set[K]) NProcs() int { return d.t.NProcs() }

// AsyncSet routes key to its owning rank: the local shard's AsyncSet if
// this rank owns hash(key) mod NProcs(), or this process's buffer for
// the owning rank otherwise. Visible to HasLocal/ForEach only after
// Sync.
func (d *Set[K]) AsyncSet(threadID int, key K) {
	dest, quotient := distributed.Partition(d.hash(key), d.t.NProcs())
	if dest == d.t.Rank() {
		d.local.AsyncSetHash(threadID, key, quotient)
		return
	}
	d.remote[dest].AsyncSetHash(threadID, key, quotient)
}

// HasLocal reports whether key is present if this rank owns it. The
// system does not route queries: if hash(key) mod NProcs() != Rank(),
// HasLocal returns an error rather than consulting the owning rank.
func (d *Set[K]) HasLocal(key K) (bool, error) {
	dest, quotient := distributed.Partition(d.hash(key), d.t.NProcs())
	if dest != d.t.Rank() {
		return false, fmt.Errorf("distset: key owned by rank %d, not locally cached on rank %d", dest, d.t.Rank())
	}
	return d.local.HasHash(key, quotient), nil
}

// ForEach iterates only the local shard, the keys this rank owns. See
// ForEachSerial for a replicated pass over every rank's shard.
func (d *Set[K]) ForEach(handler func(key K)) {
	d.local.ForEach(handler)
}

// Sync performs the distributed shuffle of spec section 4.3. Unlike
// distmap.Map.Sync, it barriers every rank after each paired exchange
// (spec section 4's supplemented feature, preserving the original
// dist_hash_set.h::sync asymmetry with the map variant, which does not
// barrier between exchanges).
func (d *Set[K]) Sync(ctx context.Context) error {
	nProcs := d.t.NProcs()
	if nProcs > 1 {
		perm, err := distributed.Shuffle(ctx, d.t)
		if err != nil {
			d.logger.Fatalf("distset: sync: broadcasting rank shuffle: %s", err)
			return nil
		}
		self := d.t.Rank()
		s := distributed.Position(perm, self)
		for i := 1; i < nProcs; i++ {
			dest, src := distributed.PairAt(perm, s, i, nProcs)
			if err := d.exchange(ctx, dest, src); err != nil {
				return err
			}
			if err := d.t.Barrier(ctx); err != nil {
				d.logger.Fatalf("distset: sync: barrier after exchanging with rank %d/%d: %s", dest, src, err)
				return nil
			}
		}
	}
	d.local.Sync()
	return nil
}

func (d *Set[K]) exchange(ctx context.Context, dest, src int) error {
	buf := d.remote[dest]
	buf.Sync()

	var out bytes.Buffer
	if err := buf.Serialize(&out, d.keyCodec); err != nil {
		return fmt.Errorf("distset: serializing buffer for rank %d: %w", dest, err)
	}
	buf.ClearAndShrink()
	d.stats.AddShuffleBytesSent(out.Len())

	received, err := distributed.ExchangeBytes(ctx, d.t, dest, src, out.Bytes())
	if err != nil {
		// A messaging failure mid-collective is unrecoverable: every other
		// rank is waiting on this exchange too.
		d.logger.Fatalf("distset: exchanging with rank %d/%d: %s", dest, src, err)
		return nil
	}
	d.stats.AddShuffleBytesRecv(len(received))

	scratch := buf
	if err := scratch.Parse(bytes.NewReader(received), d.keyCodec); err != nil {
		return fmt.Errorf("distset: parsing payload received from rank %d: %w", src, err)
	}
	scratch.ForEach(func(key K) {
		d.local.Set(key)
	})
	scratch.ClearAndShrink()
	return nil
}

// ForEachSerial all-gathers every rank's local shard and iterates all of
// them, in rank order, on every rank: a replicated ordered pass over the
// whole distributed set.
func (d *Set[K]) ForEachSerial(ctx context.Context, handler func(key K)) error {
	shards, err := d.gatherShards(ctx)
	if err != nil {
		return err
	}
	for _, shard := range shards {
		shard.ForEachSerial(handler)
	}
	return nil
}

func (d *Set[K]) gatherShards(ctx context.Context) ([]*concurrentset.Set[K], error) {
	var buf bytes.Buffer
	if err := d.local.Serialize(&buf, d.keyCodec); err != nil {
		return nil, fmt.Errorf("distset: serializing local shard: %w", err)
	}
	payloads, err := d.t.AllGather(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("distset: all-gathering local shards: %w", err)
	}
	shards := make([]*concurrentset.Set[K], len(payloads))
	for rank, payload := range payloads {
		shard := concurrentset.New[K](runtime.Single(), d.hash, d.equal)
		if err := shard.Parse(bytes.NewReader(payload), d.keyCodec); err != nil {
			return nil, fmt.Errorf("distset: parsing rank %d's gathered shard: %w", rank, err)
		}
		shards[rank] = shard
	}
	return shards, nil
}
