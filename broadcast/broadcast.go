// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package broadcast implements spec section 4.4's serialize-then-
// chunked-broadcast and all-gather of arbitrary values: the library's
// only collectives that operate on values outside the hash/concurrent/
// distributed container hierarchy.
package broadcast

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aristanetworks/parallelmap/codec"
	"github.com/aristanetworks/parallelmap/transport"
)

const (
	// broadcastChunkSize is spec section 4.4's ≤1-GiB chunk bound for
	// Broadcast, matching the original's respect for underlying
	// int-count limits on a single collective call.
	broadcastChunkSize = 1 << 30

	// gatherChunkSize is spec section 4.4's ≤1-MiB chunk bound for each
	// of the P per-rank broadcasts Gather performs.
	gatherChunkSize = 1 << 20
)

// Broadcast serializes value with c on root and broadcasts it to every
// rank, in chunks of at most 1 GiB. Every rank, including root, returns
// the same value. Every rank must call Broadcast with the same root; it
// is a collective.
func Broadcast[T any](ctx context.Context, t transport.Transport, root int, c codec.Codec[T], value T) (T, error) {
	var zero T
	var payload []byte
	if t.Rank() == root {
		var buf bytes.Buffer
		if err := c.Encode(&buf, value); err != nil {
			return zero, fmt.Errorf("broadcast: encoding value on root %d: %w", root, err)
		}
		payload = buf.Bytes()
	}
	received, err := broadcastBytes(ctx, t, root, payload, broadcastChunkSize)
	if err != nil {
		return zero, fmt.Errorf("broadcast: %w", err)
	}
	v, err := c.Decode(bytes.NewReader(received))
	if err != nil {
		return zero, fmt.Errorf("broadcast: decoding value broadcast from root %d: %w", root, err)
	}
	return v, nil
}

// Gather serializes value locally on every rank, then performs one
// broadcast rooted at each rank (in chunks of at most 1 MiB) so every
// rank ends up with the full sequence of NProcs() values, in rank order.
// It is a collective.
func Gather[T any](ctx context.Context, t transport.Transport, c codec.Codec[T], value T) ([]T, error) {
	var localBuf bytes.Buffer
	if err := c.Encode(&localBuf, value); err != nil {
		return nil, fmt.Errorf("gather: encoding local value: %w", err)
	}
	localPayload := localBuf.Bytes()

	nProcs := t.NProcs()
	result := make([]T, nProcs)
	for rank := 0; rank < nProcs; rank++ {
		var payload []byte
		if rank == t.Rank() {
			payload = localPayload
		}
		received, err := broadcastBytes(ctx, t, rank, payload, gatherChunkSize)
		if err != nil {
			return nil, fmt.Errorf("gather: broadcasting rank %d's payload: %w", rank, err)
		}
		v, err := c.Decode(bytes.NewReader(received))
		if err != nil {
			return nil, fmt.Errorf("gather: decoding rank %d's payload: %w", rank, err)
		}
		result[rank] = v
	}
	return result, nil
}

// broadcastBytes broadcasts payload (meaningful only on rank root) in
// chunks of at most chunkSize bytes: it first broadcasts the total size,
// then broadcasts the bytes themselves in successive chunks.
func broadcastBytes(ctx context.Context, t transport.Transport, root int, payload []byte, chunkSize uint64) ([]byte, error) {
	sizeBuf, err := t.Broadcast(ctx, root, encodeSize(uint64(len(payload))))
	if err != nil {
		return nil, fmt.Errorf("broadcasting payload size from root %d: %w", root, err)
	}
	size := decodeSize(sizeBuf)

	isRoot := t.Rank() == root
	if !isRoot {
		payload = make([]byte, 0, size)
	}
	for sent := uint64(0); sent < size; {
		end := sent + chunkSize
		if end > size {
			end = size
		}
		var chunk []byte
		if isRoot {
			chunk = payload[sent:end]
		}
		got, err := t.Broadcast(ctx, root, chunk)
		if err != nil {
			return nil, fmt.Errorf("broadcasting payload chunk from root %d: %w", root, err)
		}
		if !isRoot {
			payload = append(payload, got...)
		}
		sent = end
	}
	return payload, nil
}
