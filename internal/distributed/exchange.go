// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package distributed

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/aristanetworks/parallelmap/transport"
	"golang.org/x/sync/errgroup"
)

// ChunkSize is the fixed staging-buffer size for a paired exchange's
// chunked overlap, spec section 4.3 step 2: "a fixed 1-MiB staging
// buffer for each direction".
const ChunkSize = 1 << 20

// ExchangeBytes drains one paired exchange of spec section 4.3 step 2:
// it sends out to dest and receives from src, overlapping both
// directions in ChunkSize chunks so memory use stays bounded regardless
// of payload size. Both peers must call it with symmetric (dest, src)
// pairs, i.e. this rank's dest must call ExchangeBytes with this rank as
// its src in the same round.
func ExchangeBytes(ctx context.Context, t transport.Transport, dest, src int, out []byte) ([]byte, error) {
	recvSize, err := exchangeSizes(ctx, t, dest, src, uint64(len(out)))
	if err != nil {
		return nil, fmt.Errorf("distributed: exchanging payload size with rank %d/%d: %w", dest, src, err)
	}

	received := make([]byte, 0, recvSize)
	sent := uint64(0)
	for sent < uint64(len(out)) || uint64(len(received)) < recvSize {
		g, gctx := errgroup.WithContext(ctx)

		var chunk []byte
		if uint64(len(received)) < recvSize {
			g.Go(func() error {
				c, err := t.Recv(gctx, src, transport.TagPayload)
				if err != nil {
					return err
				}
				chunk = c
				return nil
			})
		}

		if sent < uint64(len(out)) {
			end := sent + ChunkSize
			if end > uint64(len(out)) {
				end = uint64(len(out))
			}
			toSend := out[sent:end]
			g.Go(func() error {
				return t.Send(gctx, dest, transport.TagPayload, toSend)
			})
			sent = end
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("distributed: exchanging payload chunk with rank %d/%d: %w", dest, src, err)
		}
		if chunk != nil {
			received = append(received, chunk...)
		}
	}
	return received, nil
}

// exchangeSizes posts the size_t non-blocking send/receive pair of spec
// section 4.3 step 2 concurrently and waits for both.
func exchangeSizes(ctx context.Context, t transport.Transport, dest, src int, outSize uint64) (uint64, error) {
	g, ctx := errgroup.WithContext(ctx)
	var recvSize uint64
	g.Go(func() error {
		return t.Send(ctx, dest, transport.TagSize, encodeSize(outSize))
	})
	g.Go(func() error {
		buf, err := t.Recv(ctx, src, transport.TagSize)
		if err != nil {
			return err
		}
		recvSize = decodeSize(buf)
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return recvSize, nil
}

func encodeSize(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func decodeSize(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
