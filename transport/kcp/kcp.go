// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package kcp is the real-network transport.Transport: every rank dials
// or accepts one KCP session per peer (see cmd/octsdb/udp.go for the
// dial/listen options this mirrors) and frames point-to-point and
// collective traffic over that session.
//
// Send/Recv with the same (peer, tag) must not have more than one frame
// in flight at a time; Transport does not reorder or buffer beyond the
// single frame each (kind, tag, generation) key is given. internal/
// distributed's paired exchange already respects this by waiting for a
// round's send and recv to both complete before starting the next.
package kcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/aristanetworks/parallelmap/transport"
	"github.com/cenkalti/backoff/v4"
	kcpgo "github.com/xtaci/kcp-go"
	"golang.org/x/sync/errgroup"
)

// Config describes the mesh Dial connects: Addrs[i] is the address rank i
// listens on, and Rank is this process's index into Addrs.
type Config struct {
	Rank  int
	Addrs []string
}

// Transport is a transport.Transport backed by one KCP session per peer,
// built into a full mesh at Dial time: the lower-ranked side of every pair
// listens, the higher-ranked side dials, matching the accept/dial split
// cmd/octsdb/udp.go uses for a single client/server pair.
type Transport struct {
	rank, nProcs int
	lis          *kcpgo.Listener
	conns        []*conn // conns[i] is the session to peer i; nil for self

	broadcastGen uint32
	gatherGen    uint32
	barrierGen   uint32
}

// Dial listens on cfg.Addrs[cfg.Rank] and connects to every other rank,
// retrying dials with exponential backoff (mirroring gnmireverse client's
// streamResponses retry loop) until the whole mesh is up. It blocks until
// every peer has connected. Dial retries stop once ctx is done, but
// waiting to accept sessions from higher-ranked peers does not observe
// ctx.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	rank := cfg.Rank
	nProcs := len(cfg.Addrs)
	if rank < 0 || rank >= nProcs {
		return nil, fmt.Errorf("kcp transport: rank %d out of range for %d addrs", rank, nProcs)
	}

	lis, err := kcpgo.ListenWithOptions(cfg.Addrs[rank], nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("kcp transport: rank %d: listening on %q: %w", rank, cfg.Addrs[rank], err)
	}

	conns := make([]*conn, nProcs)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	// Peers with a higher rank dial us; accept exactly that many sessions.
	acceptCount := nProcs - 1 - rank
	g.Go(func() error {
		for i := 0; i < acceptCount; i++ {
			sess, err := lis.AcceptKCP()
			if err != nil {
				return fmt.Errorf("kcp transport: rank %d: accepting peer: %w", rank, err)
			}
			peerRank, err := readRank(sess)
			if err != nil {
				return fmt.Errorf("kcp transport: rank %d: reading peer rank: %w", rank, err)
			}
			mu.Lock()
			conns[peerRank] = newConn(sess)
			mu.Unlock()
		}
		return nil
	})

	// We dial every peer with a lower rank.
	for peer := 0; peer < rank; peer++ {
		peer := peer
		g.Go(func() error {
			sess, err := dialWithBackoff(gctx, cfg.Addrs[peer])
			if err != nil {
				return fmt.Errorf("kcp transport: rank %d: dialing rank %d at %q: %w", rank, peer, cfg.Addrs[peer], err)
			}
			if err := writeRank(sess, rank); err != nil {
				return fmt.Errorf("kcp transport: rank %d: announcing rank to rank %d: %w", rank, peer, err)
			}
			mu.Lock()
			conns[peer] = newConn(sess)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		lis.Close()
		return nil, err
	}

	t := &Transport{rank: rank, nProcs: nProcs, lis: lis, conns: conns}
	for peer, c := range conns {
		if c != nil {
			go t.readLoop(peer, c)
		}
	}
	return t, nil
}

// Close tears down every peer session and the listener.
func (t *Transport) Close() error {
	var firstErr error
	for _, c := range t.conns {
		if c == nil {
			continue
		}
		if err := c.sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.lis.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func dialWithBackoff(ctx context.Context, addr string) (net.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // Keep retrying until ctx is done.

	var sess net.Conn
	op := func() error {
		s, err := kcpgo.DialWithOptions(addr, nil, 10, 3)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return sess, nil
}

func readRank(r io.Reader) (int, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(buf[:])), nil
}

func writeRank(w io.Writer, rank int) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(rank))
	_, err := w.Write(buf[:])
	return err
}

// Rank implements transport.Transport.
func (t *Transport) Rank() int { return t.rank }

// NProcs implements transport.Transport.
func (t *Transport) NProcs() int { return t.nProcs }

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, dest int, tag int, data []byte) error {
	if err := t.conns[dest].send(frameKey{kindData, tag, 0}, data); err != nil {
		return fmt.Errorf("kcp transport: rank %d: sending to rank %d tag %d: %w", t.rank, dest, tag, err)
	}
	return nil
}

// Recv implements transport.Transport.
func (t *Transport) Recv(ctx context.Context, src int, tag int) ([]byte, error) {
	payload, err := t.conns[src].recv(ctx, frameKey{kindData, tag, 0})
	if err != nil {
		return nil, fmt.Errorf("kcp transport: rank %d: receiving from rank %d tag %d: %w", t.rank, src, tag, err)
	}
	return payload, nil
}

// Broadcast implements transport.Transport over the full mesh: root sends
// directly to every other rank.
func (t *Transport) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	gen := atomic.AddUint32(&t.broadcastGen, 1) - 1
	if t.rank == root {
		g, _ := errgroup.WithContext(ctx)
		for dest := 0; dest < t.nProcs; dest++ {
			if dest == root {
				continue
			}
			dest := dest
			g.Go(func() error { return t.conns[dest].send(frameKey{kindBroadcast, 0, gen}, data) })
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("kcp transport: rank %d: broadcasting: %w", root, err)
		}
		return data, nil
	}
	payload, err := t.conns[root].recv(ctx, frameKey{kindBroadcast, 0, gen})
	if err != nil {
		return nil, fmt.Errorf("kcp transport: rank %d: receiving broadcast from root %d: %w", t.rank, root, err)
	}
	return payload, nil
}

// AllGather implements transport.Transport over the full mesh: every rank
// sends its payload directly to every other rank.
func (t *Transport) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	gen := atomic.AddUint32(&t.gatherGen, 1) - 1
	results := make([][]byte, t.nProcs)
	results[t.rank] = data

	g, gctx := errgroup.WithContext(ctx)
	for peer := 0; peer < t.nProcs; peer++ {
		if peer == t.rank {
			continue
		}
		peer := peer
		g.Go(func() error { return t.conns[peer].send(frameKey{kindGather, 0, gen}, data) })
		g.Go(func() error {
			payload, err := t.conns[peer].recv(gctx, frameKey{kindGather, 0, gen})
			if err != nil {
				return err
			}
			results[peer] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("kcp transport: rank %d: all-gather: %w", t.rank, err)
	}
	return results, nil
}

// Barrier implements transport.Transport: every rank exchanges a token
// with every other rank directly.
func (t *Transport) Barrier(ctx context.Context) error {
	gen := atomic.AddUint32(&t.barrierGen, 1) - 1
	g, gctx := errgroup.WithContext(ctx)
	for peer := 0; peer < t.nProcs; peer++ {
		if peer == t.rank {
			continue
		}
		peer := peer
		g.Go(func() error { return t.conns[peer].send(frameKey{kindBarrier, 0, gen}, nil) })
		g.Go(func() error {
			_, err := t.conns[peer].recv(gctx, frameKey{kindBarrier, 0, gen})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("kcp transport: rank %d: barrier: %w", t.rank, err)
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
