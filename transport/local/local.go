// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package local is an in-memory transport.Transport for simulating P
// cooperating ranks as goroutines within a single test process, with no
// real networking. It exists so distmap/distset/distrange/broadcast can
// be exercised deterministically without a kcp listener per rank.
package local

import (
	"context"
	"fmt"
	"sync"
)

// group is the shared state behind every rank's *Transport in one
// simulated cluster. Point-to-point messages travel over one buffered
// channel per (src, dest, tag) triple; each collective (Broadcast,
// AllGather, Barrier) rendezvous through a generation-numbered state
// struct so that overlapping calls across rounds never cross-talk.
type group struct {
	nProcs int

	inbox [][][2]chan []byte // inbox[dest][src][tag]

	broadcastMu  sync.Mutex
	broadcastGen int
	broadcastSt  map[int]*broadcastState

	gatherMu  sync.Mutex
	gatherGen int
	gatherSt  map[int]*gatherState

	barrierMu  sync.Mutex
	barrierGen int
	barrierSt  map[int]*barrierState
}

type broadcastState struct {
	data    []byte
	arrived int
	done    chan struct{}
}

type gatherState struct {
	results [][]byte
	arrived int
	done    chan struct{}
}

type barrierState struct {
	arrived int
	done    chan struct{}
}

// NewGroup constructs nProcs ranks wired together, returning one
// transport.Transport per rank in rank order.
func NewGroup(nProcs int) []*Transport {
	g := &group{
		nProcs:      nProcs,
		inbox:       make([][][2]chan []byte, nProcs),
		broadcastSt: make(map[int]*broadcastState),
		gatherSt:    make(map[int]*gatherState),
		barrierSt:   make(map[int]*barrierState),
	}
	for dest := 0; dest < nProcs; dest++ {
		g.inbox[dest] = make([][2]chan []byte, nProcs)
		for src := 0; src < nProcs; src++ {
			// Buffered generously: callers in this module keep only a
			// handful of chunks in flight per peer at a time.
			g.inbox[dest][src] = [2]chan []byte{
				make(chan []byte, 1024),
				make(chan []byte, 1024),
			}
		}
	}
	transports := make([]*Transport, nProcs)
	for rank := 0; rank < nProcs; rank++ {
		transports[rank] = &Transport{g: g, rank: rank}
	}
	return transports
}

// Transport is one rank's handle into a simulated group.
type Transport struct {
	g    *group
	rank int
}

// Rank implements transport.Transport.
func (t *Transport) Rank() int { return t.rank }

// NProcs implements transport.Transport.
func (t *Transport) NProcs() int { return t.g.nProcs }

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, dest int, tag int, data []byte) error {
	if dest < 0 || dest >= t.g.nProcs {
		return fmt.Errorf("local transport: rank %d: send to unknown peer rank %d", t.rank, dest)
	}
	cp := append([]byte(nil), data...)
	select {
	case t.g.inbox[dest][t.rank][tag] <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements transport.Transport.
func (t *Transport) Recv(ctx context.Context, src int, tag int) ([]byte, error) {
	if src < 0 || src >= t.g.nProcs {
		return nil, fmt.Errorf("local transport: rank %d: recv from unknown peer rank %d", t.rank, src)
	}
	select {
	case data := <-t.g.inbox[t.rank][src][tag]:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcast implements transport.Transport. Every rank must call it with
// the same root and in the same relative order as other collectives.
func (t *Transport) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	g := t.g
	g.broadcastMu.Lock()
	gen := g.broadcastGen
	st, ok := g.broadcastSt[gen]
	if !ok {
		st = &broadcastState{done: make(chan struct{})}
		g.broadcastSt[gen] = st
	}
	if t.rank == root {
		st.data = data
	}
	st.arrived++
	if st.arrived == g.nProcs {
		delete(g.broadcastSt, gen)
		g.broadcastGen++
		close(st.done)
	}
	g.broadcastMu.Unlock()

	select {
	case <-st.done:
		return st.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllGather implements transport.Transport.
func (t *Transport) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	g := t.g
	g.gatherMu.Lock()
	gen := g.gatherGen
	st, ok := g.gatherSt[gen]
	if !ok {
		st = &gatherState{results: make([][]byte, g.nProcs), done: make(chan struct{})}
		g.gatherSt[gen] = st
	}
	st.results[t.rank] = data
	st.arrived++
	if st.arrived == g.nProcs {
		delete(g.gatherSt, gen)
		g.gatherGen++
		close(st.done)
	}
	g.gatherMu.Unlock()

	select {
	case <-st.done:
		return st.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Barrier implements transport.Transport.
func (t *Transport) Barrier(ctx context.Context) error {
	g := t.g
	g.barrierMu.Lock()
	gen := g.barrierGen
	st, ok := g.barrierSt[gen]
	if !ok {
		st = &barrierState{done: make(chan struct{})}
		g.barrierSt[gen] = st
	}
	st.arrived++
	if st.arrived == g.nProcs {
		delete(g.barrierSt, gen)
		g.barrierGen++
		close(st.done)
	}
	g.barrierMu.Unlock()

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
