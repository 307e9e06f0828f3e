// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package transport is the cross-process messaging primitive spec
// section 6 treats as an external collaborator: an MPI-like collective
// interface of per-rank send/receive with tags, broadcast, all-gather,
// and barrier. The distributed overlay is written entirely against this
// interface; transport/local supplies an in-memory implementation for
// single-process tests and transport/kcp a real network one.
package transport

import "context"

// Size-exchange and payload-exchange tags, matching spec section 6's
// two-tag wire contract for a paired remote-buffer exchange.
const (
	TagSize    = 0
	TagPayload = 1
)

// Transport is the messaging primitive every distributed container is
// built on. Implementations must support every rank calling every
// collective method (Broadcast, AllGather, Barrier) the same number of
// times in the same order; a rank that doesn't participate leaves the
// others blocked forever, matching an MPI collective.
//
// Send and Recv are plain blocking calls rather than separate
// post/wait-all steps: callers that need the original non-blocking
// overlap (spec section 4.3's chunked send/receive) launch concurrent
// Send and Recv calls from an errgroup and let the group's Wait stand in
// for "wait-all".
type Transport interface {
	// Rank returns this process's 0-based rank.
	Rank() int
	// NProcs returns the total number of cooperating processes.
	NProcs() int

	// Send blocks until data has been handed to dest under tag.
	Send(ctx context.Context, dest int, tag int, data []byte) error
	// Recv blocks until a message tagged tag arrives from src, and
	// returns its payload.
	Recv(ctx context.Context, src int, tag int) ([]byte, error)

	// Broadcast is a collective: the caller on rank root passes the
	// bytes to send; every rank, including root, returns those same
	// bytes. Every rank must call Broadcast with the same root.
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)

	// AllGather is a collective: every rank contributes data, and every
	// rank receives the full slice of NProcs() payloads in rank order.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)

	// Barrier is a collective: it returns on a rank only once every
	// rank has called it.
	Barrier(ctx context.Context) error
}
