// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package kcp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// freeUDPAddrs picks n distinct loopback UDP addresses free at the time
// of the call, for Dial's listeners to bind.
func freeUDPAddrs(t *testing.T, n int) []string {
	addrs := make([]string, n)
	for i := range addrs {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = conn.LocalAddr().String()
		require.NoError(t, conn.Close())
	}
	return addrs
}

func dialMesh(t *testing.T, nProcs int) []*Transport {
	addrs := freeUDPAddrs(t, nProcs)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transports := make([]*Transport, nProcs)
	errs := make([]error, nProcs)
	var wg sync.WaitGroup
	wg.Add(nProcs)
	for rank := 0; rank < nProcs; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			transports[rank], errs[rank] = Dial(ctx, Config{Rank: rank, Addrs: addrs})
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}
	return transports
}

func TestSendRecvRoundTrip(t *testing.T) {
	transports := dialMesh(t, 2)
	defer transports[0].Close()
	defer transports[1].Close()

	var wg sync.WaitGroup
	var sendErr, recvErr error
	var got []byte
	wg.Add(2)
	go func() {
		defer wg.Done()
		sendErr = transports[0].Send(context.Background(), 1, 7, []byte("hello"))
	}()
	go func() {
		defer wg.Done()
		got, recvErr = transports[1].Recv(context.Background(), 0, 7)
	}()
	wg.Wait()

	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	require.Equal(t, []byte("hello"), got)
}

func TestBroadcastReachesEveryRank(t *testing.T) {
	const nProcs = 3
	const root = 1
	transports := dialMesh(t, nProcs)
	for _, tr := range transports {
		defer tr.Close()
	}

	var wg sync.WaitGroup
	results := make([][]byte, nProcs)
	errs := make([]error, nProcs)
	wg.Add(nProcs)
	for rank, tr := range transports {
		rank, tr := rank, tr
		go func() {
			defer wg.Done()
			data := []byte(nil)
			if rank == root {
				data = []byte("announcement")
			}
			results[rank], errs[rank] = tr.Broadcast(context.Background(), root, data)
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
		require.Equal(t, []byte("announcement"), results[rank])
	}
}

func TestAllGatherCollectsEveryRank(t *testing.T) {
	const nProcs = 4
	transports := dialMesh(t, nProcs)
	for _, tr := range transports {
		defer tr.Close()
	}

	var wg sync.WaitGroup
	results := make([][][]byte, nProcs)
	errs := make([]error, nProcs)
	wg.Add(nProcs)
	for rank, tr := range transports {
		rank, tr := rank, tr
		go func() {
			defer wg.Done()
			results[rank], errs[rank] = tr.AllGather(context.Background(), []byte{byte(rank)})
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
		for peer := 0; peer < nProcs; peer++ {
			require.Equal(t, []byte{byte(peer)}, results[rank][peer])
		}
	}
}

func TestBarrierReleasesEveryRankTogether(t *testing.T) {
	const nProcs = 3
	transports := dialMesh(t, nProcs)
	for _, tr := range transports {
		defer tr.Close()
	}

	var wg sync.WaitGroup
	errs := make([]error, nProcs)
	wg.Add(nProcs)
	for rank, tr := range transports {
		rank, tr := rank, tr
		go func() {
			defer wg.Done()
			errs[rank] = tr.Barrier(context.Background())
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoErrorf(t, err, "rank %d", rank)
	}
}
