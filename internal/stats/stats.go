// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package stats exposes optional prometheus instrumentation for the hot
// paths of the hash, segmented, and distributed overlays: the async-set
// cache-fallback rate, segment lock wait time, shuffle bytes exchanged,
// and rehash counts. Every method is nil-safe so a container that never
// calls SetStats pays nothing beyond a nil check on its hot path, the
// same injectable-metrics shape ocprometheus uses for its collector.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a bundle of counters and a histogram registered under a single
// prometheus.Registerer. A nil *Stats is valid and every method on it is
// a no-op, so callers can pass one through optional constructor arguments
// without a presence check at every call site.
type Stats struct {
	cacheFallbacks   prometheus.Counter
	rehashes         prometheus.Counter
	shuffleBytesSent prometheus.Counter
	shuffleBytesRecv prometheus.Counter
	segmentLockWait  prometheus.Histogram
}

// New constructs a Stats registered under reg with the given subsystem
// name (e.g. "users" for a ConcurrentMap tracking user records), so that
// two containers in the same process don't collide on metric names.
func New(reg prometheus.Registerer, subsystem string) *Stats {
	s := &Stats{
		cacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parallelmap",
			Subsystem: subsystem,
			Name:      "async_set_cache_fallbacks_total",
			Help:      "AsyncSet calls that wrote to a thread cache because the segment lock was contended.",
		}),
		rehashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parallelmap",
			Subsystem: subsystem,
			Name:      "rehashes_total",
			Help:      "Rehashes triggered by the load factor or the balance guard.",
		}),
		shuffleBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parallelmap",
			Subsystem: subsystem,
			Name:      "shuffle_bytes_sent_total",
			Help:      "Bytes sent across all paired exchanges of a distributed Sync.",
		}),
		shuffleBytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parallelmap",
			Subsystem: subsystem,
			Name:      "shuffle_bytes_received_total",
			Help:      "Bytes received across all paired exchanges of a distributed Sync.",
		}),
		segmentLockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parallelmap",
			Subsystem: subsystem,
			Name:      "segment_lock_wait_seconds",
			Help:      "Time spent blocked acquiring a segment lock on the synchronous Set path.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(s.cacheFallbacks, s.rehashes, s.shuffleBytesSent, s.shuffleBytesRecv, s.segmentLockWait)
	}
	return s
}

// IncCacheFallback records one AsyncSet call that missed its segment
// lock and fell back to the calling thread's cache.
func (s *Stats) IncCacheFallback() {
	if s == nil {
		return
	}
	s.cacheFallbacks.Inc()
}

// IncRehash records one rehash, whether triggered by the load factor or
// the balance guard.
func (s *Stats) IncRehash() {
	if s == nil {
		return
	}
	s.rehashes.Inc()
}

// AddShuffleBytesSent records n bytes handed to the transport during a
// paired exchange's outgoing stream.
func (s *Stats) AddShuffleBytesSent(n int) {
	if s == nil {
		return
	}
	s.shuffleBytesSent.Add(float64(n))
}

// AddShuffleBytesRecv records n bytes accumulated from a paired
// exchange's incoming stream.
func (s *Stats) AddShuffleBytesRecv(n int) {
	if s == nil {
		return
	}
	s.shuffleBytesRecv.Add(float64(n))
}

// ObserveSegmentLockWait records how long a synchronous Set call blocked
// acquiring its segment's lock.
func (s *Stats) ObserveSegmentLockWait(d time.Duration) {
	if s == nil {
		return
	}
	s.segmentLockWait.Observe(d.Seconds())
}
