// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package codec is the serialization primitive spec section 6 treats as an
// external collaborator: every container's Serialize/Parse pair is written
// against the Codec interface, not against a specific wire format, so a
// caller with protobuf, JSON, or a hand-rolled binary layout for their key
// and value types can supply their own.
package codec

import "io"

// Codec turns a value of type T to and from bytes. Implementations must be
// safe for concurrent use by multiple goroutines calling Encode or Decode
// independently (the segmented and distributed overlays serialize distinct
// segments/buffers concurrently), but a single Codec value is never asked
// to Encode and Decode into the same io.Writer/Reader concurrently.
type Codec[T any] interface {
	// Encode appends the wire representation of v to w.
	Encode(w io.Writer, v T) error
	// Decode reads one value previously written by Encode from r.
	Decode(r io.Reader) (T, error)
}
