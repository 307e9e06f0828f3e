// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package codec

import (
	"encoding/gob"
	"io"
)

// Gob is the default Codec, backed by encoding/gob. It works for any T
// whose fields are themselves gob-encodable; register concrete types held
// behind interface fields with gob.Register before using a Gob[T] codec
// for them.
type Gob[T any] struct{}

// Encode implements Codec.
func (Gob[T]) Encode(w io.Writer, v T) error {
	return gob.NewEncoder(w).Encode(v)
}

// Decode implements Codec.
func (Gob[T]) Decode(r io.Reader) (T, error) {
	var v T
	err := gob.NewDecoder(r).Decode(&v)
	return v, err
}
