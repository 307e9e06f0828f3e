// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package segmented

import (
	"encoding/binary"
	"io"
	"math"
)

func encodeUint64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func decodeUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func encodeFloat64(w io.Writer, v float64) error {
	return binary.Write(w, binary.LittleEndian, math.Float64bits(v))
}

func decodeFloat64(r io.Reader) (float64, error) {
	bits, err := decodeUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}
