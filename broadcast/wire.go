// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package broadcast

import "encoding/binary"

func encodeSize(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func decodeSize(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
