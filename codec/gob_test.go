// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGobRoundTrip(t *testing.T) {
	var c Gob[string]
	var buf bytes.Buffer

	require.NoError(t, c.Encode(&buf, "hello"))
	got, err := c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestGobRoundTripStruct(t *testing.T) {
	type point struct {
		X, Y int
	}
	var c Gob[point]
	var buf bytes.Buffer

	want := point{X: 3, Y: 4}
	require.NoError(t, c.Encode(&buf, want))
	got, err := c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGobDecodeEmptyReaderErrors(t *testing.T) {
	var c Gob[int]
	_, err := c.Decode(&bytes.Buffer{})
	require.Error(t, err)
}
