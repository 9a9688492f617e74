// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package framing

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()
	defer func() { _ = server.Close() }()

	payloads := [][]byte{
		[]byte(`{"type":"session_start"}`),
		{0xFF, 0xD8, 0xFF, 0xE0},
		{},
	}

	go func() {
		w := NewWriter(client)
		for _, p := range payloads {
			_ = w.Write(p)
		}
	}()

	r := NewReader(server)
	for _, want := range payloads {
		got, err := r.Read()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadRejectsOversizedPrefix(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxPayload+1)
	buf.Write(hdr[:])

	_, err := NewReader(&buf).Read()
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReadAcceptsExactlyMaxPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(make([]byte, MaxPayload)))

	got, err := NewReader(&buf).Read()
	require.NoError(t, err)
	require.Len(t, got, MaxPayload)
}

func TestReadCleanEOF(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).Read()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("short")

	_, err := NewReader(&buf).Read()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadTruncatedHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0, 0})).Read()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).Write(make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Zero(t, buf.Len())
}

func TestWireFormatIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write([]byte("abc")))
	require.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, buf.Bytes())
}
