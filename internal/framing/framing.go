// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package framing implements the length-prefixed message transport used by
// the ingestion stream: a 4-byte big-endian payload length followed by
// exactly that many bytes.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxPayload is the largest payload accepted or emitted (10 MiB).
const MaxPayload = 10 << 20

// HeaderSize is the length of the big-endian length prefix.
const HeaderSize = 4

// ErrPayloadTooLarge is returned when a length prefix exceeds MaxPayload.
// The stream is out of sync afterwards and must be closed.
var ErrPayloadTooLarge = errors.New("framing: payload exceeds maximum size")

// Reader reads framed messages from an underlying stream.
type Reader struct {
	r   io.Reader
	hdr [HeaderSize]byte
	max uint32
}

// NewReader wraps r with the default MaxPayload limit.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, max: MaxPayload}
}

// Read blocks until a complete message is available and returns its payload.
// A clean close before any header byte returns io.EOF; a close mid-message
// returns io.ErrUnexpectedEOF.
func (fr *Reader) Read() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(fr.hdr[:])
	if n > fr.max {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Writer writes framed messages. It is safe for concurrent use; each message
// is emitted as a single write so frames never interleave.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits the length prefix followed by payload.
func (fw *Writer) Write(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}
