// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// AVI layout offsets. The header is written once with placeholder sizes and
// patched on Close.
const (
	aviHeaderSize = 224

	offRIFFSize         = 4
	offMaxBytesPerSec   = 36
	offTotalFrames      = 48
	offAvihBufferSize   = 60
	offStrhLength       = 140
	offStrhBufferSize   = 144
	offMoviSize         = 216
	offMoviFourCC       = 220
	avifHasIndex        = 0x10
	aviifKeyframe       = 0x10
	idxEntrySize        = 16
	chunkHeaderSize     = 8
	maxAVIFileSize      = 1<<32 - 1
	defaultAVIFrameRate = 30
)

var (
	// ErrWriterClosed is returned when writing to a closed segment writer.
	ErrWriterClosed = errors.New("media: writer closed")
	// ErrSegmentTooLarge is returned when a segment would exceed the 4 GiB RIFF limit.
	ErrSegmentTooLarge = errors.New("media: segment exceeds AVI size limit")
)

type idxEntry struct {
	offset uint32
	size   uint32
}

// AVIWriter writes Motion-JPEG frames into a RIFF AVI container readable by
// standard decoders.
type AVIWriter struct {
	path   string
	f      *os.File
	bw     *bufio.Writer
	width  int
	height int
	fps    int

	moviBytes uint32 // bytes after the 'movi' fourcc
	maxFrame  uint32
	index     []idxEntry
	closed    bool
}

// CreateAVI creates path and writes the AVI header.
func CreateAVI(path string, width, height, fps int) (*AVIWriter, error) {
	if !ValidGeometry(width, height) {
		return nil, fmt.Errorf("%w: %dx%d", ErrGeometry, width, height)
	}
	if fps <= 0 {
		fps = defaultAVIFrameRate
	}
	// #nosec G304 -- path is built by the recorder inside the recordings dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("media: create segment: %w", err)
	}
	w := &AVIWriter{
		path:   path,
		f:      f,
		bw:     bufio.NewWriterSize(f, 256*1024),
		width:  width,
		height: height,
		fps:    fps,
	}
	if _, err := w.bw.Write(w.header()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("media: write header: %w", err)
	}
	return w, nil
}

// Path returns the file path.
func (w *AVIWriter) Path() string { return w.path }

// Frames returns the number of frames written.
func (w *AVIWriter) Frames() int { return len(w.index) }

// WriteFrame appends one JPEG-encoded frame.
func (w *AVIWriter) WriteFrame(jpegData []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if len(jpegData) == 0 {
		return ErrEmptyFrame
	}
	size := uint32(len(jpegData))
	padded := size + size&1
	projected := uint64(aviHeaderSize) + uint64(w.moviBytes) + chunkHeaderSize + uint64(padded) +
		chunkHeaderSize + uint64(len(w.index)+1)*idxEntrySize
	if projected > maxAVIFileSize {
		return ErrSegmentTooLarge
	}

	var hdr [chunkHeaderSize]byte
	copy(hdr[0:4], "00dc")
	binary.LittleEndian.PutUint32(hdr[4:8], size)
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.bw.Write(jpegData); err != nil {
		return err
	}
	if size&1 == 1 {
		if err := w.bw.WriteByte(0); err != nil {
			return err
		}
	}

	// idx1 offsets are relative to the 'movi' fourcc.
	w.index = append(w.index, idxEntry{offset: 4 + w.moviBytes, size: size})
	w.moviBytes += chunkHeaderSize + padded
	if size > w.maxFrame {
		w.maxFrame = size
	}
	return nil
}

// Close writes the index, patches header sizes and closes the file.
func (w *AVIWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *AVIWriter) finish() error {
	idx := make([]byte, chunkHeaderSize+len(w.index)*idxEntrySize)
	copy(idx[0:4], "idx1")
	binary.LittleEndian.PutUint32(idx[4:8], uint32(len(w.index)*idxEntrySize))
	for i, e := range w.index {
		o := chunkHeaderSize + i*idxEntrySize
		copy(idx[o:o+4], "00dc")
		binary.LittleEndian.PutUint32(idx[o+4:], aviifKeyframe)
		binary.LittleEndian.PutUint32(idx[o+8:], e.offset)
		binary.LittleEndian.PutUint32(idx[o+12:], e.size)
	}
	if _, err := w.bw.Write(idx); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}

	fileSize := uint32(aviHeaderSize) + w.moviBytes + uint32(len(idx))
	patches := []struct {
		off int64
		val uint32
	}{
		{offRIFFSize, fileSize - 8},
		{offMaxBytesPerSec, w.maxFrame * uint32(w.fps)},
		{offTotalFrames, uint32(len(w.index))},
		{offAvihBufferSize, w.maxFrame},
		{offStrhLength, uint32(len(w.index))},
		{offStrhBufferSize, w.maxFrame},
		{offMoviSize, 4 + w.moviBytes},
	}
	var b [4]byte
	for _, p := range patches {
		binary.LittleEndian.PutUint32(b[:], p.val)
		if _, err := w.f.WriteAt(b[:], p.off); err != nil {
			return fmt.Errorf("media: patch header: %w", err)
		}
	}
	return w.f.Sync()
}

func (w *AVIWriter) header() []byte {
	h := make([]byte, aviHeaderSize)
	le := binary.LittleEndian
	put4 := func(off int, s string) { copy(h[off:off+4], s) }

	put4(0, "RIFF")
	put4(8, "AVI ")
	put4(12, "LIST")
	le.PutUint32(h[16:], 192) // hdrl
	put4(20, "hdrl")

	put4(24, "avih")
	le.PutUint32(h[28:], 56)
	le.PutUint32(h[32:], uint32(1_000_000/w.fps))
	le.PutUint32(h[44:], avifHasIndex)
	le.PutUint32(h[56:], 1) // streams
	le.PutUint32(h[64:], uint32(w.width))
	le.PutUint32(h[68:], uint32(w.height))

	put4(88, "LIST")
	le.PutUint32(h[92:], 116) // strl
	put4(96, "strl")

	put4(100, "strh")
	le.PutUint32(h[104:], 56)
	put4(108, "vids")
	put4(112, "MJPG")
	le.PutUint32(h[128:], 1)             // scale
	le.PutUint32(h[132:], uint32(w.fps)) // rate
	le.PutUint32(h[148:], 0xFFFFFFFF)    // quality: default
	le.PutUint16(h[160:], uint16(w.width))
	le.PutUint16(h[162:], uint16(w.height))

	put4(164, "strf")
	le.PutUint32(h[168:], 40)
	le.PutUint32(h[172:], 40)
	le.PutUint32(h[176:], uint32(w.width))
	le.PutUint32(h[180:], uint32(w.height))
	le.PutUint16(h[184:], 1)  // planes
	le.PutUint16(h[186:], 24) // bit count
	put4(188, "MJPG")
	le.PutUint32(h[192:], uint32(w.width*w.height*3))

	put4(212, "LIST")
	put4(offMoviFourCC, "movi")
	return h
}

// AVIInfo summarises a finished AVI file.
type AVIInfo struct {
	Width  int
	Height int
	FPS    int
	Frames int
}

// ReadAVIInfo reads the main header of an AVI file written by AVIWriter.
func ReadAVIInfo(r io.ReaderAt) (AVIInfo, error) {
	h := make([]byte, aviHeaderSize)
	if _, err := r.ReadAt(h, 0); err != nil {
		return AVIInfo{}, fmt.Errorf("media: read header: %w", err)
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "AVI " || string(h[112:116]) != "MJPG" {
		return AVIInfo{}, errors.New("media: not an MJPEG AVI file")
	}
	le := binary.LittleEndian
	return AVIInfo{
		Width:  int(le.Uint32(h[64:])),
		Height: int(le.Uint32(h[68:])),
		FPS:    int(le.Uint32(h[132:])),
		Frames: int(le.Uint32(h[offTotalFrames:])),
	}, nil
}
