// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media decodes ingested frames, normalises their geometry and writes
// Motion-JPEG segment files.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// FormatJPEG is the image.Decode format name for JPEG input.
const FormatJPEG = "jpeg"

// DefaultJPEGQuality is used when re-encoding resized or non-JPEG frames.
const DefaultJPEGQuality = 90

// MaxDimension bounds frame and segment width and height in pixels.
const MaxDimension = 8192

var (
	// ErrEmptyFrame is returned for zero-length payloads or zero-area images.
	ErrEmptyFrame = errors.New("media: empty frame")
	// ErrDecode wraps image decoding failures.
	ErrDecode = errors.New("media: frame decode failed")
	// ErrGeometry is returned for dimensions outside 1..MaxDimension.
	ErrGeometry = errors.New("media: invalid geometry")
)

// ValidGeometry reports whether w×h is within 1..MaxDimension on both axes.
func ValidGeometry(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxDimension && h <= MaxDimension
}

// Frame is one decoded video frame. Data keeps the original encoded bytes so
// JPEG input of the right size can be written without re-encoding.
type Frame struct {
	Image  image.Image
	Data   []byte
	Format string
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Width() == 0 || f.Height() == 0
}

// DecodeFrame decodes a single compressed image in any registered format.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	// The header is checked first so an oversized declaration never allocates.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return Frame{}, fmt.Errorf("%w: %dx%d exceeds %d", ErrDecode, cfg.Width, cfg.Height, MaxDimension)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	f := Frame{Image: img, Data: data, Format: format}
	if f.Empty() {
		return Frame{}, ErrEmptyFrame
	}
	return f, nil
}

// Resize scales src to exactly w×h.
func Resize(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("media: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Normalize returns JPEG bytes for f at exactly w×h. The original bytes are
// reused when f is already a JPEG of that size; resized reports whether
// scaling was needed.
func Normalize(f Frame, w, h, quality int) (data []byte, resized bool, err error) {
	if f.Empty() {
		return nil, false, ErrEmptyFrame
	}
	if !ValidGeometry(w, h) {
		return nil, false, fmt.Errorf("%w: %dx%d", ErrGeometry, w, h)
	}
	img := f.Image
	if f.Width() != w || f.Height() != h {
		img = Resize(img, w, h)
		resized = true
	} else if f.Format == FormatJPEG && len(f.Data) > 0 {
		return f.Data, false, nil
	}
	data, err = EncodeJPEG(img, quality)
	return data, resized, err
}
