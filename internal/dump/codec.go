// Package dump loads raw error record dumps from disk, undoing any
// compression, and cuts them into individual status blocks.
package dump

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is the container a dump was stored in.
type Format int

const (
	Raw Format = iota
	Zstd
	LZ4
	S2
)

var formatNames = [...]string{"raw", "zstd", "lz4", "s2"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return "unknown"
	}
	return formatNames[f]
}

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return Raw, fmt.Errorf("dump: unknown format %q", name)
}

// DefaultLimit caps decompressed dumps.
const DefaultLimit = 256 << 20

var (
	// ErrTooLarge reports a dump that expands past the size limit.
	ErrTooLarge = errors.New("dump: decompressed data exceeds limit")

	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicLZ4  = []byte{0x04, 0x22, 0x4D, 0x18}
	// s2 readers accept both s2 and snappy framed streams.
	magicS2     = []byte("\xff\x06\x00\x00S2sTwO")
	magicSnappy = []byte("\xff\x06\x00\x00sNaPpY")
)

// Detect guesses the container of data from its leading bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicZstd):
		return Zstd
	case bytes.HasPrefix(data, magicLZ4):
		return LZ4
	case bytes.HasPrefix(data, magicS2), bytes.HasPrefix(data, magicSnappy):
		return S2
	}
	return Raw
}

// Decode undoes the container detected in data. Output larger than limit
// bytes fails with ErrTooLarge; a limit of zero or less means DefaultLimit.
func Decode(data []byte, limit int64) ([]byte, Format, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	f := Detect(data)
	var r io.Reader
	switch f {
	case Raw:
		if int64(len(data)) > limit {
			return nil, f, ErrTooLarge
		}
		return data, f, nil
	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, f, fmt.Errorf("dump: zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	case LZ4:
		r = lz4.NewReader(bytes.NewReader(data))
	case S2:
		r = s2.NewReader(bytes.NewReader(data))
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, f, fmt.Errorf("dump: %s: %w", f, err)
	}
	if int64(len(out)) > limit {
		return nil, f, ErrTooLarge
	}
	return out, f, nil
}

// Encode wraps data in the given container.
func Encode(f Format, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch f {
	case Raw:
		return data, nil
	case Zstd:
		zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		w = zw
	case LZ4:
		w = lz4.NewWriter(&buf)
	case S2:
		w = s2.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("dump: unknown format %d", f)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
