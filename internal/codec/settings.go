// Package codec decodes page images of any sniffed kind and re-encodes them
// to a target format. Local is the in-process Transcoder; the remote package
// offers the same capability over HTTP.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedSourceCodec marks source bytes no decoder accepts.
	ErrUnsupportedSourceCodec = errors.New("unsupported source codec")
	// ErrEncodeFailure marks an encoder rejecting a decoded image.
	ErrEncodeFailure = errors.New("encode failure")
)

// Format is a target image codec.
type Format int

const (
	FormatAVIF Format = iota
	FormatJPEG
	FormatJXL
	FormatPNG
	FormatWEBP
)

// Extension returns the file extension, without the dot, for the format.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatJXL:
		return "jxl"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	default:
		return "avif"
	}
}

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatJXL:
		return "jxl"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	default:
		return "avif"
	}
}

// ParseFormat accepts the format names understood by the CLI and the wire protocol.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "avif":
		return FormatAVIF, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "jxl", "jpegxl", "jpeg-xl":
		return FormatJXL, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWEBP, nil
	}
	return FormatAVIF, fmt.Errorf("invalid format %q (use avif, jpeg, jxl, png or webp)", s)
}

const (
	// QualityLossless requests lossless output from encoders that support it (WEBP).
	QualityLossless = 101
	MaxQuality      = 100
	MaxSpeed        = 10
	MaxPNGSpeed     = 2
)

// Settings are the encoder parameters shared read-only by every job of an archive.
type Settings struct {
	Format  Format
	Quality int
	Speed   int
	// AutoOrient applies the EXIF orientation of JPEG sources before
	// encoding, because the re-encoded page carries no EXIF block.
	AutoOrient bool
}

// DefaultSettings mirrors the historical comiconv defaults.
func DefaultSettings() Settings {
	return Settings{Format: FormatAVIF, Quality: 30, Speed: 3}
}

// Normalize clamps quality and speed into their accepted ranges. Quality 101
// survives only for WEBP, where it means lossless.
func (s Settings) Normalize() Settings {
	s.Speed = clamp(s.Speed, 0, MaxSpeed)
	if s.Quality == QualityLossless && s.Format == FormatWEBP {
		return s
	}
	s.Quality = clamp(s.Quality, 0, MaxQuality)
	return s
}

// Validate rejects values outside the documented ranges instead of clamping them.
func (s Settings) Validate() error {
	if s.Speed < 0 || s.Speed > MaxSpeed {
		return fmt.Errorf("speed %d out of range 0-%d", s.Speed, MaxSpeed)
	}
	if s.Quality < 0 || s.Quality > QualityLossless {
		return fmt.Errorf("quality %d out of range 0-%d", s.Quality, QualityLossless)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
