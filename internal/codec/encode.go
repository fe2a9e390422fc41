package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/jpegxl"
	"github.com/gen2brain/webp"
)

type encodeFunc func(w io.Writer, img image.Image, s Settings) error

var encoders = map[Format]encodeFunc{
	FormatJPEG: encodeJPEG,
	FormatPNG:  encodePNG,
	FormatWEBP: encodeWEBP,
	FormatAVIF: encodeAVIF,
	FormatJXL:  encodeJXL,
}

// Encode writes img in the settings' target format. Settings are normalized
// first, so callers may pass raw user values.
func Encode(img image.Image, s Settings) ([]byte, error) {
	s = s.Normalize()
	encode, ok := encoders[s.Format]
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrEncodeFailure, s.Format)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncodeFailure, s.Format, err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(w io.Writer, img image.Image, s Settings) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: clamp(s.Quality, 1, MaxQuality)})
}

// pngLevels is indexed by speed: lower speed spends more effort.
var pngLevels = [MaxPNGSpeed + 1]png.CompressionLevel{
	png.BestCompression,
	png.DefaultCompression,
	png.BestSpeed,
}

func encodePNG(w io.Writer, img image.Image, s Settings) error {
	enc := png.Encoder{CompressionLevel: pngLevels[clamp(s.Speed, 0, MaxPNGSpeed)]}
	return enc.Encode(w, img)
}

// webpMethod maps speed 0-10 onto the encoder method 6 (slowest) to 0.
func webpMethod(speed int) int {
	return 6 - clamp(speed, 0, MaxSpeed)*6/MaxSpeed
}

func encodeWEBP(w io.Writer, img image.Image, s Settings) error {
	opts := webp.Options{
		Quality:  clamp(s.Quality, 0, MaxQuality),
		Lossless: s.Quality == QualityLossless,
		Method:   webpMethod(s.Speed),
	}
	return webp.Encode(w, img, opts)
}

func encodeAVIF(w io.Writer, img image.Image, s Settings) error {
	opts := avif.Options{
		Quality:           s.Quality,
		QualityAlpha:      s.Quality,
		Speed:             s.Speed,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	}
	return avif.Encode(w, img, opts)
}

// jxlEffort maps speed 0-10 onto libjxl effort 10 (slowest) to 1.
func jxlEffort(speed int) int {
	return clamp(MaxSpeed-speed, 1, 10)
}

func encodeJXL(w io.Writer, img image.Image, s Settings) error {
	opts := jpegxl.Options{
		Quality: s.Quality,
		Effort:  jxlEffort(s.Speed),
	}
	return jpegxl.Encode(w, img, opts)
}
