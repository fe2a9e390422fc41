package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/jpegxl"
	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"

	"comiconv/pkg/imgutil"
)

type decodeFunc func(data []byte) (image.Image, error)

var decoders = map[imgutil.Kind]decodeFunc{
	imgutil.KindJPEG: func(data []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(data)) },
	imgutil.KindPNG:  func(data []byte) (image.Image, error) { return png.Decode(bytes.NewReader(data)) },
	imgutil.KindGIF:  func(data []byte) (image.Image, error) { return gif.Decode(bytes.NewReader(data)) },
	imgutil.KindBMP:  func(data []byte) (image.Image, error) { return bmp.Decode(bytes.NewReader(data)) },
	imgutil.KindTIFF: func(data []byte) (image.Image, error) { return tiff.Decode(bytes.NewReader(data)) },
	imgutil.KindWEBP: decodeWEBP,
	imgutil.KindAVIF: func(data []byte) (image.Image, error) { return avif.Decode(bytes.NewReader(data)) },
	imgutil.KindJXL:  func(data []byte) (image.Image, error) { return jpegxl.Decode(bytes.NewReader(data)) },
}

// decodeWEBP prefers the pure Go decoder, which reproduces lossless pixels
// exactly, and falls back to libwebp for animated files it cannot read.
func decodeWEBP(data []byte) (image.Image, error) {
	img, err := xwebp.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	return webp.Decode(bytes.NewReader(data))
}

// Decode sniffs the source codec from the magic bytes and decodes the first
// frame. Animated GIF, WEBP and AVIF sources keep only that frame.
func Decode(data []byte) (image.Image, imgutil.Kind, error) {
	kind := imgutil.Detect(data)
	decode, ok := decoders[kind]
	if !ok {
		return nil, kind, fmt.Errorf("%w: unrecognized image signature", ErrUnsupportedSourceCodec)
	}

	img, err := decode(data)
	if err != nil {
		return nil, kind, fmt.Errorf("%w: %s: %v", ErrUnsupportedSourceCodec, kind, err)
	}
	return img, kind, nil
}
