package imgutil

import "bytes"

// Kind identifies a supported image type.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindGIF
	KindBMP
	KindWEBP
	KindAVIF
	KindJXL
	KindTIFF
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindGIF:
		return "gif"
	case KindBMP:
		return "bmp"
	case KindWEBP:
		return "webp"
	case KindAVIF:
		return "avif"
	case KindJXL:
		return "jxl"
	case KindTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

var (
	pngSig     = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig    = []byte{0xff, 0xd8, 0xff}
	gif87Sig   = []byte("GIF87a")
	gif89Sig   = []byte("GIF89a")
	bmpSig     = []byte("BM")
	riffSig    = []byte("RIFF")
	webpSig    = []byte("WEBP")
	jxlCodeSig = []byte{0xff, 0x0a}
	jxlBoxSig  = []byte{0x00, 0x00, 0x00, 0x0c, 'J', 'X', 'L', ' ', 0x0d, 0x0a, 0x87, 0x0a}
	tiffSigLE  = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE  = []byte{0x4d, 0x4d, 0x00, 0x2a}
	ftypBox    = []byte("ftyp")
	avifBrands = [][]byte{[]byte("avif"), []byte("avis")}
)

// Detect reports the image kind encoded in the leading bytes of buf. Buffers
// that match no signature, including empty ones, are KindUnknown.
func Detect(buf []byte) Kind {
	switch {
	case bytes.HasPrefix(buf, jpegSig):
		return KindJPEG
	case bytes.HasPrefix(buf, pngSig):
		return KindPNG
	case bytes.HasPrefix(buf, gif87Sig), bytes.HasPrefix(buf, gif89Sig):
		return KindGIF
	case len(buf) >= 12 && bytes.HasPrefix(buf, riffSig) && bytes.Equal(buf[8:12], webpSig):
		return KindWEBP
	case bytes.HasPrefix(buf, jxlCodeSig), bytes.HasPrefix(buf, jxlBoxSig):
		return KindJXL
	case isAVIF(buf):
		return KindAVIF
	case bytes.HasPrefix(buf, tiffSigLE), bytes.HasPrefix(buf, tiffSigBE):
		return KindTIFF
	case isBMP(buf):
		return KindBMP
	}
	return KindUnknown
}

// isAVIF looks for an ISO-BMFF ftyp box whose major or compatible brands
// include an AVIF brand.
func isAVIF(buf []byte) bool {
	if len(buf) < 16 || !bytes.Equal(buf[4:8], ftypBox) {
		return false
	}
	size := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	if size < 16 {
		return false
	}
	if size > len(buf) {
		size = len(buf)
	}
	// major brand at 8, minor version at 12, compatible brands from 16
	for off := 8; off+4 <= size; off += 4 {
		if off == 12 {
			continue
		}
		for _, brand := range avifBrands {
			if bytes.Equal(buf[off:off+4], brand) {
				return true
			}
		}
	}
	return false
}

// isBMP checks the "BM" tag plus a sane DIB header size, so text members that
// happen to start with "BM" are not mistaken for bitmaps.
func isBMP(buf []byte) bool {
	if len(buf) < 18 || !bytes.HasPrefix(buf, bmpSig) {
		return false
	}
	dib := uint32(buf[14]) | uint32(buf[15])<<8 | uint32(buf[16])<<16 | uint32(buf[17])<<24
	switch dib {
	case 12, 40, 52, 56, 64, 108, 124:
		return true
	}
	return false
}
