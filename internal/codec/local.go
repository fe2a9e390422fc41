package codec

import (
	"context"

	"comiconv/pkg/imgutil"
)

// Local transcodes images in-process. It holds no state and is safe for
// concurrent use by any number of workers.
type Local struct{}

// NewLocal returns the in-process transcoder.
func NewLocal() *Local {
	return &Local{}
}

// Transcode decodes src with the codec its magic bytes name and encodes it
// to the settings' target format. Codec calls are not interruptible; ctx is
// only checked before work starts.
func (l *Local) Transcode(ctx context.Context, src []byte, s Settings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, kind, err := Decode(src)
	if err != nil {
		return nil, err
	}
	if s.AutoOrient && kind == imgutil.KindJPEG {
		img = applyOrientation(img, exifOrientation(src))
	}

	return Encode(img, s)
}
