// Package remote moves single-image transcode jobs over HTTP. The Client
// implements the same Transcoder contract as codec.Local; the Server exposes
// any Transcoder to such clients.
package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"comiconv/internal/codec"

	"github.com/pierrec/lz4/v4"
)

// ErrRemoteTranscode wraps every failure of a remote job.
var ErrRemoteTranscode = errors.New("remote transcode failed")

// Transcoder converts one image.
type Transcoder interface {
	Transcode(ctx context.Context, src []byte, s codec.Settings) ([]byte, error)
}

const (
	TranscodePath = "/v1/transcode"
	HealthPath    = "/healthz"

	HeaderFormat     = "X-Comiconv-Format"
	HeaderQuality    = "X-Comiconv-Quality"
	HeaderSpeed      = "X-Comiconv-Speed"
	HeaderAutoOrient = "X-Comiconv-Auto-Orient"
	HeaderRequestID  = "X-Request-ID"
	HeaderChecksum   = "X-Content-SHA256"

	encodingLZ4 = "lz4"
)

// Error kinds carried in JSON error bodies.
const (
	KindBadRequest             = "bad_request"
	KindTooLarge               = "too_large"
	KindUnsupportedSourceCodec = "unsupported_source_codec"
	KindEncodeFailure          = "encode_failure"
	KindBusy                   = "busy"
)

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func setSettings(h http.Header, s codec.Settings) {
	h.Set(HeaderFormat, s.Format.String())
	h.Set(HeaderQuality, strconv.Itoa(s.Quality))
	h.Set(HeaderSpeed, strconv.Itoa(s.Speed))
	if s.AutoOrient {
		h.Set(HeaderAutoOrient, "true")
	}
}

func parseSettings(h http.Header) (codec.Settings, error) {
	s := codec.DefaultSettings()
	var err error
	if v := h.Get(HeaderFormat); v != "" {
		if s.Format, err = codec.ParseFormat(v); err != nil {
			return s, err
		}
	}
	if v := h.Get(HeaderQuality); v != "" {
		if s.Quality, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("quality: %w", err)
		}
	}
	if v := h.Get(HeaderSpeed); v != "" {
		if s.Speed, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("speed: %w", err)
		}
	}
	if v := h.Get(HeaderAutoOrient); v != "" {
		if s.AutoOrient, err = strconv.ParseBool(v); err != nil {
			return s, fmt.Errorf("auto-orient: %w", err)
		}
	}
	return s, s.Validate()
}

func acceptsLZ4(h http.Header) bool {
	for _, part := range strings.Split(h.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(part), encodingLZ4) {
			return true
		}
	}
	return false
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readBody reads at most limit decoded bytes from r, decompressing lz4 when
// encoding says so. It reports whether the limit was exceeded.
func readBody(r io.Reader, encoding string, limit int64) ([]byte, bool, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
	case encodingLZ4:
		r = lz4.NewReader(r)
	default:
		return nil, false, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	if limit <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return nil, true, nil
	}
	return data, false, nil
}
