package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"comiconv/internal/codec"
	"comiconv/internal/logging"
)

const (
	// DefaultMaxBodyBytes bounds a decoded request body.
	DefaultMaxBodyBytes = 64 << 20
	// DefaultQueueWait is how long a request may wait for a free worker.
	// It stays below the client's default timeout.
	DefaultQueueWait = 90 * time.Second
)

type ServerOptions struct {
	// Workers caps concurrent conversions. Further requests queue for up
	// to QueueWait and then get 503.
	Workers      int
	QueueWait    time.Duration
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Server exposes a Transcoder over HTTP.
type Server struct {
	transcoder Transcoder
	slots      chan struct{}
	queueWait  time.Duration
	maxBody    int64
	logger     *slog.Logger
	mux        *http.ServeMux
}

// NewServer builds the conversion server handler.
func NewServer(transcoder Transcoder, opts ServerOptions) *Server {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	queueWait := opts.QueueWait
	if queueWait <= 0 {
		queueWait = DefaultQueueWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		transcoder: transcoder,
		slots:      make(chan struct{}, workers),
		queueWait:  queueWait,
		maxBody:    maxBody,
		logger:     logger.With("component", "remote-server"),
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc(TranscodePath, s.handleTranscode)
	s.mux.HandleFunc(HealthPath, s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, KindBadRequest, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "workers": cap(s.slots)})
}

func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, KindBadRequest, "method not allowed")
		return
	}

	requestID := r.Header.Get(HeaderRequestID)
	logger := s.logger.With("request_id", requestID)

	settings, err := parseSettings(r.Header)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, KindBadRequest, err.Error())
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	src, tooLarge, err := readBody(body, r.Header.Get("Content-Encoding"), s.maxBody)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, KindTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, KindBadRequest, err.Error())
		return
	}
	if tooLarge {
		s.writeError(w, http.StatusRequestEntityTooLarge, KindTooLarge, "request body too large")
		return
	}
	if len(src) == 0 {
		s.writeError(w, http.StatusBadRequest, KindBadRequest, "empty body")
		return
	}
	if want := r.Header.Get(HeaderChecksum); want != "" && !strings.EqualFold(want, checksum(src)) {
		s.writeError(w, http.StatusBadRequest, KindBadRequest, "checksum mismatch")
		return
	}

	if !s.acquire(r.Context()) {
		s.writeError(w, http.StatusServiceUnavailable, KindBusy, "all workers busy")
		return
	}
	out, err := func() ([]byte, error) {
		defer func() { <-s.slots }()
		return s.transcoder.Transcode(r.Context(), src, settings)
	}()
	if err != nil {
		switch {
		case errors.Is(err, codec.ErrUnsupportedSourceCodec):
			s.writeError(w, http.StatusUnprocessableEntity, KindUnsupportedSourceCodec, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, KindEncodeFailure, err.Error())
		}
		logger.Warn("transcode failed", "format", settings.Format.String(), "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(HeaderChecksum, checksum(out))
	if requestID != "" {
		w.Header().Set(HeaderRequestID, requestID)
	}
	payload := out
	if acceptsLZ4(r.Header) {
		if packed, err := compress(out); err == nil {
			w.Header().Set("Content-Encoding", encodingLZ4)
			payload = packed
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		logger.Debug("write response", "err", err)
		return
	}
	logger.Debug("transcoded", "format", settings.Format.String(), "in", len(src), "out", len(out))
}

// acquire waits for a worker slot until the queue wait expires or the
// client goes away.
func (s *Server) acquire(ctx context.Context) bool {
	timer := time.NewTimer(s.queueWait)
	defer timer.Stop()
	select {
	case s.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, errorBody{Kind: kind, Error: message})
}
