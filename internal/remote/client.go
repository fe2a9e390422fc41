package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"comiconv/internal/codec"
	"comiconv/internal/logging"

	"github.com/google/uuid"
)

const (
	DefaultTimeout = 2 * time.Minute
	DefaultRetries = 2
	DefaultBackoff = 500 * time.Millisecond

	maxResponseBytes = 256 << 20
)

// ClientOptions tune a Client. Zero values select the defaults.
type ClientOptions struct {
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Compress bool
	// HTTPClient replaces the default client; its Timeout is left alone.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client sends transcode jobs to a conversion server. It never falls back to
// local conversion: an unreachable server fails the job.
type Client struct {
	endpoint   string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	compress   bool
	logger     *slog.Logger
}

// NewClient builds a client for addr, given either as "host:port" or as an
// http(s) URL.
func NewClient(addr string, opts ClientOptions) (*Client, error) {
	base, err := NormalizeAddress(addr)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		endpoint:   base + TranscodePath,
		httpClient: httpClient,
		retries:    retries,
		backoff:    backoff,
		compress:   opts.Compress,
		logger:     logger.With("component", "remote-client"),
	}, nil
}

// NormalizeAddress turns "host:port" into "http://host:port" and strips a
// trailing slash from URLs.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty server address", ErrRemoteTranscode)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		return "", fmt.Errorf("%w: unsupported server address %q", ErrRemoteTranscode, addr)
	}
	return strings.TrimRight(addr, "/"), nil
}

// Transcode sends src to the server and returns the encoded image. Transport
// errors and busy responses are retried with exponential backoff under one
// request ID; the job is a pure function of its inputs so replay is safe.
func (c *Client) Transcode(ctx context.Context, src []byte, s codec.Settings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s = s.Normalize()

	body := src
	if c.compress {
		packed, err := compress(src)
		if err != nil {
			return nil, fmt.Errorf("%w: compress request: %v", ErrRemoteTranscode, err)
		}
		body = packed
	}

	requestID := uuid.NewString()
	sum := checksum(src)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		out, retry, err := c.transcodeOnce(ctx, body, sum, requestID, s)
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("remote transcode succeeded after retry", "request_id", requestID, "attempt", attempt)
			}
			return out, nil
		}
		lastErr = err
		if !retry || attempt == c.retries {
			break
		}

		wait := c.backoff * time.Duration(1<<uint(attempt))
		c.logger.Debug("retrying remote transcode", "request_id", requestID, "attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *Client) transcodeOnce(ctx context.Context, body []byte, sum, requestID string, s codec.Settings) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRemoteTranscode, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept-Encoding", encodingLZ4)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set(HeaderChecksum, sum)
	if c.compress {
		req.Header.Set("Content-Encoding", encodingLZ4)
	}
	setSettings(req.Header, s)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, true, fmt.Errorf("%w: %v", ErrRemoteTranscode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode == http.StatusServiceUnavailable, statusError(resp)
	}

	out, tooLarge, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), maxResponseBytes)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrRemoteTranscode, err)
	}
	if tooLarge {
		return nil, false, fmt.Errorf("%w: response exceeds %d bytes", ErrRemoteTranscode, maxResponseBytes)
	}
	if want := resp.Header.Get(HeaderChecksum); want != "" && !strings.EqualFold(want, checksum(out)) {
		return nil, true, fmt.Errorf("%w: response checksum mismatch", ErrRemoteTranscode)
	}
	if len(out) == 0 {
		return nil, false, fmt.Errorf("%w: empty response", ErrRemoteTranscode)
	}
	return out, false, nil
}

// statusError maps a non-200 response onto an error. Codec kinds reported by
// the server stay matchable with errors.Is.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
	}

	switch eb.Kind {
	case KindUnsupportedSourceCodec:
		return fmt.Errorf("%w: %w: %s", ErrRemoteTranscode, codec.ErrUnsupportedSourceCodec, msg)
	case KindEncodeFailure:
		return fmt.Errorf("%w: %w: %s", ErrRemoteTranscode, codec.ErrEncodeFailure, msg)
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%w: server returned HTTP %d: %s", ErrRemoteTranscode, resp.StatusCode, msg)
}

// Ping checks the server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.endpoint, TranscodePath) + HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteTranscode, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteTranscode, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned HTTP %d", ErrRemoteTranscode, resp.StatusCode)
	}
	return nil
}

var _ Transcoder = (*Client)(nil)
