package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"comiconv/internal/codec"
)

type recordingTranscoder struct {
	mu       sync.Mutex
	got      [][]byte
	settings []codec.Settings
	err      error
}

func (r *recordingTranscoder) Transcode(_ context.Context, src []byte, s codec.Settings) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, append([]byte(nil), src...))
	r.settings = append(r.settings, s)
	if r.err != nil {
		return nil, r.err
	}
	out := make([]byte, len(src))
	for i, b := range src {
		out[len(src)-1-i] = b
	}
	return out, nil
}

func newTestClient(t *testing.T, url string, opts ClientOptions) *Client {
	t.Helper()
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	client, err := NewClient(url, opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClientServerRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			fake := &recordingTranscoder{}
			srv := httptest.NewServer(NewServer(fake, ServerOptions{Workers: 2}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, ClientOptions{Compress: compress})
			src := bytes.Repeat([]byte("page-bytes "), 200)
			settings := codec.Settings{Format: codec.FormatWEBP, Quality: 101, Speed: 3, AutoOrient: true}

			out, err := client.Transcode(context.Background(), src, settings)
			if err != nil {
				t.Fatalf("Transcode: %v", err)
			}
			if len(out) != len(src) || out[0] != src[len(src)-1] {
				t.Fatalf("unexpected response body")
			}
			if len(fake.got) != 1 || !bytes.Equal(fake.got[0], src) {
				t.Fatalf("server saw a different body")
			}
			if fake.settings[0] != settings {
				t.Fatalf("settings = %+v, want %+v", fake.settings[0], settings)
			}
		})
	}
}

func TestClientWithLocalTranscoder(t *testing.T) {
	srv := httptest.NewServer(NewServer(codec.NewLocal(), ServerOptions{}))
	defer srv.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 12, 7))
	for y := 0; y < 7; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	client := newTestClient(t, srv.URL, ClientOptions{})
	out, err := client.Transcode(context.Background(), buf.Bytes(), codec.Settings{Format: codec.FormatJPEG, Quality: 80})
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if decoded.Bounds().Dx() != 12 || decoded.Bounds().Dy() != 7 {
		t.Fatalf("dimensions = %v", decoded.Bounds())
	}
}

func TestClientMapsCodecErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unsupported", fmt.Errorf("decode: %w", codec.ErrUnsupportedSourceCodec), codec.ErrUnsupportedSourceCodec},
		{"encode", fmt.Errorf("avif: %w", codec.ErrEncodeFailure), codec.ErrEncodeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewServer(&recordingTranscoder{err: tt.err}, ServerOptions{}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, ClientOptions{Retries: 3})
			_, err := client.Transcode(context.Background(), []byte("data"), codec.DefaultSettings())
			if !errors.Is(err, ErrRemoteTranscode) {
				t.Fatalf("expected ErrRemoteTranscode, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClientRetriesBusyServer(t *testing.T) {
	fake := &recordingTranscoder{}
	inner := NewServer(fake, ServerOptions{})
	var calls atomic.Int32
	var ids sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids.Store(r.Header.Get(HeaderRequestID), true)
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, ClientOptions{Retries: 2})
	if _, err := client.Transcode(context.Background(), []byte("abc"), codec.DefaultSettings()); err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	distinct := 0
	ids.Range(func(_, _ any) bool { distinct++; return true })
	if distinct != 1 {
		t.Fatalf("expected one request id across retries, got %d", distinct)
	}
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, ClientOptions{Retries: 1})
	_, err := client.Transcode(context.Background(), []byte("abc"), codec.DefaultSettings())
	if !errors.Is(err, ErrRemoteTranscode) {
		t.Fatalf("expected ErrRemoteTranscode, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClientUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url, ClientOptions{Retries: 0, Timeout: time.Second})
	_, err := client.Transcode(context.Background(), []byte("abc"), codec.DefaultSettings())
	if !errors.Is(err, ErrRemoteTranscode) {
		t.Fatalf("expected ErrRemoteTranscode, got %v", err)
	}
}

func TestClientTimeoutIsRemoteError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, ClientOptions{Timeout: 30 * time.Millisecond, Retries: 1})
	_, err := client.Transcode(context.Background(), []byte("abc"), codec.DefaultSettings())
	if !errors.Is(err, ErrRemoteTranscode) {
		t.Fatalf("expected ErrRemoteTranscode, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		t.Fatalf("timeout leaked as a context error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected the timed out request to be retried once, got %d attempts", calls.Load())
	}
}

func TestClientCancelledContext(t *testing.T) {
	client := newTestClient(t, "127.0.0.1:1", ClientOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Transcode(ctx, []byte("abc"), codec.DefaultSettings()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestServerRejectsBadRequests(t *testing.T) {
	srv := NewServer(&recordingTranscoder{}, ServerOptions{MaxBodyBytes: 16})

	tests := []struct {
		name    string
		method  string
		body    string
		headers map[string]string
		status  int
	}{
		{"method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"format", http.MethodPost, "abc", map[string]string{HeaderFormat: "gif"}, http.StatusBadRequest},
		{"quality", http.MethodPost, "abc", map[string]string{HeaderQuality: "200"}, http.StatusBadRequest},
		{"speed", http.MethodPost, "abc", map[string]string{HeaderSpeed: "fast"}, http.StatusBadRequest},
		{"empty", http.MethodPost, "", nil, http.StatusBadRequest},
		{"checksum", http.MethodPost, "abc", map[string]string{HeaderChecksum: checksum([]byte("xyz"))}, http.StatusBadRequest},
		{"encoding", http.MethodPost, "abc", map[string]string{"Content-Encoding": "br"}, http.StatusBadRequest},
		{"too large", http.MethodPost, strings.Repeat("x", 64), nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, TranscodePath, strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

type blockingTranscoder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTranscoder) Transcode(_ context.Context, src []byte, _ codec.Settings) ([]byte, error) {
	b.started <- struct{}{}
	<-b.release
	return src, nil
}

func TestServerQueuesWhenSlotsTaken(t *testing.T) {
	bt := &blockingTranscoder{started: make(chan struct{}, 2), release: make(chan struct{})}
	srv := NewServer(bt, ServerOptions{Workers: 1})

	codes := make(chan int, 2)
	serve := func(body string) {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, TranscodePath, strings.NewReader(body)))
		codes <- w.Code
	}
	go serve("first")
	<-bt.started
	go serve("second")

	select {
	case code := <-codes:
		t.Fatalf("request finished with %d while the only worker was busy", code)
	case <-time.After(30 * time.Millisecond):
	}

	close(bt.release)
	for i := 0; i < 2; i++ {
		if code := <-codes; code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
	}
}

func TestServerBusyAfterQueueWait(t *testing.T) {
	bt := &blockingTranscoder{started: make(chan struct{}, 1), release: make(chan struct{})}
	srv := NewServer(bt, ServerOptions{Workers: 1, QueueWait: 10 * time.Millisecond})

	done := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, TranscodePath, strings.NewReader("first")))
		done <- w.Code
	}()
	<-bt.started

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, TranscodePath, strings.NewReader("second")))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after the queue wait, got %d", w.Code)
	}

	close(bt.release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
}

type slowTranscoder struct{ delay time.Duration }

func (s slowTranscoder) Transcode(_ context.Context, src []byte, _ codec.Settings) ([]byte, error) {
	time.Sleep(s.delay)
	return src, nil
}

func TestClientPoolLargerThanServer(t *testing.T) {
	srv := httptest.NewServer(NewServer(slowTranscoder{delay: 30 * time.Millisecond}, ServerOptions{Workers: 2}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, ClientOptions{})
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := client.Transcode(context.Background(), []byte(fmt.Sprintf("page-%d", i)), codec.DefaultSettings()); err != nil {
				t.Logf("page %d: %v", i, err)
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if n := failed.Load(); n != 0 {
		t.Fatalf("%d of 6 pages failed against a two-worker server", n)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(&recordingTranscoder{}, ServerOptions{}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/", ClientOptions{})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"localhost:8420", "http://localhost:8420", false},
		{"http://10.0.0.2:8420/", "http://10.0.0.2:8420", false},
		{"https://convert.example.com", "https://convert.example.com", false},
		{"  ", "", true},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("NormalizeAddress(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("NormalizeAddress(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
