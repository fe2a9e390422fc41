package processor

import (
	"context"
	"log/slog"

	"comiconv/internal/archive"
	"comiconv/internal/codec"
)

// Transcoder converts one image. codec.Local and remote.Client implement it;
// the scheduler never knows which one it was given.
type Transcoder interface {
	Transcode(ctx context.Context, src []byte, s codec.Settings) ([]byte, error)
}

// Policy decides what a failed image does to its archive.
type Policy int

const (
	// PolicyBestEffort keeps the original bytes of a failed image and carries on.
	PolicyBestEffort Policy = iota
	// PolicyStrict fails the whole archive on the first image error.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "best-effort"
}

type Options struct {
	Settings   codec.Settings
	Transcoder Transcoder
	Workers    int
	Policy     Policy
	// Container overrides the output container; FormatUnknown follows the source.
	Container archive.Format
	// OutputDir receives converted copies; empty converts in place.
	OutputDir string
	Backup    bool
	// Rename gives converted images the target format's extension.
	Rename bool
	Logger *slog.Logger
	Sink   ProgressSink
}

// Job is one image handed to a worker.
type Job struct {
	Index    int
	Name     string
	Source   []byte
	Settings codec.Settings
}

// Result is the outcome of exactly one Job.
type Result struct {
	Index     int
	Data      []byte
	SizeDelta int64
	Err       error
	done      bool
}

// Stats summarises one archive's conversion.
type Stats struct {
	Entries   int
	Images    int
	Converted int
	Failed    int
	BytesIn   int64
	BytesOut  int64
}

// Report is the outcome of converting one archive file.
type Report struct {
	Path   string
	Output string
	Backup string
	Source archive.Format
	Target archive.Format
	Stats  Stats
	Err    error
}

type Summary struct {
	Total      int
	Converted  int
	Errors     int
	Images     int
	Failed     int
	BytesSaved int64
}

// ProgressUpdate carries counter deltas to a UI.
type ProgressUpdate struct {
	Archive         string
	TotalDelta      int
	ProcessedDelta  int
	ErrorDelta      int
	BytesSavedDelta int64
}
