package processor

import (
	"log/slog"
	"sync"
)

// Event describes one image entry of an archive.
type Event struct {
	Archive string
	// Total is the number of images in the archive.
	Total    int
	Index    int
	Name     string
	BytesIn  int64
	BytesOut int64
	Err      error
}

// ProgressSink receives per-image events. Calls arrive from worker
// goroutines, so implementations must be safe for concurrent use.
type ProgressSink interface {
	OnStart(Event)
	OnDone(Event)
	OnError(Event)
}

// NopSink ignores every event.
type NopSink struct{}

func (NopSink) OnStart(Event) {}
func (NopSink) OnDone(Event)  {}
func (NopSink) OnError(Event) {}

// LogSink reports events through a structured logger, for quiet or
// non-interactive runs.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) OnStart(ev Event) {
	s.Logger.Debug("converting page", "archive", ev.Archive, "index", ev.Index, "name", ev.Name)
}

func (s LogSink) OnDone(ev Event) {
	s.Logger.Debug("converted page", "archive", ev.Archive, "name", ev.Name, "in", ev.BytesIn, "out", ev.BytesOut)
}

func (s LogSink) OnError(ev Event) {
	s.Logger.Warn("page conversion failed", "archive", ev.Archive, "name", ev.Name, "err", ev.Err)
}

// ChannelSink turns events into ProgressUpdate deltas for the terminal UI.
// The first event of an archive contributes its image total.
type ChannelSink struct {
	updates chan<- ProgressUpdate
	mu      sync.Mutex
	seen    map[string]bool
}

func NewChannelSink(updates chan<- ProgressUpdate) *ChannelSink {
	return &ChannelSink{updates: updates, seen: make(map[string]bool)}
}

func (s *ChannelSink) announce(ev Event) {
	s.mu.Lock()
	first := !s.seen[ev.Archive]
	s.seen[ev.Archive] = true
	s.mu.Unlock()
	if first {
		s.updates <- ProgressUpdate{Archive: ev.Archive, TotalDelta: ev.Total}
	}
}

func (s *ChannelSink) OnStart(ev Event) {
	s.announce(ev)
}

func (s *ChannelSink) OnDone(ev Event) {
	s.updates <- ProgressUpdate{ProcessedDelta: 1, BytesSavedDelta: ev.BytesIn - ev.BytesOut}
}

func (s *ChannelSink) OnError(ev Event) {
	s.updates <- ProgressUpdate{ProcessedDelta: 1, ErrorDelta: 1}
}
