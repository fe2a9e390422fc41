package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"comiconv/internal/archive"
	"comiconv/internal/codec"
)

var errBoom = errors.New("boom")

// fakeTranscoder prefixes its input, optionally failing on chosen inputs and
// recording peak concurrency.
type fakeTranscoder struct {
	delay    func(src []byte) time.Duration
	failOn   map[string]bool
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeTranscoder) Transcode(_ context.Context, src []byte, _ codec.Settings) ([]byte, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(src))
	}
	if f.failOn[string(src)] {
		return nil, errBoom
	}
	return append([]byte("conv-"), src...), nil
}

func imageEntries(n int) []archive.Entry {
	entries := make([]archive.Entry, 0, n+1)
	for i := 0; i < n; i++ {
		entries = append(entries, archive.Entry{
			Name: fmt.Sprintf("page%02d.png", i),
			Data: []byte(fmt.Sprintf("img-%d", i)),
			Role: archive.RoleImage,
		})
	}
	entries = append(entries, archive.Entry{Name: "ComicInfo.xml", Data: []byte("<ComicInfo/>"), Role: archive.RolePassthrough})
	return entries
}

func TestSchedulerPreservesOrder(t *testing.T) {
	entries := imageEntries(16)
	fake := &fakeTranscoder{delay: func(src []byte) time.Duration {
		// earlier pages finish last
		var i int
		fmt.Sscanf(string(src), "img-%d", &i)
		return time.Duration(16-i) * time.Millisecond
	}}

	out, stats, err := NewScheduler("book", Options{Transcoder: fake, Workers: 4}).Convert(context.Background(), entries)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(out), len(entries))
	}
	for i := 0; i < 16; i++ {
		want := fmt.Sprintf("conv-img-%d", i)
		if out[i].Name != entries[i].Name || string(out[i].Data) != want {
			t.Fatalf("entry %d = %s %q, want %s %q", i, out[i].Name, out[i].Data, entries[i].Name, want)
		}
	}
	last := out[len(out)-1]
	if last.Name != "ComicInfo.xml" || !bytes.Equal(last.Data, []byte("<ComicInfo/>")) {
		t.Fatalf("passthrough entry changed: %+v", last)
	}
	if stats.Images != 16 || stats.Converted != 16 || stats.Failed != 0 || stats.Entries != 17 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	fake := &fakeTranscoder{delay: func([]byte) time.Duration { return 5 * time.Millisecond }}

	_, _, err := NewScheduler("book", Options{Transcoder: fake, Workers: 3}).Convert(context.Background(), imageEntries(12))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if peak := fake.peak.Load(); peak > 3 || peak < 1 {
		t.Fatalf("peak concurrency = %d, want 1..3", peak)
	}
	if calls := fake.calls.Load(); calls != 12 {
		t.Fatalf("transcoder called %d times, want 12", calls)
	}
}

type countingSink struct {
	mu                   sync.Mutex
	starts, dones, fails int
}

func (c *countingSink) OnStart(Event) { c.mu.Lock(); c.starts++; c.mu.Unlock() }
func (c *countingSink) OnDone(Event)  { c.mu.Lock(); c.dones++; c.mu.Unlock() }
func (c *countingSink) OnError(Event) { c.mu.Lock(); c.fails++; c.mu.Unlock() }

func TestSchedulerBestEffortKeepsOriginal(t *testing.T) {
	entries := imageEntries(5)
	fake := &fakeTranscoder{failOn: map[string]bool{"img-2": true}}
	sink := &countingSink{}

	out, stats, err := NewScheduler("book", Options{Transcoder: fake, Workers: 2, Sink: sink}).Convert(context.Background(), entries)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(out[2].Data) != "img-2" {
		t.Fatalf("failed entry should keep original bytes, got %q", out[2].Data)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if string(out[i].Data) != fmt.Sprintf("conv-img-%d", i) {
			t.Fatalf("entry %d not converted: %q", i, out[i].Data)
		}
	}
	if stats.Converted != 4 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if sink.starts != 5 || sink.dones != 4 || sink.fails != 1 {
		t.Fatalf("unexpected sink counts: %+v", sink)
	}
}

func TestSchedulerStrictFailsArchive(t *testing.T) {
	fake := &fakeTranscoder{failOn: map[string]bool{"img-0": true}}

	out, _, err := NewScheduler("book", Options{Transcoder: fake, Workers: 1, Policy: PolicyStrict}).Convert(context.Background(), imageEntries(6))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if out != nil {
		t.Fatalf("strict failure should return no entries")
	}
	if calls := fake.calls.Load(); calls != 1 {
		t.Fatalf("strict mode started %d jobs, want only the failing one", calls)
	}
}

func TestSchedulerStrictStopsWithSlowPeers(t *testing.T) {
	fake := &fakeTranscoder{
		failOn: map[string]bool{"img-0": true},
		delay: func(src []byte) time.Duration {
			if string(src) == "img-0" {
				return 0
			}
			return 20 * time.Millisecond
		},
	}

	_, _, err := NewScheduler("book", Options{Transcoder: fake, Workers: 2, Policy: PolicyStrict}).Convert(context.Background(), imageEntries(10))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	// img-0 plus the page already running on the other worker
	if calls := fake.calls.Load(); calls > 2 {
		t.Fatalf("strict mode started %d jobs after the failure", calls-1)
	}
}

func TestSchedulerWithoutImages(t *testing.T) {
	entries := []archive.Entry{
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "extras/", Dir: true},
	}

	out, stats, err := NewScheduler("book", Options{}).Convert(context.Background(), entries)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 2 || out[0].Name != "notes.txt" || !out[1].Dir {
		t.Fatalf("unexpected entries: %+v", out)
	}
	if stats.Images != 0 || stats.BytesIn != stats.BytesOut {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSchedulerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewScheduler("book", Options{Transcoder: &fakeTranscoder{}}).Convert(ctx, imageEntries(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSchedulerRename(t *testing.T) {
	entries := []archive.Entry{
		{Name: "a.png", Data: []byte("a"), Role: archive.RoleImage},
		{Name: "a.webp", Data: []byte("keep"), Role: archive.RolePassthrough},
		{Name: "b.png", Data: []byte("b"), Role: archive.RoleImage},
		{Name: "c.PNG", Data: []byte("c"), Role: archive.RoleImage},
	}
	opts := Options{
		Transcoder: &fakeTranscoder{},
		Settings:   codec.Settings{Format: codec.FormatWEBP},
		Rename:     true,
	}

	out, _, err := NewScheduler("book", opts).Convert(context.Background(), entries)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []string{"a.png", "a.webp", "b.webp", "c.webp"}
	for i, name := range want {
		if out[i].Name != name {
			t.Fatalf("entry %d named %q, want %q", i, out[i].Name, name)
		}
	}
}

func TestChannelSinkDeltas(t *testing.T) {
	updates := make(chan ProgressUpdate, 64)
	sink := NewChannelSink(updates)
	fake := &fakeTranscoder{failOn: map[string]bool{"img-1": true}}

	_, _, err := NewScheduler("book.cbz", Options{Transcoder: fake, Workers: 2, Sink: sink}).Convert(context.Background(), imageEntries(3))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	close(updates)

	var total, processed, errs int
	for u := range updates {
		total += u.TotalDelta
		processed += u.ProcessedDelta
		errs += u.ErrorDelta
	}
	if total != 3 || processed != 3 || errs != 1 {
		t.Fatalf("total=%d processed=%d errors=%d", total, processed, errs)
	}
}
