package processor

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"

	"comiconv/internal/archive"
	"comiconv/internal/codec"
	"comiconv/internal/logging"
)

// Scheduler converts the images of one archive on a bounded worker pool.
// Every archive gets its own Scheduler, so archives never share workers or
// results.
type Scheduler struct {
	transcoder Transcoder
	settings   codec.Settings
	workers    int
	policy     Policy
	rename     bool
	label      string
	sink       ProgressSink
	log        *slog.Logger
}

// NewScheduler builds a scheduler from opts. label names the archive in
// progress events.
func NewScheduler(label string, opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		transcoder: opts.Transcoder,
		settings:   opts.Settings,
		workers:    workers,
		policy:     opts.Policy,
		rename:     opts.Rename,
		label:      label,
		sink:       sink,
		log:        logger,
	}
}

// Convert transcodes every RoleImage entry and returns the full entry
// sequence in its original order. Passthrough entries never occupy a worker.
// Results land in a buffer indexed by entry position and are read only after
// all workers have exited, so completion order never leaks into the output.
//
// In strict mode the first failure stops further submissions; jobs already
// running finish but their results are dropped and the error is returned.
func (s *Scheduler) Convert(ctx context.Context, entries []archive.Entry) ([]archive.Entry, Stats, error) {
	stats := Stats{Entries: len(entries)}
	for _, e := range entries {
		if e.Role == archive.RoleImage {
			stats.Images++
		}
	}

	results := make([]Result, len(entries))
	if stats.Images > 0 {
		if s.transcoder == nil {
			return nil, stats, fmt.Errorf("no transcoder configured")
		}
		if err := s.run(ctx, entries, stats.Images, results); err != nil {
			return nil, stats, err
		}
	}

	return s.assemble(entries, results), statsFrom(entries, results, stats), nil
}

func (s *Scheduler) run(ctx context.Context, entries []archive.Entry, images int, results []Result) error {
	workers := s.workers
	if workers > images {
		workers = images
	}

	jobs := make(chan Job)
	stop := make(chan struct{})
	var (
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-stop:
					continue
				default:
				}
				res := s.process(ctx, job, images)
				results[job.Index] = res
				if res.Err != nil && s.policy == PolicyStrict {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("%s: %w", job.Name, res.Err)
						close(stop)
					})
				}
			}
		}()
	}

submit:
	for i, e := range entries {
		if e.Role != archive.RoleImage {
			continue
		}
		job := Job{Index: i, Name: e.Name, Source: e.Data, Settings: s.settings}
		select {
		case jobs <- job:
		case <-stop:
			break submit
		case <-ctx.Done():
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if firstErr != nil {
		s.log.Debug("strict mode abort", "archive", s.label, "err", firstErr)
		return firstErr
	}
	return nil
}

func (s *Scheduler) process(ctx context.Context, job Job, total int) Result {
	ev := Event{Archive: s.label, Total: total, Index: job.Index, Name: job.Name, BytesIn: int64(len(job.Source))}
	s.sink.OnStart(ev)

	out, err := s.transcoder.Transcode(ctx, job.Source, job.Settings)
	if err != nil {
		ev.Err = err
		s.sink.OnError(ev)
		return Result{Index: job.Index, Err: err, done: true}
	}

	ev.BytesOut = int64(len(out))
	s.sink.OnDone(ev)
	return Result{Index: job.Index, Data: out, SizeDelta: ev.BytesOut - ev.BytesIn, done: true}
}

// assemble builds the output sequence by index. A failed or unresolved image
// keeps its original bytes and name.
func (s *Scheduler) assemble(entries []archive.Entry, results []Result) []archive.Entry {
	out := make([]archive.Entry, len(entries))
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		taken[e.Name] = true
	}

	for i, e := range entries {
		out[i] = e
		if e.Role != archive.RoleImage {
			continue
		}
		res := results[i]
		if !res.done || res.Err != nil {
			if res.Err != nil {
				s.log.Warn("keeping original page", "archive", s.label, "name", e.Name, "err", res.Err)
			}
			continue
		}
		out[i].Data = res.Data
		if s.rename {
			if name := renamed(e.Name, s.settings.Format); name != e.Name && !taken[name] {
				delete(taken, e.Name)
				taken[name] = true
				out[i].Name = name
			}
		}
	}
	return out
}

func statsFrom(entries []archive.Entry, results []Result, stats Stats) Stats {
	for i, e := range entries {
		res := results[i]
		if e.Role != archive.RoleImage {
			stats.BytesIn += int64(len(e.Data))
			stats.BytesOut += int64(len(e.Data))
			continue
		}
		stats.BytesIn += int64(len(e.Data))
		if res.done && res.Err == nil {
			stats.Converted++
			stats.BytesOut += int64(len(res.Data))
		} else {
			stats.Failed++
			stats.BytesOut += int64(len(e.Data))
		}
	}
	return stats
}

// renamed swaps the extension of an entry name for the target format's.
func renamed(name string, f codec.Format) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + f.Extension()
}
