package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"comiconv/internal/archive"
	"comiconv/internal/backup"
	"comiconv/internal/logging"
)

// Run converts every archive found under paths, one archive at a time. A
// failed archive is logged and reported; the batch carries on.
func Run(ctx context.Context, paths []string, opts Options) (Summary, []Report, error) {
	summary := Summary{}
	logger := opts.logger()

	files, err := Discover(paths, opts.OutputDir)
	if err != nil {
		return summary, nil, err
	}

	reports := make([]Report, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, reports, err
		}

		report, err := ConvertFile(ctx, path, opts)
		summary.Total++
		summary.Images += report.Stats.Images
		summary.Failed += report.Stats.Failed
		if err != nil {
			if errors.Is(err, context.Canceled) {
				reports = append(reports, report)
				return summary, reports, err
			}
			summary.Errors++
			logger.Error("archive conversion failed", "path", path, "kind", ErrorKind(err), "err", err)
		} else {
			summary.Converted++
			summary.BytesSaved += report.Stats.BytesIn - report.Stats.BytesOut
			logger.Info("archive converted",
				"path", path,
				"output", report.Output,
				"images", report.Stats.Converted,
				"failed", report.Stats.Failed,
			)
		}
		reports = append(reports, report)
	}

	return summary, reports, nil
}

// ConvertFile converts one archive file: lock, read, classify, transcode,
// write to a staged file, then swap it into place. The original is untouched
// until the staged archive is complete.
func ConvertFile(ctx context.Context, path string, opts Options) (Report, error) {
	report := Report{Path: path}
	fail := func(err error) (Report, error) {
		report.Err = err
		return report, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(err)
	}
	if info.IsDir() {
		return fail(fmt.Errorf("%s: %w: is a directory", path, archive.ErrUnsupportedContainer))
	}

	lock, err := backup.Acquire(path)
	if err != nil {
		return fail(err)
	}
	defer lock.Release()

	a, err := archive.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	report.Source = a.Format

	target, err := targetFormat(a.Format, opts)
	if err != nil {
		return fail(err)
	}
	report.Target = target

	dest, err := resolveDestination(path, a.Format, target, opts)
	if err != nil {
		return fail(err)
	}

	converted, stats, err := ConvertArchive(ctx, a, opts)
	report.Stats = stats
	if err != nil {
		return fail(err)
	}
	entries := converted.Entries

	staged, err := backup.Stage(filepath.Dir(dest), info.Mode(), func(w io.Writer) error {
		return archive.Write(ctx, w, target, entries)
	})
	if err != nil {
		return fail(asWriteError(err))
	}

	inPlace := opts.OutputDir == ""
	backupPath, err := backup.Replace(staged, backup.Plan{
		Original:  path,
		Dest:      dest,
		Keep:      inPlace && opts.Backup,
		Supersede: inPlace,
	})
	report.Backup = backupPath
	if err != nil {
		if errors.Is(err, backup.ErrBackup) {
			return fail(err)
		}
		return fail(asWriteError(err))
	}

	report.Output = dest
	return report, nil
}

// ConvertArchive classifies and transcodes an in-memory archive and returns
// it re-targeted at its output container. a keeps its original entry data.
func ConvertArchive(ctx context.Context, a *archive.Archive, opts Options) (*archive.Archive, Stats, error) {
	target, err := targetFormat(a.Format, opts)
	if err != nil {
		return nil, Stats{}, err
	}

	ClassifyAll(a.Entries)
	label := filepath.Base(a.Path)
	if a.Path == "" {
		label = a.Format.String()
	}
	entries, stats, err := NewScheduler(label, opts).Convert(ctx, a.Entries)
	if err != nil {
		return nil, stats, err
	}
	return &archive.Archive{Path: a.Path, Format: target, Entries: entries}, stats, nil
}

func targetFormat(source archive.Format, opts Options) (archive.Format, error) {
	if opts.Container == archive.FormatUnknown {
		return archive.TargetFormat(source), nil
	}
	if !opts.Container.Writable() {
		return archive.FormatUnknown, fmt.Errorf("%w: cannot write %s containers", archive.ErrWrite, opts.Container)
	}
	return opts.Container, nil
}

func asWriteError(err error) error {
	if errors.Is(err, archive.ErrWrite) {
		return err
	}
	return fmt.Errorf("%w: %v", archive.ErrWrite, err)
}

// resolveDestination picks the output path. A container change swaps the
// extension for the target's conventional one; an output directory keeps
// the original where it is.
func resolveDestination(path string, source, target archive.Format, opts Options) (string, error) {
	name := filepath.Base(path)
	if target != source {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + target.Extension()
	}

	if opts.OutputDir == "" {
		dest := filepath.Join(filepath.Dir(path), name)
		if filepath.Clean(dest) != filepath.Clean(path) {
			if _, err := os.Lstat(dest); err == nil {
				return "", fmt.Errorf("%w: %s already exists", archive.ErrWrite, dest)
			}
		}
		return dest, nil
	}

	dest := filepath.Join(opts.OutputDir, name)
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	absSrc, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if filepath.Clean(absDest) == filepath.Clean(absSrc) {
		return "", fmt.Errorf("%w: output path resolves to input path; drop --output or pick another directory", archive.ErrWrite)
	}
	return dest, nil
}

// Discover expands paths into the archives to convert. Directories are walked
// recursively for archive extensions and sorted; an output directory nested
// inside one is skipped. Files named explicitly are kept whatever their
// extension.
func Discover(paths []string, outputDir string) ([]string, error) {
	var outputAbs string
	if outputDir != "" {
		if abs, err := filepath.Abs(outputDir); err == nil {
			outputAbs = filepath.Clean(abs)
		}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if outputAbs != "" && path != root {
					if abs, err := filepath.Abs(path); err == nil && isWithin(abs, outputAbs) {
						return fs.SkipDir
					}
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if archive.FormatForName(path) != archive.FormatUnknown {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return files, nil
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.NewNop()
}
