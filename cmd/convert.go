package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"comiconv/internal/codec"
	"comiconv/internal/config"
	"comiconv/internal/logging"
	"comiconv/internal/processor"
	"comiconv/internal/remote"
	"comiconv/internal/tui"
)

var (
	convertFormat     string
	convertQuality    int
	convertSpeed      int
	convertContainer  string
	convertThreads    int
	convertServer     string
	convertOutputDir  string
	convertQuiet      bool
	convertBackup     bool
	convertStrict     bool
	convertRename     bool
	convertAutoOrient bool
)

func registerConvertFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&convertFormat, "format", "f", "", "target image format: avif, webp, jxl, jpeg or png (default avif)")
	flags.IntVarP(&convertQuality, "quality", "q", 0, "encoder quality 0-100; 101 means lossless for webp (default 30)")
	flags.IntVarP(&convertSpeed, "speed", "s", 0, "encoder speed 0-10, higher is faster (default 3)")
	flags.StringVarP(&convertContainer, "archive-type", "a", "", "write a different container: zip, tar or 7z")
	flags.IntVarP(&convertThreads, "threads", "t", 0, "concurrent page conversions per archive (default all CPUs)")
	flags.StringVar(&convertServer, "server", "", "convert pages on a comiconv server (host:port or URL)")
	flags.StringVarP(&convertOutputDir, "output", "o", "", "write converted archives to this directory instead of in place")
	flags.BoolVar(&convertQuiet, "quiet", false, "no progress display or summary")
	flags.BoolVarP(&convertBackup, "backup", "b", false, "keep the original archive as <file>.bak")
	flags.BoolVar(&convertStrict, "strict", false, "fail an archive on its first page error instead of keeping the page")
	flags.BoolVar(&convertRename, "rename", false, "give converted pages the target format's extension")
	flags.BoolVar(&convertAutoOrient, "auto-orient", false, "rotate JPEG pages by their EXIF orientation before encoding")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Lookup("format") != nil {
		applyConvertFlags(flags.Changed, &cfg.Convert, &cfg.Remote)
	}
	return cfg, cfg.Validate()
}

func applyConvertFlags(changed func(string) bool, c *config.Convert, r *config.Remote) {
	if changed("format") {
		c.Format = convertFormat
	}
	if changed("quality") {
		c.Quality = convertQuality
	}
	if changed("speed") {
		c.Speed = convertSpeed
	}
	if changed("archive-type") {
		c.Container = convertContainer
	}
	if changed("threads") {
		c.Threads = convertThreads
	}
	if changed("server") {
		r.Server = convertServer
	}
	if changed("output") {
		c.OutputDir = convertOutputDir
		if abs, err := config.ExpandPath(convertOutputDir); err == nil {
			c.OutputDir = abs
		}
	}
	if changed("quiet") {
		c.Quiet = convertQuiet
	}
	if changed("backup") {
		c.Backup = convertBackup
	}
	if changed("strict") {
		c.Strict = convertStrict
	}
	if changed("rename") {
		c.Rename = convertRename
	}
	if changed("auto-orient") {
		c.AutoOrient = convertAutoOrient
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

func newTranscoder(cfg *config.Config, logger *slog.Logger) (processor.Transcoder, error) {
	if cfg.Remote.Server == "" {
		return codec.NewLocal(), nil
	}
	return remote.NewClient(cfg.Remote.Server, remote.ClientOptions{
		Timeout:  cfg.RemoteTimeout(),
		Retries:  cfg.Remote.Retries,
		Compress: cfg.Remote.Compress,
		Logger:   logger,
	})
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	settings, err := cfg.CodecSettings()
	if err != nil {
		return err
	}
	container, err := cfg.ContainerFormat()
	if err != nil {
		return err
	}
	transcoder, err := newTranscoder(cfg, logger)
	if err != nil {
		return err
	}

	policy := processor.PolicyBestEffort
	if cfg.Convert.Strict {
		policy = processor.PolicyStrict
	}
	opts := processor.Options{
		Settings:   settings,
		Transcoder: transcoder,
		Workers:    cfg.Convert.Threads,
		Policy:     policy,
		Container:  container,
		OutputDir:  cfg.Convert.OutputDir,
		Backup:     cfg.Convert.Backup,
		Rename:     cfg.Convert.Rename,
		Logger:     logger,
		Sink:       processor.LogSink{Logger: logger},
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	useTUI := !cfg.Convert.Quiet && isTerminal(os.Stdout)

	var (
		summary processor.Summary
		reports []processor.Report
		runErr  error
	)
	if useTUI {
		summary, reports, runErr = runWithProgress(ctx, cancel, args, opts)
	} else {
		summary, reports, runErr = processor.Run(ctx, args, opts)
	}
	if runErr != nil {
		return runErr
	}

	if !cfg.Convert.Quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tui.RenderSummary(tui.SummaryRows(summary, time.Since(started))))
		if useTUI {
			if failures := tui.RenderFailures(reports); failures != "" {
				fmt.Fprintln(out, failures)
			}
		}
		if cfg.Convert.OutputDir != "" {
			fmt.Fprintf(out, "Converted archives written to: %s\n", filepath.Clean(cfg.Convert.OutputDir))
		}
	}

	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d archives failed", summary.Errors, summary.Total)
	}
	return nil
}

// runWithProgress drives the bubbletea view while the batch runs. Logs are
// silenced so they do not tear the view; failures are printed afterwards.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, paths []string, opts processor.Options) (processor.Summary, []processor.Report, error) {
	updates := make(chan processor.ProgressUpdate, 64)
	opts.Sink = processor.NewChannelSink(updates)
	opts.Logger = logging.NewNop()

	program := tea.NewProgram(tui.NewModel(updates))
	uiDone := make(chan struct{})
	go func() {
		final, err := program.Run()
		if m, ok := final.(tui.Model); err != nil || (ok && m.Interrupted()) {
			cancel()
		}
		close(uiDone)
		for range updates {
		}
	}()

	summary, reports, err := processor.Run(ctx, paths, opts)
	close(updates)
	<-uiDone
	return summary, reports, err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
