package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"comiconv/internal/codec"
	"comiconv/internal/remote"
)

var (
	serveListen  string
	serveThreads int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept page conversions from other comiconv clients",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Remote.Listen = serveListen
		}
		if cmd.Flags().Changed("threads") {
			cfg.Convert.Threads = serveThreads
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		handler := remote.NewServer(codec.NewLocal(), remote.ServerOptions{
			Workers:      cfg.Convert.Threads,
			MaxBodyBytes: cfg.MaxBodyBytes(),
			Logger:       logger,
		})
		server := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Minute,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		}

		listener, err := net.Listen("tcp", cfg.Remote.Listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		logger.Info("conversion server listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		logger.Info("conversion server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8420", "address to listen on")
	serveCmd.Flags().IntVarP(&serveThreads, "threads", "t", 0, "concurrent conversions (default all CPUs)")

	rootCmd.AddCommand(serveCmd)
}
