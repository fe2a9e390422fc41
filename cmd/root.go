package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "comiconv [flags] <archive|dir>...",
	Short: "comiconv - re-encode the pages of comic archives",
	Long: "comiconv converts the images inside CBZ/CBR/CB7/CBT archives to AVIF, WEBP, JXL, JPEG or PNG,\n" +
		"keeping every other entry and the page order intact. RAR archives are rewritten as CBZ.",
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConvert,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/comiconv/config.toml or ./comiconv.toml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "log format: console or json")

	registerConvertFlags(rootCmd)
}
