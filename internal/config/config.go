package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"comiconv/internal/archive"
	"comiconv/internal/codec"
)

// Convert holds the per-run conversion settings.
type Convert struct {
	Format  string `toml:"format"`
	Quality int    `toml:"quality"`
	Speed   int    `toml:"speed"`
	// Container overrides the output container (zip, tar, 7z); empty keeps
	// the source container, with RAR becoming ZIP.
	Container  string `toml:"container"`
	Threads    int    `toml:"threads"`
	Strict     bool   `toml:"strict"`
	Rename     bool   `toml:"rename"`
	AutoOrient bool   `toml:"auto_orient"`
	Backup     bool   `toml:"backup"`
	OutputDir  string `toml:"output_dir"`
	Quiet      bool   `toml:"quiet"`
}

// Remote configures the conversion server client and the serve command.
type Remote struct {
	Server         string `toml:"server"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
	Compress       bool   `toml:"compress"`
	Listen         string `toml:"listen"`
	MaxBodyMiB     int    `toml:"max_body_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for comiconv.
type Config struct {
	Convert Convert `toml:"convert"`
	Remote  Remote  `toml:"remote"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/comiconv/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; the defaults apply. COMICONV_SERVER overrides remote.server.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if server := strings.TrimSpace(os.Getenv("COMICONV_SERVER")); server != "" {
		cfg.Remote.Server = server
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("comiconv.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	c.Convert.Format = strings.ToLower(strings.TrimSpace(c.Convert.Format))
	c.Convert.Container = strings.ToLower(strings.TrimSpace(c.Convert.Container))
	c.Remote.Server = strings.TrimSpace(c.Remote.Server)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}

	var err error
	if c.Convert.OutputDir, err = expandPath(c.Convert.OutputDir); err != nil {
		return fmt.Errorf("convert.output_dir: %w", err)
	}
	return nil
}

// CodecSettings returns the encoder settings the config describes.
func (c *Config) CodecSettings() (codec.Settings, error) {
	format, err := codec.ParseFormat(c.Convert.Format)
	if err != nil {
		return codec.Settings{}, fmt.Errorf("convert.format: %w", err)
	}
	return codec.Settings{
		Format:     format,
		Quality:    c.Convert.Quality,
		Speed:      c.Convert.Speed,
		AutoOrient: c.Convert.AutoOrient,
	}, nil
}

// ContainerFormat returns the output container override, or
// archive.FormatUnknown when the source container is kept.
func (c *Config) ContainerFormat() (archive.Format, error) {
	if c.Convert.Container == "" {
		return archive.FormatUnknown, nil
	}
	format, err := archive.ParseFormat(c.Convert.Container)
	if err != nil {
		return archive.FormatUnknown, fmt.Errorf("convert.container: %w", err)
	}
	if !format.Writable() {
		return archive.FormatUnknown, fmt.Errorf("convert.container: %s archives cannot be written", format)
	}
	return format, nil
}

// RemoteTimeout returns the per-request deadline for remote jobs.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// MaxBodyBytes returns the serve command's request size limit.
func (c *Config) MaxBodyBytes() int64 {
	return int64(c.Remote.MaxBodyMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
