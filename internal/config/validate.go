package config

import (
	"errors"
	"fmt"

	"comiconv/internal/codec"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConvert(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateConvert() error {
	settings, err := c.CodecSettings()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if settings.Quality == codec.QualityLossless && settings.Format != codec.FormatWEBP {
		return fmt.Errorf("convert.quality %d is only valid for webp", codec.QualityLossless)
	}
	if _, err := c.ContainerFormat(); err != nil {
		return err
	}
	if c.Convert.Threads < 0 {
		return errors.New("convert.threads must be zero (all CPUs) or positive")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.TimeoutSeconds <= 0 {
		return errors.New("remote.timeout_seconds must be positive")
	}
	if c.Remote.Retries < 0 {
		return errors.New("remote.retries must not be negative")
	}
	if c.Remote.MaxBodyMiB <= 0 {
		return errors.New("remote.max_body_mib must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
