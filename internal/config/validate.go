package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateLocking(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateConversion() error {
	if c.Conversion.Size < 0 {
		return errors.New("conversion.size must be >= 0")
	}
	if c.Conversion.Threads < 0 {
		return errors.New("conversion.threads must be >= 0")
	}
	if c.Conversion.JPEGQuality < 1 || c.Conversion.JPEGQuality > 100 {
		return fmt.Errorf("conversion.jpeg_quality must be within 1..100, got %d", c.Conversion.JPEGQuality)
	}
	return nil
}

func (c *Config) validateLocking() error {
	if c.Locking.StaleAfterSeconds < 0 {
		return errors.New("locking.stale_after_seconds must be positive")
	}
	if c.Cache.MaxMemoryMB < 0 {
		return errors.New("cache.max_memory_mb must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
