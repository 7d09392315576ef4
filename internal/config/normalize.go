package config

import "strings"

func (c *Config) normalize() {
	c.normalizeConversion()
	c.normalizeLocking()
	c.normalizeTools()
	c.normalizeLogging()
}

func (c *Config) normalizeConversion() {
	c.Conversion.SourceColorSpace = strings.TrimSpace(c.Conversion.SourceColorSpace)
	if c.Conversion.JPEGQuality == 0 {
		c.Conversion.JPEGQuality = defaultJPEGQuality
	}
}

func (c *Config) normalizeLocking() {
	if c.Locking.StaleAfterSeconds == 0 {
		c.Locking.StaleAfterSeconds = defaultStaleAfterSeconds
	}
	if c.Cache.MaxMemoryMB == 0 {
		c.Cache.MaxMemoryMB = defaultCacheMaxMemoryMB
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
