package config

const (
	defaultConfigPath        = "~/.config/thumbconv/config.toml"
	projectConfigName        = "thumbconv.toml"
	defaultSize              = 512
	defaultJPEGQuality       = 90
	defaultStaleAfterSeconds = 5 * 60
	defaultCacheMaxMemoryMB  = 2048
	defaultFFprobe           = "ffprobe"
	defaultFFmpeg            = "ffmpeg"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Conversion: Conversion{
			Size:        defaultSize,
			JPEGQuality: defaultJPEGQuality,
		},
		Locking: Locking{
			StaleAfterSeconds: defaultStaleAfterSeconds,
		},
		Cache: Cache{
			MaxMemoryMB: defaultCacheMaxMemoryMB,
		},
		Tools: Tools{
			FFprobe: defaultFFprobe,
			FFmpeg:  defaultFFmpeg,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
