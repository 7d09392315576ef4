package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"thumbconv/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a default config with test-friendly overrides applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfgVal := config.Default()
	cfgVal.Conversion.Threads = 2
	cfgVal.Cache.MaxMemoryMB = 64

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSize sets the thumbnail size.
func WithSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Size = size
	}
}

// WithThreads sets the sequence worker count.
func WithThreads(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Threads = n
	}
}

// WithStamp enables source stamps next to outputs.
func WithStamp() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Stamp = true
	}
}

// WithSourceColorSpace overrides the declared source colour space.
func WithSourceColorSpace(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.SourceColorSpace = name
	}
}

// WriteConfigFile encodes cfg into a TOML file under a temp dir and returns
// its path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()

	text, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "thumbconv.toml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
