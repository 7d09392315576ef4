package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"thumbconv/internal/config"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	want := filepath.Join(tempHome, ".config", "thumbconv", "config.toml")
	if resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Conversion.Size != 512 {
		t.Fatalf("expected default size 512, got %d", cfg.Conversion.Size)
	}
	if cfg.Conversion.Threads != 0 {
		t.Fatalf("expected automatic threads, got %d", cfg.Conversion.Threads)
	}
	if cfg.StaleAfter() != 5*time.Minute {
		t.Fatalf("expected 5 minute stale window, got %s", cfg.StaleAfter())
	}
	if cfg.Cache.MaxMemoryMB != 2048 {
		t.Fatalf("unexpected cache budget: %d", cfg.Cache.MaxMemoryMB)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Tools.FFprobe != "ffprobe" || cfg.Tools.FFmpeg != "ffmpeg" {
		t.Fatalf("unexpected tool defaults: %+v", cfg.Tools)
	}
}

func TestLoadExplicitFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumbconv.toml")
	content := `
[conversion]
size = 256
threads = 3
jpeg_quality = 75
stamp = true
source_color_space = "  linear "

[locking]
stale_after_seconds = 60

[tools]
ffprobe = " /opt/ffmpeg/bin/ffprobe "

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Conversion.Size != 256 || cfg.Conversion.Threads != 3 || cfg.Conversion.JPEGQuality != 75 {
		t.Fatalf("unexpected conversion section: %+v", cfg.Conversion)
	}
	if !cfg.Conversion.Stamp {
		t.Fatal("expected stamp enabled")
	}
	if cfg.Conversion.SourceColorSpace != "linear" {
		t.Fatalf("expected trimmed colour space, got %q", cfg.Conversion.SourceColorSpace)
	}
	if cfg.StaleAfter() != time.Minute {
		t.Fatalf("unexpected stale window: %s", cfg.StaleAfter())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if cfg.Cache.MaxMemoryMB != 2048 {
		t.Fatalf("expected default cache budget to survive, got %d", cfg.Cache.MaxMemoryMB)
	}
	if cfg.Tools.FFprobe != "/opt/ffmpeg/bin/ffprobe" || cfg.Tools.FFmpeg != "ffmpeg" {
		t.Fatalf("unexpected tools section: %+v", cfg.Tools)
	}
}

func TestLoadProjectFileFromWorkingDirectory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "thumbconv.toml"), []byte("[conversion]\nsize = 128\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected project config to be found")
	}
	if cfg.Conversion.Size != 128 {
		t.Fatalf("unexpected size: %d", cfg.Conversion.Size)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative size":  "[conversion]\nsize = -1\n",
		"bad quality":    "[conversion]\njpeg_quality = 101\n",
		"bad format":     "[logging]\nformat = \"xml\"\n",
		"bad level":      "[logging]\nlevel = \"loud\"\n",
		"negative stale": "[locking]\nstale_after_seconds = -5\n",
		"unknown key":    "[conversion]\nmystery = 1\n",
		"malformed toml": "[conversion\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Conversion.Size = 300
	text, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal([]byte(text), &decoded); err != nil {
		t.Fatalf("decode encoded config: %v", err)
	}
	if decoded.Conversion.Size != 300 {
		t.Fatalf("unexpected decoded size: %d", decoded.Conversion.Size)
	}
	if !strings.Contains(text, "[conversion]") {
		t.Fatalf("expected conversion table in %q", text)
	}
}
