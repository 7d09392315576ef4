package output_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"thumbconv/internal/output"
)

func TestStampRoundTrip(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "thumb.png")
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	in := output.Stamp{SourcePath: "/shots/a.exr", SourceSize: 1234, StampTime: now, ColorSpace: "sRGB"}
	if err := output.WriteStamp(dest, in); err != nil {
		t.Fatalf("write stamp: %v", err)
	}
	got, err := output.ReadStamp(dest)
	if err != nil {
		t.Fatalf("read stamp: %v", err)
	}
	if got.SourcePath != in.SourcePath || got.SourceSize != in.SourceSize || !got.StampTime.Equal(now) {
		t.Fatalf("unexpected stamp %+v", got)
	}
	if _, err := os.Stat(output.StampPath(dest)); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	if err := output.RemoveStamp(dest); err != nil {
		t.Fatal(err)
	}
	if err := output.RemoveStamp(dest); err != nil {
		t.Fatal("expected repeated removal to succeed")
	}
}

func TestCheckUpToDate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dest := filepath.Join(dir, "thumb.png")

	if got := output.CheckUpToDate(src, dest); got != output.Unknown {
		t.Fatalf("missing input: got %v", got)
	}
	if err := os.WriteFile(src, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := output.CheckUpToDate(src, dest); got != output.Unknown {
		t.Fatalf("missing output: got %v", got)
	}
	if err := os.WriteFile(dest, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := output.CheckUpToDate(src, dest); got != output.Unknown {
		t.Fatalf("missing stamp: got %v", got)
	}

	if err := output.WriteStamp(dest, output.Stamp{SourcePath: src, SourceSize: 5, StampTime: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if got := output.CheckUpToDate(src, dest); got != output.UpToDate {
		t.Fatalf("expected up to date, got %v", got)
	}

	if err := os.WriteFile(src, []byte("123456"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := output.CheckUpToDate(src, dest); got != output.Stale {
		t.Fatalf("expected stale, got %v", got)
	}
	if output.Stale.String() != "stale" || output.Unknown.String() != "unknown" {
		t.Fatal("unexpected freshness names")
	}
}

func TestReadStampRejectsGarbage(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "thumb.png")
	if err := os.WriteFile(output.StampPath(dest), []byte("not = [toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := output.ReadStamp(dest); err == nil {
		t.Fatal("expected decode error")
	}
	if err := os.WriteFile(output.StampPath(dest), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := output.ReadStamp(dest); err == nil {
		t.Fatal("expected empty stamp error")
	}
}
