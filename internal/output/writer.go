// Package output writes thumbnails to disk and records where they came from.
package output

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"thumbconv/internal/fileutil"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
)

// DefaultJPEGQuality is used when the writer is built with quality 0.
const DefaultJPEGQuality = 90

// Writer encodes 8-bit images by destination extension.
type Writer struct {
	jpegQuality int
	logger      *slog.Logger
}

// NewWriter returns a writer using jpegQuality for JPEG outputs.
func NewWriter(jpegQuality int, logger *slog.Logger) *Writer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Writer{jpegQuality: jpegQuality, logger: logging.NewComponentLogger(logger, "writer")}
}

// FallbackFormat encodes destinations whose extension has no encoder, such
// as render.mov. The caller's file name is kept.
const FallbackFormat = imaging.PNG

// EncodingFor returns the format used for dest and whether it is the
// fallback. A destination without an extension has no encoding.
func EncodingFor(dest string) (imaging.Format, bool, error) {
	if filepath.Ext(dest) == "" {
		return 0, false, fmt.Errorf("%q has no extension", filepath.Base(dest))
	}
	format, err := imaging.FormatFromFilename(dest)
	if err != nil {
		return FallbackFormat, true, nil
	}
	return format, false, nil
}

// Write encodes img into a temporary file beside dest and renames it into
// place. The result is verified to be non-empty; a bad result is removed.
// All failures carry services.ErrWrite.
func (w *Writer) Write(img image.Image, dest string) error {
	format, fallback, err := EncodingFor(dest)
	if err != nil {
		return services.Wrap(services.ErrWrite, "write", "select format", "", err)
	}
	if fallback {
		w.logger.Debug("no encoder for extension; writing PNG data",
			logging.String(logging.FieldOutput, dest))
	}
	dir := filepath.Dir(dest)
	if !fileutil.DirExists(dir) {
		return services.Wrap(services.ErrWrite, "write", "check directory", dir, os.ErrNotExist)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(dest), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return services.Wrap(services.ErrWrite, "write", "create temp file", "", err)
	}
	encodeErr := imaging.Encode(f, img, format, imaging.JPEGQuality(w.jpegQuality))
	closeErr := f.Close()
	if encodeErr != nil || closeErr != nil {
		_ = fileutil.RemoveIfExists(tmp)
		if encodeErr == nil {
			encodeErr = closeErr
		}
		return services.Wrap(services.ErrWrite, "write", "encode", format.String(), encodeErr)
	}
	if err := fileutil.ReplaceFile(tmp, dest); err != nil {
		_ = fileutil.RemoveIfExists(tmp)
		return services.Wrap(services.ErrWrite, "write", "rename into place", "", err)
	}

	if !fileutil.NonEmpty(dest) {
		w.logger.Warn("malformed output removed", logging.String(logging.FieldOutput, dest))
		if err := fileutil.RemoveIfExists(dest); err != nil {
			return services.Wrap(services.ErrWrite, "write", "remove malformed output", "", err)
		}
		return services.Wrap(services.ErrWrite, "write", "verify", "output is missing or empty", nil)
	}

	b := img.Bounds()
	w.logger.Debug("output written",
		logging.String(logging.FieldOutput, dest),
		logging.String("format", format.String()),
		logging.Int("width", b.Dx()),
		logging.Int("height", b.Dy()),
	)
	return nil
}
