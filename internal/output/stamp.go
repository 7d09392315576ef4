package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"thumbconv/internal/fileutil"
)

// StampSuffix is appended to an output path to name its stamp file.
const StampSuffix = ".stamp.toml"

// Stamp records the source a thumbnail was made from. It lives in a sidecar
// so the thumbnail itself carries no metadata.
type Stamp struct {
	SourcePath string    `toml:"source_path"`
	SourceSize int64     `toml:"source_size"`
	StampTime  time.Time `toml:"stamp_time"`
	ColorSpace string    `toml:"color_space"`
}

// StampPath returns the sidecar path for output.
func StampPath(output string) string {
	return output + StampSuffix
}

// WriteStamp atomically writes s next to output.
func WriteStamp(output string, s Stamp) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stamp: %w", err)
	}
	path := StampPath(output)
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write stamp: %w", err)
	}
	if err := fileutil.ReplaceFile(tmp, path); err != nil {
		_ = fileutil.RemoveIfExists(tmp)
		return fmt.Errorf("replace stamp: %w", err)
	}
	return nil
}

// ReadStamp loads the sidecar of output.
func ReadStamp(output string) (Stamp, error) {
	var s Stamp
	data, err := os.ReadFile(StampPath(output))
	if err != nil {
		return s, err
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode stamp: %w", err)
	}
	if strings.TrimSpace(s.SourcePath) == "" && s.SourceSize == 0 {
		return s, errors.New("stamp has no source information")
	}
	return s, nil
}

// RemoveStamp deletes the sidecar of output if present.
func RemoveStamp(output string) error {
	return fileutil.RemoveIfExists(StampPath(output))
}

// Freshness is the outcome of comparing a thumbnail with its source.
type Freshness int

const (
	Unknown  Freshness = -1
	Stale    Freshness = 0
	UpToDate Freshness = 1
)

func (f Freshness) String() string {
	switch f {
	case UpToDate:
		return "up to date"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// CheckUpToDate compares the size recorded in output's stamp with input's
// current size. A missing input, output or stamp yields Unknown.
func CheckUpToDate(input, output string) Freshness {
	size, err := fileutil.RegularFileSize(input)
	if err != nil {
		return Unknown
	}
	if !fileutil.NonEmpty(output) {
		return Unknown
	}
	s, err := ReadStamp(output)
	if err != nil {
		return Unknown
	}
	if s.SourceSize == size {
		return UpToDate
	}
	return Stale
}
