package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOpen            = errors.New("open error")
	ErrRead            = errors.New("read error")
	ErrLockContention  = errors.New("destination locked")
	ErrFlatten         = errors.New("flatten error")
	ErrColorConvert    = errors.New("color conversion error")
	ErrTransform       = errors.New("transform error")
	ErrWrite           = errors.New("write error")
	ErrNotASequence    = errors.New("not a sequence")
	ErrNoMatches       = errors.New("no matching files")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransform
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must fail a conversion. Flatten and colour
// conversion failures degrade the thumbnail instead of aborting it.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFlatten) || errors.Is(err, ErrColorConvert) {
		return false
	}
	return true
}

// IsSkip reports whether err means the item was left to another worker.
func IsSkip(err error) bool {
	return errors.Is(err, ErrLockContention)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "conversion failure"
	}
	return strings.Join(parts, ": ")
}
