// Package ffmpeg extracts single frames from movie files with the ffmpeg CLI.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExtractFrame decodes the frame at index (counted at fps) from path and
// returns it as PNG data.
func ExtractFrame(ctx context.Context, binary, path string, index int, fps float64) ([]byte, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ffmpeg extract: empty path")
	}
	if index < 0 || fps <= 0 {
		return nil, fmt.Errorf("ffmpeg extract: invalid frame %d at %g fps", index, fps)
	}

	seek := strconv.FormatFloat(float64(index)/fps, 'f', 6, 64)
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner", "-nostdin",
		"-ss", seek, "-i", path,
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg extract: no frame at %ss", seek)
	}
	return stdout.Bytes(), nil
}
