package imageio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"thumbconv/internal/media/ffmpeg"
	"thumbconv/internal/media/ffprobe"
)

const defaultMovieTimeout = 2 * time.Minute

var movieExtensions = []string{".mov", ".mp4", ".m4v", ".avi", ".mkv", ".webm"}

// MovieTools names the ffprobe and ffmpeg binaries the movie codec runs.
// Empty names resolve through PATH.
type MovieTools struct {
	FFprobe string
	FFmpeg  string
	Timeout time.Duration
}

type movieCodec struct {
	tools MovieTools
}

// MovieCodec returns a codec exposing every frame of a movie file as a
// subimage. Frames are decoded on demand by ffmpeg.
func MovieCodec(tools MovieTools) Codec {
	if tools.Timeout <= 0 {
		tools.Timeout = defaultMovieTimeout
	}
	return movieCodec{tools: tools}
}

func (movieCodec) Name() string { return "movie" }

func (movieCodec) Extensions() []string { return movieExtensions }

func (movieCodec) Capabilities() Capabilities {
	return Capabilities{Subimages: true}
}

func (c movieCodec) Open(path string) (Input, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.tools.Timeout)
	defer cancel()
	result, err := ffprobe.Inspect(ctx, c.tools.FFprobe, path)
	if err != nil {
		return nil, err
	}
	stream, ok := result.VideoStream()
	if !ok {
		return nil, fmt.Errorf("%s: no video stream", path)
	}
	frames := stream.FrameCount(result.DurationSeconds())
	fps := stream.FrameRate()
	if frames <= 0 || fps <= 0 || stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%s: cannot determine frames (%d at %g fps, %dx%d)", path, frames, fps, stream.Width, stream.Height)
	}
	return &movieInput{path: path, tools: c.tools, stream: stream, frames: frames, fps: fps}, nil
}

// movieInput re-runs ffmpeg against the file for each Read, so it stays
// readable after Close for as long as the file exists.
type movieInput struct {
	path   string
	tools  MovieTools
	stream ffprobe.Stream
	frames int
	fps    float64
}

func (in *movieInput) NumSubimages() int { return in.frames }

func (in *movieInput) NumMipLevels(subimage int) int {
	if subimage < 0 || subimage >= in.frames {
		return 0
	}
	return 1
}

func (in *movieInput) Spec(subimage, miplevel int) (Spec, error) {
	if subimage < 0 || subimage >= in.frames {
		return Spec{}, fmt.Errorf("subimage %d out of range [0,%d)", subimage, in.frames)
	}
	if miplevel != 0 {
		return Spec{}, fmt.Errorf("mip level %d not available", miplevel)
	}
	return Spec{
		Width:        in.stream.Width,
		Height:       in.stream.Height,
		ChannelNames: []string{"R", "G", "B"},
		ColorSpace:   DefaultColorSpace,
		Format:       "movie",
		Attributes: map[string]string{
			"frame": strconv.Itoa(subimage),
			"codec": in.stream.CodecName,
		},
	}, nil
}

func (in *movieInput) Read(subimage, miplevel int) (*Buffer, error) {
	spec, err := in.Spec(subimage, miplevel)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), in.tools.Timeout)
	defer cancel()
	data, err := ffmpeg.ExtractFrame(ctx, in.tools.FFmpeg, in.path, subimage, in.fps)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", subimage, err)
	}
	b := img.Bounds()
	spec.Width, spec.Height = b.Dx(), b.Dy()
	spec.ChannelNames = channelNamesFor(img)
	buf := NewBuffer(spec)
	fillBuffer(buf, img)
	return buf, nil
}

func (in *movieInput) Close() error { return nil }

// MemoryBytes reports the size of one decoded frame.
func (in *movieInput) MemoryBytes() int64 {
	return int64(in.stream.Width) * int64(in.stream.Height) * 4
}
