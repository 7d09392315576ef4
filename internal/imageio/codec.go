package imageio

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned when no registered codec handles a path.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Capabilities advertises which source structures a codec can expose.
type Capabilities struct {
	Subimages bool
	MipLevels bool
	Deep      bool
}

// Codec opens files of one or more formats.
type Codec interface {
	Name() string
	Extensions() []string
	Capabilities() Capabilities
	Open(path string) (Input, error)
}

// Input is an opened source image. Inputs handed out by a Cache are closed
// when evicted, so a codec must keep decoded data readable for callers that
// still hold the input.
type Input interface {
	NumSubimages() int
	NumMipLevels(subimage int) int
	Spec(subimage, miplevel int) (Spec, error)
	Read(subimage, miplevel int) (*Buffer, error)
	Close() error
}

// Registry maps format names and file extensions to codecs.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Codec
	byExt  map[string]Codec
}

// NewRegistry builds a registry holding codecs. Later codecs win extension
// conflicts.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{byName: map[string]Codec{}, byExt: map[string]Codec{}}
	for _, c := range codecs {
		_ = r.Register(c)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(BuiltinCodecs(MovieTools{})...)
})

// BuiltinCodecs lists the codecs shipped with the module. tools configures
// the movie codec.
func BuiltinCodecs(tools MovieTools) []Codec {
	return []Codec{StdCodec(), EXRCodec(), MovieCodec(tools)}
}

// DefaultRegistry returns the process-wide registry with the built-in codecs.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Register adds a codec. Registering a second codec under the same name fails.
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return errors.New("register codec: nil codec")
	}
	name := strings.ToLower(strings.TrimSpace(c.Name()))
	if name == "" {
		return errors.New("register codec: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register codec: %q already registered", name)
	}
	r.byName[name] = c
	for _, ext := range c.Extensions() {
		r.byExt[normalizeExt(ext)] = c
	}
	return nil
}

// Lookup returns the codec responsible for path's extension.
func (r *Registry) Lookup(path string) (Codec, error) {
	ext := normalizeExt(filepath.Ext(path))
	r.mu.RLock()
	c, ok := r.byExt[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(path))
	}
	return c, nil
}

// ByName returns the codec registered under name.
func (r *Registry) ByName(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Supports reports whether some codec handles path's extension.
func (r *Registry) Supports(path string) bool {
	_, err := r.Lookup(path)
	return err == nil
}

// Extensions lists every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
