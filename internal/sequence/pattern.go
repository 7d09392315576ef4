package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"thumbconv/internal/services"
)

var (
	printfPlaceholder = regexp.MustCompile(`%0(\d+)d|%d`)
	hashPlaceholder   = regexp.MustCompile(`#+`)
	trailingSeparator = regexp.MustCompile(`[-_.\s]*$`)
)

// Pattern is a parsed sequence file name.
type Pattern struct {
	Dir     string
	Name    string
	Ext     string
	Padding int
	re      *regexp.Regexp
}

// Frame is one file of a discovered sequence.
type Frame struct {
	Path   string
	Name   string
	Number int
}

// ParsePattern turns input's file name into a matcher. printf placeholders
// (%04d, %d) take precedence over runs of '#'. Without a placeholder it
// fails with services.ErrNotASequence.
func ParsePattern(input string) (*Pattern, error) {
	name := filepath.Base(input)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	p := &Pattern{Dir: filepath.Dir(input), Name: name, Ext: ext}
	placeholders := printfPlaceholder.FindAllStringSubmatchIndex(stem, -1)
	hashes := false
	if len(placeholders) == 0 {
		placeholders = hashPlaceholder.FindAllStringIndex(stem, -1)
		hashes = true
	}
	if len(placeholders) == 0 {
		return nil, services.Wrap(services.ErrNotASequence, "sequence", "parse pattern",
			fmt.Sprintf("%q has no frame placeholder", name), nil)
	}

	var b strings.Builder
	b.WriteByte('^')
	last := 0
	for i, loc := range placeholders {
		b.WriteString(regexp.QuoteMeta(stem[last:loc[0]]))
		width := 0
		switch {
		case hashes:
			width = loc[1] - loc[0]
		case len(loc) >= 4 && loc[2] >= 0:
			width, _ = strconv.Atoi(stem[loc[2]:loc[3]])
		}
		if i == 0 {
			p.Padding = width
		}
		if width > 0 {
			fmt.Fprintf(&b, `(\d{%d})`, width)
		} else {
			b.WriteString(`(\d+)`)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(stem[last:]))
	b.WriteString(regexp.QuoteMeta(ext))
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, services.Wrap(services.ErrNotASequence, "sequence", "parse pattern", name, err)
	}
	p.re = re
	return p, nil
}

// Match reports whether name belongs to the sequence and returns the number
// in its first placeholder.
func (p *Pattern) Match(name string) (int, bool) {
	m := p.re.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Regexp returns the compiled file name matcher.
func (p *Pattern) Regexp() string { return p.re.String() }

// Discover lists the regular files in the pattern's directory that match
// input, ordered by frame number then name. An empty result fails with
// services.ErrNoMatches.
func Discover(input string) (*Pattern, []Frame, error) {
	p, err := ParsePattern(input)
	if err != nil {
		return nil, nil, err
	}
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return p, nil, services.Wrap(services.ErrInvalidArgument, "sequence", "list directory", p.Dir, err)
	}

	var frames []Frame
	for _, entry := range entries {
		n, ok := p.Match(entry.Name())
		if !ok {
			continue
		}
		info, err := os.Stat(filepath.Join(p.Dir, entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		frames = append(frames, Frame{Path: filepath.Join(p.Dir, entry.Name()), Name: entry.Name(), Number: n})
	}
	if len(frames) == 0 {
		return p, nil, services.Wrap(services.ErrNoMatches, "sequence", "discover",
			fmt.Sprintf("no files match %s in %s", p.Name, p.Dir), nil)
	}
	slices.SortFunc(frames, func(a, b Frame) int {
		if a.Number != b.Number {
			return a.Number - b.Number
		}
		return strings.Compare(a.Name, b.Name)
	})
	return p, frames, nil
}

// OutputPath names the index-th output of a sequence written to output:
// trailing separators are stripped from output's stem and the index is
// inserted before the extension.
func OutputPath(output string, index int) (string, error) {
	ext := filepath.Ext(output)
	if ext == "" {
		return "", services.Wrap(services.ErrInvalidArgument, "sequence", "output path",
			fmt.Sprintf("%q has no extension", output), nil)
	}
	base := strings.TrimSuffix(filepath.Base(output), ext)
	stem := trailingSeparator.ReplaceAllString(base, "")
	return filepath.Join(filepath.Dir(output), fmt.Sprintf("%s.%d%s", stem, index, ext)), nil
}
