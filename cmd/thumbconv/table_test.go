package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderTablePlainForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf,
		[]string{"#", "Output"},
		[][]string{{"0", "render.0.png"}, {"1"}},
		[]columnAlignment{alignRight},
	)
	if strings.ContainsAny(out, "╭╰│") {
		t.Fatalf("expected ASCII borders, got %q", out)
	}
	if !strings.Contains(out, "render.0.png") {
		t.Fatalf("missing row in %q", out)
	}
	if lines := strings.Count(out, "\n") + 1; lines < 5 {
		t.Fatalf("expected header, rows and borders, got %d lines", lines)
	}
}

func TestRenderTableWithoutHeaders(t *testing.T) {
	if out := renderTable(&bytes.Buffer{}, nil, [][]string{{"x"}}, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
