package transform_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"thumbconv/internal/services"
	"thumbconv/internal/testsupport"
	"thumbconv/internal/transform"
)

func TestFlattenCompositesFrontToBack(t *testing.T) {
	buf := testsupport.Deep(2, 1, []string{"R", "G", "B", "A"},
		[]float32{0.5, 0, 0, 0.5},
		[]float32{0, 0, 1, 1},
		[]float32{0, 1, 0, 1},
	)
	flat, err := transform.Flatten(buf)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if flat.Deep != nil || flat.Spec.Deep {
		t.Fatal("expected flat result")
	}
	want := []float32{0.5, 0, 0.5, 1}
	for i, v := range flat.Pixels[:4] {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Fatalf("got %v want %v", flat.Pixels[:4], want)
		}
	}
}

func TestFlattenEmptyPixelIsTransparent(t *testing.T) {
	buf := testsupport.Deep(1, 1, []string{"R", "G", "B", "A"})
	flat, err := transform.Flatten(buf)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if !slices.Equal(flat.Pixels, []float32{0, 0, 0, 0}) {
		t.Fatalf("unexpected pixel %v", flat.Pixels)
	}
}

func TestFlattenWithoutAlphaFails(t *testing.T) {
	buf := testsupport.Deep(1, 1, []string{"R", "G", "B"}, []float32{0.9, 0.8, 0.7}, []float32{0, 0, 0})
	out, err := transform.Flatten(buf)
	if !errors.Is(err, services.ErrFlatten) {
		t.Fatalf("expected flatten error, got %v", err)
	}
	if services.IsFatal(err) {
		t.Fatal("flatten errors must not be fatal")
	}
	if out != buf {
		t.Fatal("expected the input buffer back")
	}
	if !slices.Equal(out.Pixels, []float32{0.9, 0.8, 0.7}) {
		t.Fatalf("expected front sample, got %v", out.Pixels)
	}
}

func TestFlattenIgnoresFlatBuffers(t *testing.T) {
	buf := testsupport.Solid(2, 2, []string{"R", "G", "B"}, 1, 1, 1)
	out, err := transform.Flatten(buf)
	if err != nil || out != buf {
		t.Fatalf("expected no-op, got %v", err)
	}
}
