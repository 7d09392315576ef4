package services_test

import (
	"context"
	"testing"

	"thumbconv/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemIndex(ctx, 7)
	ctx = services.WithStage(ctx, "resize")
	ctx = services.WithRequestID(ctx, "req-123")

	if idx, ok := services.ItemIndexFromContext(ctx); !ok || idx != 7 {
		t.Fatalf("unexpected item index: %v %v", idx, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "resize" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ItemIndexFromContext(ctx); ok {
		t.Fatal("expected no item index")
	}
}
