package services_test

import (
	"context"
	"testing"

	"tunesmith/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemKey(ctx, "song-42")
	ctx = services.WithStage(ctx, "polling")
	ctx = services.WithPipeline(ctx, "submission")
	ctx = services.WithRequestID(ctx, "req-123")

	if key, ok := services.ItemKeyFromContext(ctx); !ok || key != "song-42" {
		t.Fatalf("unexpected item key: %v %v", key, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "polling" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if pipeline, ok := services.PipelineFromContext(ctx); !ok || pipeline != "submission" {
		t.Fatalf("unexpected pipeline: %v %v", pipeline, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithItemKey(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ItemKeyFromContext(ctx); ok {
		t.Fatal("expected no item key")
	}
}
