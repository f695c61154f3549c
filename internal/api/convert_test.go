package api

import (
	"testing"
	"time"

	"fileforge/internal/catalog"
	"fileforge/internal/orchestrator"
	"fileforge/internal/projector"
)

func TestFileItemFromView(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	file := &catalog.File{
		ID:           "f1",
		OwnerID:      "u1",
		OriginalName: "photo.png",
		SizeBytes:    100,
		ContentType:  "image/png",
		Status:       catalog.FileProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	pipeline := &catalog.Pipeline{
		ID:        "p1",
		FileID:    "f1",
		Actions:   []catalog.ActionKind{catalog.ActionThumbnail, catalog.ActionAITag},
		CreatedAt: now,
	}
	jobs := []*catalog.Job{
		{ID: "j1", PipelineID: "p1", Position: 0, Kind: catalog.ActionThumbnail, Status: catalog.JobSucceeded, Attempts: 1},
		{ID: "j2", PipelineID: "p1", Position: 1, Kind: catalog.ActionAITag, Status: catalog.JobRunning, Attempts: 1},
	}
	view := &orchestrator.FileView{
		File:     file,
		Status:   catalog.FileProcessing,
		Pipeline: pipeline,
		Jobs:     jobs,
		Outputs: []*catalog.File{
			{ID: "f2", OwnerID: "u1", OriginalName: "photo_thumb.png", Status: catalog.FileReady, ParentFileID: "f1", IsOutput: true},
		},
		Progress: projector.Progress{Total: 2, Succeeded: 1, Position: 1},
	}

	item := FileItemFromView(view)
	if item.ID != "f1" || item.Status != "processing" {
		t.Fatalf("item = %+v", item)
	}
	if item.Pipeline == nil || len(item.Pipeline.Jobs) != 2 {
		t.Fatalf("pipeline = %+v", item.Pipeline)
	}
	if item.Pipeline.Jobs[1].Queue != "ai_queue" {
		t.Fatalf("queue = %s", item.Pipeline.Jobs[1].Queue)
	}
	if item.Pipeline.Actions[0] != "thumbnail" {
		t.Fatalf("actions = %v", item.Pipeline.Actions)
	}
	if len(item.Outputs) != 1 || !item.Outputs[0].IsOutput {
		t.Fatalf("outputs = %+v", item.Outputs)
	}
	if item.Progress == nil || item.Progress.Position != 1 {
		t.Fatalf("progress = %+v", item.Progress)
	}
	if item.CreatedAt == "" {
		t.Fatal("timestamps should be formatted")
	}
}

func TestStatusFromSummary(t *testing.T) {
	resp := StatusFromSummary(&orchestrator.StatusSummary{
		Jobs: catalog.HealthSummary{Total: 4, Queued: 2, Running: 1, Succeeded: 1},
		QueueDepths: map[catalog.Family]int{
			catalog.FamilyImage: 2,
			catalog.FamilyAI:    0,
		},
	})
	if resp.JobCounts["queued"] != 2 || resp.JobCounts["total"] != 4 {
		t.Fatalf("counts = %v", resp.JobCounts)
	}
	if resp.QueueDepths["image_queue"] != 2 {
		t.Fatalf("depths = %v", resp.QueueDepths)
	}
}
