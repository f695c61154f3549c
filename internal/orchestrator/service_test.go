package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/objectstore"
	"fileforge/internal/orchestrator"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

type fixture struct {
	store   *catalog.Store
	objects *objectstore.Memory
	bus     *broker.MemoryBroker
	svc     *orchestrator.Service
	cfg     config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	objects := objectstore.NewMemory()
	bus := broker.NewMemory()
	t.Cleanup(func() { _ = bus.Close() })

	cfg := config.Default()
	cfg.Pipeline.MaxActions = 4
	dispatcher := worker.NewDispatcher(store, bus, nil)
	svc := orchestrator.New(store, objects, bus, dispatcher, nil, &cfg, nil)
	return &fixture{store: store, objects: objects, bus: bus, svc: svc, cfg: cfg}
}

func (f *fixture) upload(t *testing.T, name, content string) *catalog.File {
	t.Helper()
	file, err := f.svc.Upload(context.Background(), orchestrator.UploadRequest{
		OwnerID:     "user-1",
		Name:        name,
		ContentType: "application/octet-stream",
		Body:        strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return file
}

func TestUploadStoresBytesAndTransitions(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "report.pdf", "pdf bytes")

	if file.Status != catalog.FileProcessing {
		t.Fatalf("status = %s, want processing", file.Status)
	}
	if file.StorageKey == "" || file.SizeBytes != 9 {
		t.Fatalf("storage not recorded: %+v", file)
	}

	rc, err := f.objects.Get(context.Background(), file.StorageKey)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "pdf bytes" {
		t.Fatalf("blob content = %q", data)
	}
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Upload(context.Background(), orchestrator.UploadRequest{
		OwnerID: "", Name: "x", Body: strings.NewReader("y"),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing owner should be a validation error, got %v", err)
	}
	_, err = f.svc.Upload(context.Background(), orchestrator.UploadRequest{
		OwnerID: "u", Name: "   ", Body: strings.NewReader("y"),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing name should be a validation error, got %v", err)
	}
}

func TestStartPipelineActivatesFirstJob(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "photo.png", "image bytes")

	pipeline, jobs, err := f.svc.StartPipeline(context.Background(), file.ID, []orchestrator.ActionRequest{
		{Kind: "thumbnail"},
		{Kind: "virus_scan"},
	})
	if err != nil {
		t.Fatalf("start pipeline: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d", len(jobs))
	}

	first, err := f.store.GetJob(context.Background(), jobs[0].ID)
	if err != nil {
		t.Fatalf("get first job: %v", err)
	}
	if first.Status != catalog.JobQueued {
		t.Fatalf("first job status = %s, want queued", first.Status)
	}
	second, _ := f.store.GetJob(context.Background(), jobs[1].ID)
	if second.Status != catalog.JobPending {
		t.Fatalf("second job status = %s, want pending", second.Status)
	}

	if depth := f.bus.Depth(catalog.FamilyImage.QueueName()); depth != 1 {
		t.Fatalf("image queue depth = %d, want 1", depth)
	}
	if pipeline.Actions[1] != catalog.ActionVirusScan {
		t.Fatalf("actions = %v", pipeline.Actions)
	}
}

func TestStartPipelineValidation(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "a.bin", "bytes")
	ctx := context.Background()

	cases := []struct {
		name    string
		fileID  string
		actions []orchestrator.ActionRequest
		marker  error
	}{
		{"unknown kind", file.ID, []orchestrator.ActionRequest{{Kind: "resize"}}, services.ErrValidation},
		{"missing file", "nope", []orchestrator.ActionRequest{{Kind: "thumbnail"}}, services.ErrNotFound},
		{"too many", file.ID, []orchestrator.ActionRequest{
			{Kind: "thumbnail"}, {Kind: "thumbnail"}, {Kind: "thumbnail"},
			{Kind: "thumbnail"}, {Kind: "thumbnail"},
		}, services.ErrValidation},
	}
	for _, tc := range cases {
		_, _, err := f.svc.StartPipeline(ctx, tc.fileID, tc.actions)
		if !errors.Is(err, tc.marker) {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
}

func TestStartPipelineEmptyActionsYieldsReadyFile(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "a.bin", "bytes")
	ctx := context.Background()

	pipeline, jobs, err := f.svc.StartPipeline(ctx, file.ID, nil)
	if err != nil {
		t.Fatalf("empty pipeline: %v", err)
	}
	if pipeline == nil {
		t.Fatal("pipeline should be recorded")
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}

	view, err := f.svc.FileView(ctx, file.ID)
	if err != nil {
		t.Fatalf("file view: %v", err)
	}
	if view.Status != catalog.FileReady {
		t.Fatalf("status = %s, want %s", view.Status, catalog.FileReady)
	}
	if view.Pipeline == nil {
		t.Fatal("view should carry the recorded pipeline")
	}
	for _, family := range catalog.AllFamilies() {
		if depth := f.bus.Depth(family.QueueName()); depth != 0 {
			t.Fatalf("no envelopes should be published, %s depth = %d", family, depth)
		}
	}
}

func TestStartPipelineRejectsSecondPipeline(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "a.bin", "bytes")
	ctx := context.Background()

	if _, _, err := f.svc.StartPipeline(ctx, file.ID, []orchestrator.ActionRequest{{Kind: "encrypt"}}); err != nil {
		t.Fatalf("first pipeline: %v", err)
	}
	_, _, err := f.svc.StartPipeline(ctx, file.ID, []orchestrator.ActionRequest{{Kind: "encrypt"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second pipeline should be rejected, got %v", err)
	}
}

func TestFileViewProjectsStatus(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "a.png", "bytes")
	ctx := context.Background()

	view, err := f.svc.FileView(ctx, file.ID)
	if err != nil {
		t.Fatalf("file view: %v", err)
	}
	if view.Status != catalog.FileReady {
		t.Fatalf("no pipeline: status = %s, want ready", view.Status)
	}

	_, jobs, err := f.svc.StartPipeline(ctx, file.ID, []orchestrator.ActionRequest{{Kind: "thumbnail"}})
	if err != nil {
		t.Fatalf("start pipeline: %v", err)
	}

	view, err = f.svc.FileView(ctx, file.ID)
	if err != nil {
		t.Fatalf("file view: %v", err)
	}
	if view.Status != catalog.FileProcessing {
		t.Fatalf("in flight: status = %s, want processing", view.Status)
	}
	if len(view.Jobs) != 1 || view.Progress.Total != 1 {
		t.Fatalf("view jobs = %d, progress = %+v", len(view.Jobs), view.Progress)
	}

	mustOK(t)(f.store.ClaimJob(ctx, jobs[0].ID))
	mustOK(t)(f.store.CompleteJob(ctx, jobs[0].ID, ""))

	view, err = f.svc.FileView(ctx, file.ID)
	if err != nil {
		t.Fatalf("file view: %v", err)
	}
	if view.Status != catalog.FileReady {
		t.Fatalf("done: status = %s, want ready", view.Status)
	}
}

func TestListFilesScopedToOwner(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "mine.txt", "a")
	ctx := context.Background()

	other, err := f.svc.Upload(ctx, orchestrator.UploadRequest{
		OwnerID: "user-2", Name: "theirs.txt", Body: strings.NewReader("b"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	views, err := f.svc.ListFiles(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	for _, view := range views {
		if view.File.ID == other.ID {
			t.Fatal("listing leaked another owner's file")
		}
	}
}

func TestDeleteRemovesRecordsAndBlobs(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "gone.txt", "delete me")
	ctx := context.Background()

	if err := f.svc.Delete(ctx, file.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.objects.Stat(ctx, file.StorageKey); !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("blob should be gone, got %v", err)
	}
	if _, err := f.svc.FileView(ctx, file.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("view after delete: %v", err)
	}
	if err := f.svc.Delete(ctx, file.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestDownloadStreamsBytes(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "doc.txt", "download me")

	got, rc, err := f.svc.Download(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	if got.ID != file.ID {
		t.Fatalf("wrong file: %s", got.ID)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "download me" {
		t.Fatalf("content = %q", data)
	}

	_, _, err = f.svc.Download(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing download: %v", err)
	}
}

func TestStatusSummary(t *testing.T) {
	f := newFixture(t)
	file := f.upload(t, "a.png", "bytes")
	ctx := context.Background()

	if _, _, err := f.svc.StartPipeline(ctx, file.ID, []orchestrator.ActionRequest{
		{Kind: "thumbnail"}, {Kind: "ai_tag"},
	}); err != nil {
		t.Fatalf("start pipeline: %v", err)
	}

	summary, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if summary.Jobs.Total != 2 || summary.Jobs.Queued != 1 || summary.Jobs.Pending != 1 {
		t.Fatalf("summary = %+v", summary.Jobs)
	}
	if summary.QueueDepths[catalog.FamilyImage] != 1 {
		t.Fatalf("image depth = %d", summary.QueueDepths[catalog.FamilyImage])
	}
}

func mustOK(t *testing.T) func(bool, error) {
	t.Helper()
	return func(ok bool, err error) {
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if !ok {
			t.Fatal("transition lost unexpectedly")
		}
	}
}
