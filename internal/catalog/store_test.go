package catalog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fileforge/internal/catalog"
)

func openStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedFile(t *testing.T, store *catalog.Store) *catalog.File {
	t.Helper()
	file := &catalog.File{
		OwnerID:      "user-1",
		OriginalName: "photo.png",
		ContentType:  "image/png",
		Status:       catalog.FileUploading,
	}
	if err := store.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("create file: %v", err)
	}
	return file
}

func seedPipeline(t *testing.T, store *catalog.Store, fileID string, kinds ...catalog.ActionKind) (*catalog.Pipeline, []*catalog.Job) {
	t.Helper()
	steps := make([]catalog.PipelineSpec, 0, len(kinds))
	for _, kind := range kinds {
		steps = append(steps, catalog.PipelineSpec{Kind: kind})
	}
	pipeline, jobs, err := store.CreatePipeline(context.Background(), fileID, steps)
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	return pipeline, jobs
}

func TestCreateAndGetFile(t *testing.T) {
	store := openStore(t)
	file := seedFile(t, store)

	got, err := store.GetFile(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got == nil {
		t.Fatal("expected file, got nil")
	}
	if got.OwnerID != "user-1" || got.OriginalName != "photo.png" {
		t.Fatalf("unexpected file: %+v", got)
	}
	if got.Status != catalog.FileUploading {
		t.Fatalf("expected uploading status, got %s", got.Status)
	}
}

func TestGetFileMissingReturnsNil(t *testing.T) {
	store := openStore(t)
	got, err := store.GetFile(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing file, got %+v", got)
	}
}

func TestListFilesByOwnerExcludesOutputs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	upload := seedFile(t, store)

	output := &catalog.File{
		OwnerID:      "user-1",
		OriginalName: "photo_thumb.png",
		Status:       catalog.FileReady,
		ParentFileID: upload.ID,
		IsOutput:     true,
	}
	if err := store.CreateFile(ctx, output); err != nil {
		t.Fatalf("create output: %v", err)
	}

	files, err := store.ListFilesByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 1 || files[0].ID != upload.ID {
		t.Fatalf("expected only the upload, got %d files", len(files))
	}

	outputs, err := store.OutputsForFile(ctx, upload.ID)
	if err != nil {
		t.Fatalf("list outputs: %v", err)
	}
	if len(outputs) != 1 || outputs[0].ID != output.ID {
		t.Fatalf("expected one output, got %d", len(outputs))
	}
}

func TestTransitionFileStatusConditional(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)

	ok, err := store.TransitionFileStatus(ctx, file.ID, catalog.FileUploading, catalog.FileProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatal("expected first transition to win")
	}

	ok, err = store.TransitionFileStatus(ctx, file.ID, catalog.FileUploading, catalog.FileProcessing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatal("stale transition should lose, not error")
	}
}

func TestCreatePipelineOrdersJobs(t *testing.T) {
	store := openStore(t)
	file := seedFile(t, store)
	pipeline, jobs := seedPipeline(t, store, file.ID,
		catalog.ActionThumbnail, catalog.ActionVirusScan, catalog.ActionAITag)

	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	stored, err := store.JobsForPipeline(context.Background(), pipeline.ID)
	if err != nil {
		t.Fatalf("jobs for pipeline: %v", err)
	}
	for i, job := range stored {
		if job.Position != i {
			t.Fatalf("job %d has position %d", i, job.Position)
		}
		if job.Status != catalog.JobPending {
			t.Fatalf("job %d should start pending, got %s", i, job.Status)
		}
	}
	if stored[1].Kind != catalog.ActionVirusScan {
		t.Fatalf("unexpected kind at position 1: %s", stored[1].Kind)
	}

	got, err := store.GetPipeline(context.Background(), pipeline.ID)
	if err != nil {
		t.Fatalf("get pipeline: %v", err)
	}
	if len(got.Actions) != 3 || got.Actions[2] != catalog.ActionAITag {
		t.Fatalf("actions did not round-trip: %v", got.Actions)
	}
}

func TestJobLifecycleTransitions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)
	_, jobs := seedPipeline(t, store, file.ID, catalog.ActionThumbnail)
	jobID := jobs[0].ID

	if ok, err := store.ClaimJob(ctx, jobID); err != nil || ok {
		t.Fatalf("claim before activation: ok=%v err=%v", ok, err)
	}

	if ok, err := store.ActivateJob(ctx, jobID); err != nil || !ok {
		t.Fatalf("activate: ok=%v err=%v", ok, err)
	}
	if ok, err := store.ActivateJob(ctx, jobID); err != nil || ok {
		t.Fatalf("second activate should lose: ok=%v err=%v", ok, err)
	}

	if ok, err := store.ClaimJob(ctx, jobID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, err := store.ClaimJob(ctx, jobID); err != nil || ok {
		t.Fatalf("duplicate claim should lose: ok=%v err=%v", ok, err)
	}

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", job.Attempts)
	}
	if job.LastHeartbeat == nil {
		t.Fatal("claim should stamp a heartbeat")
	}

	if ok, err := store.CompleteJob(ctx, jobID, "out-1"); err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	if ok, err := store.FailJob(ctx, jobID, "late"); err != nil || ok {
		t.Fatalf("fail after success should lose: ok=%v err=%v", ok, err)
	}

	job, err = store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != catalog.JobSucceeded || job.OutputFileID != "out-1" {
		t.Fatalf("unexpected final job: %+v", job)
	}
}

func TestCreatePipelineAllowsEmptySteps(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)

	pipeline, jobs, err := store.CreatePipeline(ctx, file.ID, nil)
	if err != nil {
		t.Fatalf("create empty pipeline: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}

	got, err := store.GetPipeline(ctx, pipeline.ID)
	if err != nil {
		t.Fatalf("get pipeline: %v", err)
	}
	if got == nil || len(got.Actions) != 0 {
		t.Fatalf("unexpected pipeline record: %+v", got)
	}
}

func TestRequeueJobClearsHeartbeat(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)
	_, jobs := seedPipeline(t, store, file.ID, catalog.ActionEncrypt)
	jobID := jobs[0].ID

	mustTransition(t)(store.ActivateJob(ctx, jobID))
	mustTransition(t)(store.ClaimJob(ctx, jobID))
	mustTransition(t)(store.RequeueJob(ctx, jobID, "worker lost"))

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != catalog.JobQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}
	if job.LastHeartbeat != nil {
		t.Fatal("requeue should clear the heartbeat")
	}
	if job.ErrorMessage != "worker lost" {
		t.Fatalf("expected diagnostic to persist, got %q", job.ErrorMessage)
	}
}

func TestStaleRunningFindsExpiredHeartbeats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)
	_, jobs := seedPipeline(t, store, file.ID, catalog.ActionVideoConvert)
	jobID := jobs[0].ID

	mustTransition(t)(store.ActivateJob(ctx, jobID))
	mustTransition(t)(store.ClaimJob(ctx, jobID))

	stale, err := store.StaleRunning(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("stale running: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh heartbeat should not be stale, got %d", len(stale))
	}

	stale, err = store.StaleRunning(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("stale running: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != jobID {
		t.Fatalf("expected the running job to be stale, got %d", len(stale))
	}
}

func TestHealthAndQueueDepths(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)
	_, jobs := seedPipeline(t, store, file.ID,
		catalog.ActionThumbnail, catalog.ActionVirusScan)

	mustTransition(t)(store.ActivateJob(ctx, jobs[0].ID))

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Total != 2 || summary.Queued != 1 || summary.Pending != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	depths, err := store.QueueDepths(ctx)
	if err != nil {
		t.Fatalf("queue depths: %v", err)
	}
	if depths[catalog.FamilyImage] != 1 {
		t.Fatalf("expected one queued image job, got %d", depths[catalog.FamilyImage])
	}
	if depths[catalog.FamilySecurity] != 0 {
		t.Fatalf("pending jobs must not count as queued, got %d", depths[catalog.FamilySecurity])
	}
}

func TestDeleteFileCascadesAndReturnsKeys(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	file := seedFile(t, store)
	if err := store.SetFileStorage(ctx, file.ID, "ab/cdef", 42); err != nil {
		t.Fatalf("set storage: %v", err)
	}

	pipeline, _ := seedPipeline(t, store, file.ID, catalog.ActionThumbnail)

	output := &catalog.File{
		OwnerID:      "user-1",
		OriginalName: "photo_thumb.png",
		StorageKey:   "cd/efab",
		Status:       catalog.FileReady,
		ParentFileID: file.ID,
		IsOutput:     true,
	}
	if err := store.CreateFile(ctx, output); err != nil {
		t.Fatalf("create output: %v", err)
	}

	keys, err := store.DeleteFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 storage keys, got %v", keys)
	}

	if got, _ := store.GetFile(ctx, file.ID); got != nil {
		t.Fatal("file should be gone")
	}
	if got, _ := store.GetPipeline(ctx, pipeline.ID); got != nil {
		t.Fatal("pipeline should cascade")
	}
	remaining, err := store.JobsForPipeline(ctx, pipeline.ID)
	if err != nil {
		t.Fatalf("jobs for pipeline: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("jobs should cascade, got %d", len(remaining))
	}
}

// mustTransition curries the check so multi-value transition calls can
// feed it directly: mustTransition(t)(store.ClaimJob(ctx, id)).
func mustTransition(t *testing.T) func(bool, error) {
	t.Helper()
	return func(ok bool, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if !ok {
			t.Fatal("transition lost unexpectedly")
		}
	}
}
