package orchestrator_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"fileforge/internal/catalog"
	"fileforge/internal/orchestrator"
	"fileforge/internal/worker"
)

func newReconciler(f *fixture, t *testing.T, queuedGrace, heartbeatTimeout int) *orchestrator.Reconciler {
	t.Helper()
	cfg := f.cfg
	cfg.Workflow.ReconcileInterval = 1
	cfg.Workflow.QueuedGracePeriod = queuedGrace
	cfg.Workflow.HeartbeatTimeout = heartbeatTimeout
	dispatcher := worker.NewDispatcher(f.store, f.bus, nil)
	return orchestrator.NewReconciler(f.store, dispatcher, nil, &cfg, nil)
}

func TestSweepReclaimsStaleRunningJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file := f.upload(t, "a.png", "bytes")

	_, jobs, err := f.store.CreatePipeline(ctx, file.ID, []catalog.PipelineSpec{{Kind: catalog.ActionThumbnail}})
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	jobID := jobs[0].ID
	mustOK(t)(f.store.ActivateJob(ctx, jobID))
	mustOK(t)(f.store.ClaimJob(ctx, jobID))

	// Zero heartbeat timeout makes every heartbeat stale immediately.
	time.Sleep(5 * time.Millisecond)
	rec := newReconciler(f, t, 3600, 0)
	rec.Sweep(ctx)

	job, err := f.store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != catalog.JobQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "heartbeat") {
		t.Fatalf("diagnostic = %q", job.ErrorMessage)
	}
	if depth := f.bus.Depth(catalog.FamilyImage.QueueName()); depth != 1 {
		t.Fatalf("queue depth = %d, want 1 republished envelope", depth)
	}
}

func TestSweepLeavesFreshRunningJobAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file := f.upload(t, "a.png", "bytes")

	_, jobs, err := f.store.CreatePipeline(ctx, file.ID, []catalog.PipelineSpec{{Kind: catalog.ActionThumbnail}})
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	mustOK(t)(f.store.ActivateJob(ctx, jobs[0].ID))
	mustOK(t)(f.store.ClaimJob(ctx, jobs[0].ID))

	rec := newReconciler(f, t, 3600, 3600)
	rec.Sweep(ctx)

	job, _ := f.store.GetJob(ctx, jobs[0].ID)
	if job.Status != catalog.JobRunning {
		t.Fatalf("status = %s, want running", job.Status)
	}
}

func TestSweepRepublishesStaleQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	file := f.upload(t, "a.png", "bytes")

	// Activate through the store, not the dispatcher, to simulate an
	// envelope lost after the queued transition.
	_, jobs, err := f.store.CreatePipeline(ctx, file.ID, []catalog.PipelineSpec{{Kind: catalog.ActionVirusScan}})
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	mustOK(t)(f.store.ActivateJob(ctx, jobs[0].ID))
	if depth := f.bus.Depth(catalog.FamilySecurity.QueueName()); depth != 0 {
		t.Fatalf("precondition: depth = %d", depth)
	}

	time.Sleep(5 * time.Millisecond)
	rec := newReconciler(f, t, 0, 3600)
	rec.Sweep(ctx)

	if depth := f.bus.Depth(catalog.FamilySecurity.QueueName()); depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}

	// The touch must keep the next immediate sweep from republishing,
	// given a nonzero grace period.
	rec = newReconciler(f, t, 3600, 3600)
	rec.Sweep(ctx)
	if depth := f.bus.Depth(catalog.FamilySecurity.QueueName()); depth != 1 {
		t.Fatalf("depth after second sweep = %d, want 1", depth)
	}
}
