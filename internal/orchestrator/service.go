// Package orchestrator owns the write side of the system: registering
// uploads, starting pipelines, and the reconciliation sweep that repairs
// stuck work. Reads that cross files, pipelines, and jobs also live here
// so the HTTP API stays a thin translation layer.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fileforge/internal/broker"
	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/logging"
	"fileforge/internal/metrics"
	"fileforge/internal/objectstore"
	"fileforge/internal/projector"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

// Service coordinates the catalog, object store, and broker.
type Service struct {
	store      *catalog.Store
	objects    objectstore.Store
	bus        broker.Broker
	dispatcher *worker.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxActions int
}

// New builds an orchestrator service.
func New(
	store *catalog.Store,
	objects objectstore.Store,
	bus broker.Broker,
	dispatcher *worker.Dispatcher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:      store,
		objects:    objects,
		bus:        bus,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "orchestrator"),
		maxActions: cfg.Pipeline.MaxActions,
	}
}

// UploadRequest describes an incoming file.
type UploadRequest struct {
	OwnerID     string
	Name        string
	ContentType string
	Body        io.Reader
}

// Upload registers a file and streams its bytes into the object store.
// The returned file is in processing state; without a pipeline the
// projector reports it ready.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*catalog.File, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "upload",
			"owner is required", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "upload",
			"file name is required", nil)
	}
	if req.Body == nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "upload",
			"empty request body", nil)
	}

	file := &catalog.File{
		OwnerID:      req.OwnerID,
		OriginalName: req.Name,
		ContentType:  req.ContentType,
		Status:       catalog.FileUploading,
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "upload", "record file", err)
	}

	key, size, err := s.objects.Put(ctx, req.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "upload", "store bytes", err)
	}
	if err := s.store.SetFileStorage(ctx, file.ID, key, size); err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "upload", "record storage", err)
	}
	if _, err := s.store.TransitionFileStatus(ctx, file.ID, catalog.FileUploading, catalog.FileProcessing); err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "upload", "finish upload", err)
	}

	file.StorageKey = key
	file.SizeBytes = size
	file.Status = catalog.FileProcessing
	if s.metrics != nil {
		s.metrics.UploadsTotal.Inc()
	}
	s.logger.Info("upload registered",
		logging.String(logging.FieldFileID, file.ID),
		logging.String("name", file.OriginalName),
		logging.Int64("size_bytes", size))
	return file, nil
}

// ActionRequest is one requested pipeline step.
type ActionRequest struct {
	Kind   string
	Params map[string]string
}

// StartPipeline validates the requested actions, records the pipeline with
// its jobs, and activates the first step. A file carries at most one
// pipeline. An empty action list is legal; the file is ready immediately.
func (s *Service) StartPipeline(ctx context.Context, fileID string, actions []ActionRequest) (*catalog.Pipeline, []*catalog.Job, error) {
	if len(actions) > s.maxActions {
		return nil, nil, services.Wrap(services.ErrValidation, "orchestrator", "pipeline",
			fmt.Sprintf("pipeline exceeds %d actions", s.maxActions), nil)
	}

	steps := make([]catalog.PipelineSpec, 0, len(actions))
	for _, action := range actions {
		kind, ok := catalog.ParseActionKind(action.Kind)
		if !ok {
			return nil, nil, services.Wrap(services.ErrValidation, "orchestrator", "pipeline",
				"unknown action kind "+action.Kind, nil)
		}
		steps = append(steps, catalog.PipelineSpec{Kind: kind, Params: action.Params})
	}

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "orchestrator", "pipeline", "load file", err)
	}
	if file == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "pipeline",
			"file "+fileID, nil)
	}
	if file.IsOutput {
		return nil, nil, services.Wrap(services.ErrValidation, "orchestrator", "pipeline",
			"pipelines run on uploads, not output artifacts", nil)
	}
	if file.Status == catalog.FileUploading {
		return nil, nil, services.Wrap(services.ErrValidation, "orchestrator", "pipeline",
			"upload has not finished", nil)
	}
	existing, err := s.store.PipelineForFile(ctx, fileID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "orchestrator", "pipeline", "check existing", err)
	}
	if existing != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "orchestrator", "pipeline",
			"file already has a pipeline", nil)
	}

	pipeline, jobs, err := s.store.CreatePipeline(ctx, fileID, steps)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "orchestrator", "pipeline", "record", err)
	}
	// An empty sequence records the pipeline with no jobs; the projector
	// reports the file ready without any worker involvement.
	if len(jobs) > 0 {
		if _, err := s.dispatcher.Activate(ctx, jobs[0]); err != nil {
			// The pipeline is recorded; the reconciler will activate the
			// first job on its next sweep.
			s.logger.Warn("first activation failed, deferring to reconciler",
				logging.String(logging.FieldPipelineID, pipeline.ID),
				logging.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.PipelinesTotal.Inc()
	}
	s.logger.Info("pipeline started",
		logging.String(logging.FieldFileID, fileID),
		logging.String(logging.FieldPipelineID, pipeline.ID),
		logging.Int("actions", len(jobs)))
	return pipeline, jobs, nil
}

// FileView aggregates everything a client sees about one file.
type FileView struct {
	File     *catalog.File
	Status   catalog.FileStatus
	Pipeline *catalog.Pipeline
	Jobs     []*catalog.Job
	Outputs  []*catalog.File
	Progress projector.Progress
}

// FileView loads a file with its pipeline, jobs, outputs, and projected
// status.
func (s *Service) FileView(ctx context.Context, fileID string) (*FileView, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "file view", "load file", err)
	}
	if file == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "file view",
			"file "+fileID, nil)
	}

	view := &FileView{File: file}
	pipeline, err := s.store.PipelineForFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "file view", "load pipeline", err)
	}
	if pipeline != nil {
		view.Pipeline = pipeline
		view.Jobs, err = s.store.JobsForPipeline(ctx, pipeline.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "orchestrator", "file view", "load jobs", err)
		}
	}
	view.Outputs, err = s.store.OutputsForFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "file view", "load outputs", err)
	}
	view.Status = projector.Project(file, view.Jobs)
	view.Progress = projector.Summarize(view.Jobs)
	return view, nil
}

// ListFiles returns an owner's uploads with projected statuses.
func (s *Service) ListFiles(ctx context.Context, ownerID string) ([]*FileView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "list files",
			"owner is required", nil)
	}
	files, err := s.store.ListFilesByOwner(ctx, ownerID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "list files", "", err)
	}

	views := make([]*FileView, 0, len(files))
	for _, file := range files {
		view := &FileView{File: file}
		pipeline, err := s.store.PipelineForFile(ctx, file.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "orchestrator", "list files", "load pipeline", err)
		}
		if pipeline != nil {
			view.Pipeline = pipeline
			view.Jobs, err = s.store.JobsForPipeline(ctx, pipeline.ID)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "orchestrator", "list files", "load jobs", err)
			}
		}
		view.Status = projector.Project(file, view.Jobs)
		view.Progress = projector.Summarize(view.Jobs)
		views = append(views, view)
	}
	return views, nil
}

// Download opens a file's stored bytes for streaming.
func (s *Service) Download(ctx context.Context, fileID string) (*catalog.File, io.ReadCloser, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "orchestrator", "download", "load file", err)
	}
	if file == nil || file.StorageKey == "" {
		return nil, nil, services.Wrap(services.ErrNotFound, "orchestrator", "download",
			"file "+fileID, nil)
	}
	rc, err := s.objects.Get(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "orchestrator", "download", "open bytes", err)
	}
	return file, rc, nil
}

// Delete removes a file, its derived outputs, its pipeline and jobs, and
// all stored bytes. Jobs in flight lose their catalog rows; workers drop
// the orphaned envelopes on delivery.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "delete", "load file", err)
	}
	if file == nil {
		return services.Wrap(services.ErrNotFound, "orchestrator", "delete", "file "+fileID, nil)
	}

	keys, err := s.store.DeleteFile(ctx, fileID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "delete", "remove records", err)
	}
	for _, key := range keys {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			// A failed delete leaks a blob; the records are already gone.
			s.logger.Warn("blob delete failed",
				logging.String("storage_key", key), logging.Error(delErr))
		}
	}
	s.logger.Info("file deleted",
		logging.String(logging.FieldFileID, fileID),
		logging.Int("blobs", len(keys)))
	return nil
}

// Job returns a single job record.
func (s *Service) Job(ctx context.Context, jobID string) (*catalog.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "job", "", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "job", "job "+jobID, nil)
	}
	return job, nil
}

// StatusSummary is the operator-facing health snapshot.
type StatusSummary struct {
	Jobs        catalog.HealthSummary
	QueueDepths map[catalog.Family]int
}

// Status aggregates job counts and queue depths.
func (s *Service) Status(ctx context.Context) (*StatusSummary, error) {
	health, err := s.store.Health(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "status", "", err)
	}
	depths, err := s.store.QueueDepths(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "orchestrator", "status", "", err)
	}
	return &StatusSummary{Jobs: health, QueueDepths: depths}, nil
}
