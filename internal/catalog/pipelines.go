package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PipelineSpec describes one requested pipeline step.
type PipelineSpec struct {
	Kind   ActionKind
	Params map[string]string
}

// CreatePipeline atomically records a pipeline and one pending job per step.
// Jobs are created in position order; activation of the first job is the
// caller's responsibility so the queued transition shares the single
// conditional-update path.
func (s *Store) CreatePipeline(ctx context.Context, fileID string, steps []PipelineSpec) (*Pipeline, []*Job, error) {
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	pipeline := &Pipeline{
		ID:        uuid.NewString(),
		FileID:    fileID,
		Actions:   make([]ActionKind, 0, len(steps)),
		CreatedAt: now,
	}
	for _, step := range steps {
		pipeline.Actions = append(pipeline.Actions, step.Kind)
	}
	actionsJSON, err := json.Marshal(pipeline.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: encode actions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pipelines (id, file_id, actions, created_at)
		VALUES (?, ?, ?, ?)`,
		pipeline.ID, fileID, string(actionsJSON), timestamp(now)); err != nil {
		return nil, nil, fmt.Errorf("create pipeline: insert: %w", err)
	}

	jobs := make([]*Job, 0, len(steps))
	for position, step := range steps {
		job := &Job{
			ID:         uuid.NewString(),
			PipelineID: pipeline.ID,
			FileID:     fileID,
			Position:   position,
			Kind:       step.Kind,
			Status:     JobPending,
			Params:     step.Params,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		paramsJSON, encErr := encodeParams(job.Params)
		if encErr != nil {
			return nil, nil, fmt.Errorf("create pipeline: encode params: %w", encErr)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, pipeline_id, file_id, position, kind, status, params,
				attempts, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			job.ID, job.PipelineID, job.FileID, job.Position, string(job.Kind),
			string(job.Status), paramsJSON, timestamp(now), timestamp(now)); err != nil {
			return nil, nil, fmt.Errorf("create pipeline: insert job %d: %w", position, err)
		}
		jobs = append(jobs, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("create pipeline: commit: %w", err)
	}
	return pipeline, jobs, nil
}

// GetPipeline returns the pipeline with the given ID, or nil when absent.
func (s *Store) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, file_id, actions, created_at FROM pipelines WHERE id = ?", id)
	pipeline, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	return pipeline, nil
}

// PipelineForFile returns the most recent pipeline attached to a file,
// or nil when the file has none.
func (s *Store) PipelineForFile(ctx context.Context, fileID string) (*Pipeline, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, actions, created_at FROM pipelines
		WHERE file_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, fileID)
	pipeline, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline for file: %w", err)
	}
	return pipeline, nil
}

func scanPipeline(scanner rowScanner) (*Pipeline, error) {
	var (
		pipeline    Pipeline
		actionsJSON string
		createdAt   string
	)
	if err := scanner.Scan(&pipeline.ID, &pipeline.FileID, &actionsJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionsJSON), &pipeline.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	var err error
	if pipeline.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &pipeline, nil
}

func encodeParams(params map[string]string) (any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}
