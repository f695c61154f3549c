package api

import (
	"time"

	"fileforge/internal/catalog"
	"fileforge/internal/orchestrator"
	"fileforge/internal/projector"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FileItemFromRecord converts a bare file record without pipeline context.
func FileItemFromRecord(file *catalog.File, status catalog.FileStatus) FileItem {
	return FileItem{
		ID:           file.ID,
		OwnerID:      file.OwnerID,
		Name:         file.OriginalName,
		SizeBytes:    file.SizeBytes,
		ContentType:  file.ContentType,
		Status:       string(status),
		IsOutput:     file.IsOutput,
		ParentFileID: file.ParentFileID,
		CreatedAt:    formatTime(file.CreatedAt),
		UpdatedAt:    formatTime(file.UpdatedAt),
	}
}

// FileItemFromView converts an orchestrator view with pipeline, jobs, and
// outputs attached.
func FileItemFromView(view *orchestrator.FileView) FileItem {
	item := FileItemFromRecord(view.File, view.Status)
	if view.Pipeline != nil {
		pipeline := PipelineFromRecords(view.Pipeline, view.Jobs)
		item.Pipeline = &pipeline
		progress := progressFrom(view.Progress)
		item.Progress = &progress
	}
	for _, output := range view.Outputs {
		item.Outputs = append(item.Outputs, FileItemFromRecord(output, output.Status))
	}
	return item
}

// PipelineFromRecords converts a pipeline and its jobs.
func PipelineFromRecords(pipeline *catalog.Pipeline, jobs []*catalog.Job) Pipeline {
	out := Pipeline{
		ID:        pipeline.ID,
		Actions:   make([]string, 0, len(pipeline.Actions)),
		Jobs:      make([]JobItem, 0, len(jobs)),
		CreatedAt: formatTime(pipeline.CreatedAt),
	}
	for _, action := range pipeline.Actions {
		out.Actions = append(out.Actions, string(action))
	}
	for _, job := range jobs {
		out.Jobs = append(out.Jobs, JobItemFromRecord(job))
	}
	return out
}

// JobItemFromRecord converts a job record.
func JobItemFromRecord(job *catalog.Job) JobItem {
	return JobItem{
		ID:           job.ID,
		PipelineID:   job.PipelineID,
		Position:     job.Position,
		Kind:         string(job.Kind),
		Queue:        job.Kind.Family().QueueName(),
		Status:       string(job.Status),
		Attempts:     job.Attempts,
		OutputFileID: job.OutputFileID,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// StatusFromSummary converts the orchestrator health snapshot.
func StatusFromSummary(summary *orchestrator.StatusSummary) StatusResponse {
	resp := StatusResponse{
		JobCounts: map[string]int{
			"total":     summary.Jobs.Total,
			"pending":   summary.Jobs.Pending,
			"queued":    summary.Jobs.Queued,
			"running":   summary.Jobs.Running,
			"succeeded": summary.Jobs.Succeeded,
			"failed":    summary.Jobs.Failed,
		},
		QueueDepths: make(map[string]int, len(summary.QueueDepths)),
	}
	for family, depth := range summary.QueueDepths {
		resp.QueueDepths[family.QueueName()] = depth
	}
	return resp
}

func progressFrom(p projector.Progress) Progress {
	return Progress{
		Total:     p.Total,
		Succeeded: p.Succeeded,
		Failed:    p.Failed,
		Position:  p.Position,
	}
}
