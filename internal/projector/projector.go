// Package projector derives a file's user-facing status from its job
// records. Ready and failed are never persisted for pipelined files; they
// are computed here at read time so the aggregate cannot drift from job
// truth.
package projector

import "fileforge/internal/catalog"

// Progress summarizes how far a pipeline has advanced.
type Progress struct {
	Total     int
	Succeeded int
	Failed    int
	// Position is the index of the job currently queued or running,
	// or -1 when no job is active.
	Position int
}

// Project computes the effective status of a file from its persisted
// status and the jobs of its pipeline. Jobs must belong to the file's
// pipeline; pass nil when the file has none.
func Project(file *catalog.File, jobs []*catalog.Job) catalog.FileStatus {
	if file == nil {
		return ""
	}
	if file.Status == catalog.FileUploading {
		return catalog.FileUploading
	}
	if len(jobs) == 0 {
		// No pipeline requested; stored bytes are all there is.
		return catalog.FileReady
	}

	succeeded := 0
	for _, job := range jobs {
		switch job.Status {
		case catalog.JobFailed:
			return catalog.FileFailed
		case catalog.JobSucceeded:
			succeeded++
		}
	}
	if succeeded == len(jobs) {
		return catalog.FileReady
	}
	return catalog.FileProcessing
}

// Summarize computes pipeline progress counters for display.
func Summarize(jobs []*catalog.Job) Progress {
	progress := Progress{Total: len(jobs), Position: -1}
	for _, job := range jobs {
		switch job.Status {
		case catalog.JobSucceeded:
			progress.Succeeded++
		case catalog.JobFailed:
			progress.Failed++
		case catalog.JobQueued, catalog.JobRunning:
			if progress.Position == -1 {
				progress.Position = job.Position
			}
		}
	}
	return progress
}
