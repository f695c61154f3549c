package catalog

import (
	"strings"
	"time"
)

// FileStatus represents the lifecycle of an uploaded file.
//
// Only StatusUploading and StatusProcessing (plus StatusReady for output
// artifacts that never enter a pipeline) are persisted. Ready/failed for
// pipelined files are derived from job statuses by the projector at read
// time so the aggregate can never drift from job truth.
type FileStatus string

const (
	FileUploading  FileStatus = "uploading"
	FileProcessing FileStatus = "processing"
	FileReady      FileStatus = "ready"
	FileFailed     FileStatus = "failed"
)

// JobStatus represents the lifecycle of a single pipeline step.
type JobStatus string

const (
	// JobPending marks a job whose predecessor has not succeeded yet.
	JobPending   JobStatus = "pending"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

var jobStatusSet = map[JobStatus]struct{}{
	JobPending:   {},
	JobQueued:    {},
	JobRunning:   {},
	JobSucceeded: {},
	JobFailed:    {},
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job status can never transition again
// outside an explicit bounded retry.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// File represents one stored artifact, either a client upload or a
// processor output.
type File struct {
	ID           string
	OwnerID      string
	OriginalName string
	SizeBytes    int64
	ContentType  string
	StorageKey   string
	Status       FileStatus
	ParentFileID string
	IsOutput     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pipeline binds an immutable ordered action sequence to one file.
type Pipeline struct {
	ID        string
	FileID    string
	Actions   []ActionKind
	CreatedAt time.Time
}

// Job is the execution record for one pipeline step.
type Job struct {
	ID            string
	PipelineID    string
	FileID        string
	Position      int
	Kind          ActionKind
	Status        JobStatus
	Params        map[string]string
	OutputFileID  string
	ErrorMessage  string
	Attempts      int
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
}
