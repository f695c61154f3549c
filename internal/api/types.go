// Package api defines the transport-facing request and response payloads
// and the conversions from domain records into them.
package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FileItem describes a file in a transport-friendly format.
type FileItem struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Name         string     `json:"name"`
	SizeBytes    int64      `json:"sizeBytes"`
	ContentType  string     `json:"contentType,omitempty"`
	Status       string     `json:"status"`
	IsOutput     bool       `json:"isOutput"`
	ParentFileID string     `json:"parentFileId,omitempty"`
	CreatedAt    string     `json:"createdAt,omitempty"`
	UpdatedAt    string     `json:"updatedAt,omitempty"`
	Pipeline     *Pipeline  `json:"pipeline,omitempty"`
	Outputs      []FileItem `json:"outputs,omitempty"`
	Progress     *Progress  `json:"progress,omitempty"`
}

// Pipeline describes a file's action sequence and its jobs.
type Pipeline struct {
	ID        string    `json:"id"`
	Actions   []string  `json:"actions"`
	Jobs      []JobItem `json:"jobs"`
	CreatedAt string    `json:"createdAt,omitempty"`
}

// JobItem describes one pipeline step.
type JobItem struct {
	ID           string `json:"id"`
	PipelineID   string `json:"pipelineId"`
	Position     int    `json:"position"`
	Kind         string `json:"kind"`
	Queue        string `json:"queue"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	OutputFileID string `json:"outputFileId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Progress summarizes pipeline completion for a file.
type Progress struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Position  int `json:"position"`
}

// StatusResponse aggregates daemon health for API consumers.
type StatusResponse struct {
	JobCounts   map[string]int `json:"jobCounts"`
	QueueDepths map[string]int `json:"queueDepths"`
}

// FileListResponse wraps a collection of files.
type FileListResponse struct {
	Files []FileItem `json:"files"`
}

// FileResponse wraps a single file.
type FileResponse struct {
	File FileItem `json:"file"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobItem `json:"job"`
}

// UploadResponse acknowledges a registered upload.
type UploadResponse struct {
	File FileItem `json:"file"`
}

// PipelineRequest is the payload for starting a pipeline.
type PipelineRequest struct {
	Actions []ActionRequest `json:"actions"`
}

// ActionRequest is one requested step.
type ActionRequest struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// PipelineResponse acknowledges an accepted pipeline.
type PipelineResponse struct {
	Pipeline Pipeline `json:"pipeline"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
