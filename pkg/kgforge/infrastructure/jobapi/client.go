// Package jobapi abstracts the external asynchronous job API: file upload,
// job creation, status polling, and result download. The OpenAI Batch API
// implementation lives in openai.go; tests use a fake.
package jobapi

import "context"

// Job statuses reported by the external API.
const (
	// JobStatusCompleted indicates the job finished and output is available.
	JobStatusCompleted = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed = "failed"
	// JobStatusExpired indicates the job expired before completing.
	JobStatusExpired = "expired"
	// JobStatusCancelled indicates the job was cancelled.
	JobStatusCancelled = "cancelled"
)

// Job is the external view of one asynchronous batch job.
type Job struct {
	ID           string
	Status       string
	OutputFileID string
	ErrorFileID  string
}

// Client is the external job API.
type Client interface {
	// UploadFile uploads a request artifact and returns its file id.
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)

	// CreateJob submits an uploaded file as one asynchronous job.
	CreateJob(ctx context.Context, inputFileID, endpoint, completionWindow string) (*Job, error)

	// GetJob fetches the current state of a job. It never downloads output.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// DownloadFile fetches the content of a file (job output artifact).
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}
