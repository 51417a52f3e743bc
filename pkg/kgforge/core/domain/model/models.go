// Package model defines the core data structures of the kgforge pipeline:
// executions, batches, extraction payloads, and graph elements.
// The JSON tags on Execution and Batch define the on-disk manifest contract
// (execution_info.json / metadata.json) and must not change shape.
package model

import "time"

// Status is the outcome classification returned by every pipeline operation.
// Operations return a structured result carrying a Status instead of raising
// an error across the component boundary.
type Status string

const (
	// StatusSubmitted indicates a batch was submitted to the external job API.
	StatusSubmitted Status = "submitted"
	// StatusSkipped indicates every input item was already processed. Callers
	// must treat this as success, not failure.
	StatusSkipped Status = "skipped"
	// StatusFailed indicates the operation failed (empty input, configuration
	// error, or a remote error).
	StatusFailed Status = "failed"
	// StatusPending indicates the external job has not finished yet.
	StatusPending Status = "pending"
	// StatusCompleted indicates the external job finished and, for retrieval,
	// results were materialized.
	StatusCompleted Status = "completed"
	// StatusExpired indicates the external job expired before completing.
	StatusExpired Status = "expired"
	// StatusAlreadyRetrieved indicates the batch results were materialized by
	// an earlier invocation; the call was a no-op.
	StatusAlreadyRetrieved Status = "already_retrieved"
	// StatusAlreadyLoaded indicates the batch results were loaded into the
	// graph by an earlier invocation.
	StatusAlreadyLoaded Status = "already_loaded"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// BatchSummary is the per-batch entry recorded in an execution manifest.
type BatchSummary struct {
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	NItems    int       `json:"n_items"`
}

// Execution is a top-level unit of work. It owns an ordered list of batch
// summaries and the monotonically growing set of processed item ids.
// Serialized as execution_info.json.
type Execution struct {
	ExecutionID      string         `json:"execution_id"`
	CreatedAt        time.Time      `json:"created_at"`
	Batches          []BatchSummary `json:"batches"`
	ProcessedItemIDs []string       `json:"processed_item_ids"`
	LastUpdated      time.Time      `json:"last_updated"`
}

// NewExecution creates an empty execution manifest with the given id.
func NewExecution(executionID string) *Execution {
	now := time.Now()
	return &Execution{
		ExecutionID:      executionID,
		CreatedAt:        now,
		Batches:          []BatchSummary{},
		ProcessedItemIDs: []string{},
		LastUpdated:      now,
	}
}

// HasItem reports whether itemID is already recorded as processed.
func (e *Execution) HasItem(itemID string) bool {
	for _, id := range e.ProcessedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Batch is one externally submitted unit of work belonging to exactly one
// execution. Serialized as metadata.json inside the batch directory.
// BatchID is the externally assigned job id; LocalID is the per-execution
// sequence name (batch_<n>).
type Batch struct {
	BatchID       string            `json:"batch_id"`
	LocalID       string            `json:"local_id,omitempty"`
	FileID        string            `json:"file_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Status        Status            `json:"status"`
	NItems        int               `json:"n_items"`
	OriginalTexts map[string]string `json:"original_texts"`
	Retrieved     bool              `json:"retrieved"`
	Task          string            `json:"task,omitempty"`
	Model         string            `json:"model,omitempty"`
	LastChecked   *time.Time        `json:"last_checked,omitempty"`
	OutputFileID  string            `json:"output_file_id,omitempty"`
	ErrorFileID   string            `json:"error_file_id,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	ResultsPath   string            `json:"results_path,omitempty"`
	NResults      int               `json:"n_results,omitempty"`
}

// Item is one input document plus its identifier.
type Item struct {
	ID   string
	Text string
}

// Entity is a canonical node in the target graph. At most one canonical
// entity exists per (normalized name, type) pair above the similarity
// threshold; merges only add or update attributes, never delete.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Relationship is a directed, typed edge between two canonical entity ids.
type Relationship struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ExtractedEntity is an entity mention as produced by the model for one
// document, before disambiguation. TempID is document-scoped.
type ExtractedEntity struct {
	TempID     string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ExtractedRelationship references entities by their document-scoped temp ids.
type ExtractedRelationship struct {
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Extraction is the structured payload expected in a per-item result file.
type Extraction struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// GraphStats summarizes the graph store contents for the shutdown report.
type GraphStats struct {
	Entities      int64
	Relationships int64
}

// SubmitResult is the structured outcome of a batch submission.
type SubmitResult struct {
	Status      Status
	ExecutionID string
	BatchID     string
	LocalID     string
	NItems      int
	NFiltered   int
	Error       string
}

// StatusResult is the structured outcome of a status check.
type StatusResult struct {
	Status         Status
	ExternalStatus string
	BatchID        string
	LocalID        string
	LastChecked    time.Time
	Error          string
}

// RetrieveResult is the structured outcome of result materialization.
type RetrieveResult struct {
	Status      Status
	BatchID     string
	LocalID     string
	NResults    int
	ResultsPath string
	Error       string
}

// LoadResult is the structured outcome of loading materialized results into
// the graph. NFailed counts items that failed to load; a non-zero value with
// StatusCompleted signals a partial failure that did not abort the batch.
type LoadResult struct {
	Status         Status
	NItems         int
	NEntities      int
	NRelationships int
	NFailed        int
	Error          string
}
