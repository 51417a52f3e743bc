package jobapi

import (
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
)

// MapStatus classifies an external job status into the pipeline's status
// taxonomy. Anything that is not terminal is pending.
func MapStatus(externalStatus string) model.Status {
	switch externalStatus {
	case JobStatusCompleted:
		return model.StatusCompleted
	case JobStatusFailed, JobStatusCancelled:
		return model.StatusFailed
	case JobStatusExpired:
		return model.StatusExpired
	default:
		return model.StatusPending
	}
}
