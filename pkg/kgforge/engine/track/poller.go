package track

import (
	"context"
	"fmt"
	"time"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// Poller blocks until a batch reaches a terminal state, sleeping with
// exponential backoff between checks. Sleeps are cancellable through the
// context and the total wait is capped by max attempts.
type Poller struct {
	tracker *Tracker
	policy  config.RetryConfig
}

// NewPoller creates a Poller with the given backoff policy.
func NewPoller(tracker *Tracker, policy config.RetryConfig) *Poller {
	return &Poller{tracker: tracker, policy: policy}
}

// WaitForCompletion polls until the batch is completed, failed, or expired.
// It returns the last observed status together with an error when the
// context is cancelled or the attempt cap is reached first.
func (p *Poller) WaitForCompletion(ctx context.Context, executionID, batchRef string) (*model.StatusResult, error) {
	interval := time.Duration(p.policy.InitialInterval) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxInterval := time.Duration(p.policy.MaxInterval) * time.Millisecond
	factor := p.policy.Factor
	if factor < 1 {
		factor = 1
	}
	maxAttempts := p.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var last *model.StatusResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = p.tracker.CheckStatus(ctx, executionID, batchRef)
		switch last.Status {
		case model.StatusCompleted, model.StatusFailed, model.StatusExpired:
			return last, nil
		}

		if attempt == maxAttempts {
			break
		}
		logger.Debugf("Batch '%s' still %s; waiting %s (attempt %d/%d).",
			batchRef, last.ExternalStatus, interval, attempt, maxAttempts)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * factor)
		if maxInterval > 0 && interval > maxInterval {
			interval = maxInterval
		}
	}
	return last, fmt.Errorf("batch '%s' did not complete within %d status checks", batchRef, maxAttempts)
}
