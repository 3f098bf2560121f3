// Package notify announces finished runs to downstream consumers.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers one JSON-encodable payload and returns a message id.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// RunCompleted is published once per sync run.
type RunCompleted struct {
	RunID         string    `json:"runId"`
	TotalCourses  int       `json:"totalCourses"`
	SyncMode      string    `json:"syncMode"`
	Deleted       int       `json:"deleted"`
	Inserted      int       `json:"inserted"`
	FailedBatches int       `json:"failedBatches"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// Announce publishes evt and logs the outcome. Failures are never returned.
func Announce(ctx context.Context, pub Publisher, evt RunCompleted, logger *zap.Logger) {
	if pub == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id, err := pub.Publish(ctx, evt)
	if err != nil {
		logger.Warn("run notification failed", zap.String("run_id", evt.RunID), zap.Error(err))
		return
	}
	logger.Info("run notification published", zap.String("run_id", evt.RunID), zap.String("message_id", id))
}
