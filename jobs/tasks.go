package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity compares every live balance against its ledger fold.
	TaskStockIntegrity = "stock:integrity_scan"
)

// NewStockIntegrityTask constructs an Asynq task for the integrity scan.
// The scan always covers every balance, so the task carries no payload.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil)
}
