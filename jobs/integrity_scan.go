package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/radityprtama/stock-app/internal/jobs"
	"github.com/radityprtama/stock-app/internal/observability"
	"github.com/radityprtama/stock-app/internal/stock"
)

// Reconciler folds the ledger and compares it against live balances.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]stock.Divergence, error)
}

// IntegrityScanJob verifies that every stock balance equals the fold of its
// ledger entries. Posting writes both in one database transaction, so any
// divergence means manual interference or a bug and is worth an alert.
type IntegrityScanJob struct {
	reconciler Reconciler
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
	gauges     *observability.Metrics
}

// NewIntegrityScanJob constructs the job. metrics and gauges may be nil.
func NewIntegrityScanJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics, gauges *observability.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{reconciler: reconciler, logger: logger, metrics: metrics, gauges: gauges}
}

// Handle runs one scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("stock_integrity")
	divergences, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		j.logger.Error("integrity scan failed", slog.Any("error", err))
		return tracker.End(err)
	}

	j.gauges.SetDivergences(len(divergences))
	j.metrics.AddDivergences(len(divergences))
	for _, d := range divergences {
		j.logger.Error("stock balance diverges from ledger",
			slog.Int64("item_id", d.ItemID),
			slog.Int64("warehouse_id", d.WarehouseID),
			slog.Int64("balance_qty", d.BalanceQty),
			slog.Int64("ledger_qty", d.LedgerQty))
	}
	if len(divergences) == 0 {
		j.logger.Info("integrity scan clean")
	}
	return tracker.End(nil)
}
