package settle

import (
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/pnpsetup/internal/telemetry"
)

const scopeName = "github.com/steveyegge/pnpsetup/settle"

// settleMetrics holds lazily-initialized OTel instruments for calibrations.
var settleMetrics struct {
	computeTime  metric.Float64Histogram
	trials       metric.Int64Counter
	calibrations metric.Int64Counter
	escalations  metric.Int64Counter
}

var settleMetricsOnce sync.Once

func initSettleMetrics() {
	m := telemetry.Meter(scopeName)
	settleMetrics.computeTime, _ = m.Float64Histogram("pnpsetup.settle.compute_time",
		metric.WithDescription("Settle compute time measured per trial in milliseconds"),
		metric.WithUnit("ms"),
	)
	settleMetrics.trials, _ = m.Int64Counter("pnpsetup.settle.trials",
		metric.WithDescription("Settle trials run"),
	)
	settleMetrics.calibrations, _ = m.Int64Counter("pnpsetup.settle.calibrations",
		metric.WithDescription("Settle calibrations by outcome"),
	)
	settleMetrics.escalations, _ = m.Int64Counter("pnpsetup.settle.escalations",
		metric.WithDescription("Calibrations that escalated to the second tier"),
	)
}
