package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

// Reporter periodically mirrors live tracker usage and active-query counts
// into prometheus gauges. Counters are incremented at their source; only
// gauge state needs a sync loop.
type Reporter struct {
	catalog  *resource.Catalog
	tracker  *tracker.Tracker
	registry *stats.Registry
	logger   *zap.Logger
	interval time.Duration
}

func NewReporter(
	catalog *resource.Catalog,
	tr *tracker.Tracker,
	registry *stats.Registry,
	logger *zap.Logger,
	interval time.Duration,
) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		catalog:  catalog,
		tracker:  tr,
		registry: registry,
		logger:   logger,
		interval: interval,
	}
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	r.registry.Range(func(groupID string, _ *stats.GroupState) bool {
		for _, rt := range r.catalog.EnabledTypes() {
			usage := r.tracker.CurrentUsage(groupID, rt)
			ResourceUsage.WithLabelValues(groupID, rt.String()).Set(float64(usage))
		}
		ActiveQueries.WithLabelValues(groupID).Set(float64(r.tracker.ActiveQueries(groupID)))
		return true
	})
}
