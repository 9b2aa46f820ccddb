// Package enforcer runs the background control loop that corrects resource
// overages the admission gate could not prevent: queries already admitted
// whose consumption grew past their group's budget.
package enforcer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/engine"
	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/metrics"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

// ConfigSource resolves a group's live configuration without I/O.
type ConfigSource interface {
	Lookup(groupID string) (*model.GroupConfig, bool)
}

type Enforcer struct {
	catalog  *resource.Catalog
	configs  ConfigSource
	tracker  *tracker.Tracker
	registry *stats.Registry
	engine   engine.Engine
	events   *eventbus.Publisher
	logger   *zap.Logger

	interval time.Duration
	// maxCancels caps cancellations signaled per cycle across all groups;
	// zero means uncapped.
	maxCancels int
}

func New(
	catalog *resource.Catalog,
	configs ConfigSource,
	tr *tracker.Tracker,
	registry *stats.Registry,
	eng engine.Engine,
	events *eventbus.Publisher,
	logger *zap.Logger,
	interval time.Duration,
	maxCancelsPerCycle int,
) *Enforcer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Enforcer{
		catalog:    catalog,
		configs:    configs,
		tracker:    tr,
		registry:   registry,
		engine:     eng,
		events:     events,
		logger:     logger,
		interval:   interval,
		maxCancels: maxCancelsPerCycle,
	}
}

// Run executes cycles at the configured interval until the context ends.
// Cycles are strictly serialized; ticks arriving while a cycle is in flight
// are drained afterwards, never run concurrently or queued up.
func (e *Enforcer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunCycle(ctx)
			// Drop the tick an overrunning cycle may have accumulated.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// RunCycle performs one SCAN / EVALUATE / SELECT / CANCEL / RECORD pass over
// all live groups. A failure in one group never aborts the cycle, and a
// panic never kills the loop.
func (e *Enforcer) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enforcement cycle panicked", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	defer func() {
		metrics.EnforcementCycleDuration.Observe(time.Since(start).Seconds())
	}()

	budget := newCancelBudget(e.maxCancels)
	e.registry.Range(func(groupID string, state *stats.GroupState) bool {
		e.enforceGroup(ctx, groupID, state, budget)
		return true
	})

	for _, groupID := range e.registry.Sweep() {
		e.tracker.Forget(groupID)
	}
}

func (e *Enforcer) enforceGroup(ctx context.Context, groupID string, state *stats.GroupState, budget *cancelBudget) {
	cfg, ok := e.configs.Lookup(groupID)
	if !ok {
		return
	}

	// Defer the engine round-trip until a hard breach actually needs victims.
	var queries []engine.RunningQuery
	var enumerated bool

	for _, rt := range e.catalog.EnabledTypes() {
		th, limited := cfg.Threshold(rt)
		if !limited {
			continue
		}

		capacity := float64(e.catalog.Capacity(rt))
		usage := e.tracker.CurrentUsage(groupID, rt)
		hard := int64(th.Hard * capacity)

		if usage <= hard {
			if soft := int64(th.Soft * capacity); th.Soft > 0 && usage > soft {
				metrics.ThresholdBreaches.WithLabelValues(groupID, rt.String(), "soft").Inc()
				e.logger.Warn("query group approaching resource budget",
					zap.String("group_id", groupID),
					zap.String("resource", rt.String()),
					zap.Int64("usage", usage),
					zap.Int64("soft_limit", soft))
				e.events.TryPublish(eventbus.ChannelQuery, "threshold_breach", eventbus.QueryEvent{
					GroupID:  groupID,
					Resource: rt.String(),
					Message:  "soft",
				})
			}
			continue
		}

		metrics.ThresholdBreaches.WithLabelValues(groupID, rt.String(), "hard").Inc()
		if !cfg.Enforced() {
			e.logger.Warn("monitor-only query group over resource budget",
				zap.String("group_id", groupID),
				zap.String("resource", rt.String()),
				zap.Int64("usage", usage),
				zap.Int64("hard_limit", hard))
			continue
		}

		if !enumerated {
			var err error
			queries, err = e.engine.RunningQueries(ctx, groupID)
			if err != nil {
				metrics.EnforcementSkippedGroups.Inc()
				e.logger.Error("failed to enumerate running queries, skipping group this cycle",
					zap.String("group_id", groupID),
					zap.Error(err))
				return
			}
			enumerated = true
		}

		e.cancelVictims(ctx, groupID, state, rt, selectVictims(queries, rt, usage-hard), budget)
		if budget.exhausted() {
			return
		}
	}
}

func (e *Enforcer) cancelVictims(
	ctx context.Context,
	groupID string,
	state *stats.GroupState,
	rt resource.Type,
	victims []engine.RunningQuery,
	budget *cancelBudget,
) {
	for _, victim := range victims {
		if budget.exhausted() {
			e.logger.Warn("cancellation budget exhausted, deferring remaining victims",
				zap.String("group_id", groupID),
				zap.String("resource", rt.String()))
			return
		}
		// Fire-and-forget: the engine sets the token and returns, the
		// victim terminates on its own time.
		if e.engine.Cancel(ctx, victim.ID()) == engine.CancelNoop {
			// Target finished between SCAN and CANCEL. Not counted.
			continue
		}
		budget.spend()
		state.RecordCancellation(rt)
		metrics.CancellationsTotal.WithLabelValues(groupID, rt.String()).Inc()
		e.events.TryPublish(eventbus.ChannelQuery, "query_cancelled", eventbus.QueryEvent{
			QueryID:  victim.ID(),
			GroupID:  groupID,
			Resource: rt.String(),
		})
		e.logger.Info("cancelled query over group budget",
			zap.String("group_id", groupID),
			zap.String("query_id", victim.ID()),
			zap.String("resource", rt.String()),
			zap.Int64("usage", victim.UsageOf(rt)))
	}
}

type cancelBudget struct {
	remaining int
	capped    bool
}

func newCancelBudget(max int) *cancelBudget {
	return &cancelBudget{remaining: max, capped: max > 0}
}

func (b *cancelBudget) exhausted() bool {
	return b.capped && b.remaining <= 0
}

func (b *cancelBudget) spend() {
	if b.capped {
		b.remaining--
	}
}
