// Package admission gates incoming queries against their group's resource
// budget. The gate runs on the query's calling goroutine: it reads precomputed
// config and atomic usage counters only, never blocks, never does I/O.
package admission

import (
	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/metrics"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

// ConfigSource resolves a group's live configuration without I/O. The
// lifecycle manager implements it.
type ConfigSource interface {
	Lookup(groupID string) (*model.GroupConfig, bool)
}

// Decision is the typed outcome of one admission check. A rejection carries
// the breaching resource type; it is an expected result, not an error.
type Decision struct {
	Admitted bool
	GroupID  string
	Reason   resource.Type
}

type Controller struct {
	catalog  *resource.Catalog
	configs  ConfigSource
	tracker  *tracker.Tracker
	registry *stats.Registry
	events   *eventbus.Publisher
	logger   *zap.Logger
}

func NewController(
	catalog *resource.Catalog,
	configs ConfigSource,
	tr *tracker.Tracker,
	registry *stats.Registry,
	events *eventbus.Publisher,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		catalog:  catalog,
		configs:  configs,
		tracker:  tr,
		registry: registry,
		events:   events,
		logger:   logger,
	}
}

// Admit decides synchronously whether a query attributed to groupID may
// start. Queries without a group fall into the default group. A group whose
// configuration is unavailable is admitted (fail-open) and the degraded mode
// is logged.
func (c *Controller) Admit(groupID string) Decision {
	if groupID == "" {
		groupID = model.DefaultGroupID
	}
	state := c.registry.GetOrCreate(groupID)

	cfg, ok := c.configs.Lookup(groupID)
	if !ok {
		if groupID != model.DefaultGroupID {
			c.logger.Warn("query group configuration unavailable, admitting",
				zap.String("group_id", groupID))
		}
		metrics.AdmissionsTotal.WithLabelValues(groupID, "admit").Inc()
		return Decision{Admitted: true, GroupID: groupID}
	}

	if cfg.Enforced() {
		for _, rt := range c.catalog.EnabledTypes() {
			th, limited := cfg.Threshold(rt)
			if !limited {
				continue
			}
			usage := c.tracker.CurrentUsage(groupID, rt)
			if float64(usage) > th.Hard*float64(c.catalog.Capacity(rt)) {
				return c.reject(state, groupID, rt)
			}
		}
	}

	metrics.AdmissionsTotal.WithLabelValues(groupID, "admit").Inc()
	return Decision{Admitted: true, GroupID: groupID}
}

func (c *Controller) reject(state *stats.GroupState, groupID string, rt resource.Type) Decision {
	state.RecordRejection(rt)
	metrics.AdmissionsTotal.WithLabelValues(groupID, "reject").Inc()
	metrics.RejectionsTotal.WithLabelValues(groupID, rt.String()).Inc()
	c.events.TryPublish(eventbus.ChannelQuery, "query_rejected", eventbus.QueryEvent{
		GroupID:  groupID,
		Resource: rt.String(),
	})
	return Decision{Admitted: false, GroupID: groupID, Reason: rt}
}
