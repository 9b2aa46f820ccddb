package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

type StatsHandler struct {
	registry *stats.Registry
	tracker  *tracker.Tracker
	catalog  *resource.Catalog
	logger   *zap.Logger
}

func NewStatsHandler(registry *stats.Registry, tr *tracker.Tracker, catalog *resource.Catalog, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{registry: registry, tracker: tr, catalog: catalog, logger: logger}
}

type groupStats struct {
	stats.Snapshot
	Usage         map[string]int64 `json:"usage"`
	ActiveQueries int64            `json:"active_queries"`
}

func (h *StatsHandler) statsFor(groupID string, state *stats.GroupState) groupStats {
	usage := make(map[string]int64, resource.NumTypes)
	for _, rt := range h.catalog.EnabledTypes() {
		usage[rt.String()] = h.tracker.CurrentUsage(groupID, rt)
	}
	return groupStats{
		Snapshot:      state.Snapshot(),
		Usage:         usage,
		ActiveQueries: h.tracker.ActiveQueries(groupID),
	}
}

func (h *StatsHandler) List(c *gin.Context) {
	out := make([]groupStats, 0)
	h.registry.Range(func(groupID string, state *stats.GroupState) bool {
		out = append(out, h.statsFor(groupID, state))
		return true
	})
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

func (h *StatsHandler) Get(c *gin.Context) {
	groupID := c.Param("group")
	state, ok := h.registry.Get(groupID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown query group"})
		return
	}
	c.JSON(http.StatusOK, h.statsFor(groupID, state))
}
