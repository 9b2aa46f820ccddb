// Package lifecycle owns the set of configured query groups: it polls a
// configuration source, registers and deregisters group state, and serves
// the read-only config view the admission and enforcement paths consult.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/stats"
)

// Source supplies group definitions from wherever they are authored. The
// manager only reads; creating and replicating definitions is external.
type Source interface {
	Groups(ctx context.Context) ([]*model.GroupConfig, error)
}

type Manager struct {
	source   Source
	registry *stats.Registry
	events   *eventbus.Publisher
	logger   *zap.Logger
	interval time.Duration

	// view is an immutable snapshot swapped wholesale on every change, so
	// Lookup on the admission hot path is a single atomic load.
	view atomic.Pointer[map[string]*model.GroupConfig]

	mu sync.Mutex // serializes writers (refresh, Register, Deregister)
}

func NewManager(
	source Source,
	registry *stats.Registry,
	events *eventbus.Publisher,
	logger *zap.Logger,
	interval time.Duration,
) *Manager {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &Manager{
		source:   source,
		registry: registry,
		events:   events,
		logger:   logger,
		interval: interval,
	}
	initial := map[string]*model.GroupConfig{
		model.DefaultGroupID: model.DefaultGroup(),
	}
	m.view.Store(&initial)
	registry.GetOrCreate(model.DefaultGroupID)
	return m
}

// Lookup resolves a group's live configuration. Lock-free; safe from any
// goroutine including the admission hot path.
func (m *Manager) Lookup(groupID string) (*model.GroupConfig, bool) {
	cfg, ok := (*m.view.Load())[groupID]
	return cfg, ok
}

// GroupIDs lists the currently configured groups.
func (m *Manager) GroupIDs() []string {
	view := *m.view.Load()
	ids := make([]string, 0, len(view))
	for id := range view {
		ids = append(ids, id)
	}
	return ids
}

// Register makes a group live: its config becomes visible to admission and
// its state exists in the registry.
func (m *Manager) Register(cfg *model.GroupConfig) {
	m.mu.Lock()
	m.storeLocked(func(next map[string]*model.GroupConfig) {
		next[cfg.ID] = cfg
	})
	m.mu.Unlock()

	m.registry.Register(cfg.ID)
	m.events.TryPublish(eventbus.ChannelGroup, "group_registered", eventbus.GroupEvent{
		GroupID: cfg.ID,
		Mode:    string(cfg.Mode),
	})
	m.logger.Info("registered query group",
		zap.String("group_id", cfg.ID),
		zap.String("mode", string(cfg.Mode)))
}

// Deregister withdraws a group's configuration and schedules its state for
// removal once it drains. The default group cannot be deregistered.
func (m *Manager) Deregister(groupID string) {
	if groupID == model.DefaultGroupID {
		return
	}

	m.mu.Lock()
	m.storeLocked(func(next map[string]*model.GroupConfig) {
		delete(next, groupID)
	})
	m.mu.Unlock()

	m.registry.Deregister(groupID)
	m.events.TryPublish(eventbus.ChannelGroup, "group_deregistered", eventbus.GroupEvent{
		GroupID: groupID,
	})
	m.logger.Info("deregistered query group", zap.String("group_id", groupID))
}

// storeLocked copies the current view, applies the mutation and publishes
// the result atomically. Callers hold mu.
func (m *Manager) storeLocked(mutate func(map[string]*model.GroupConfig)) {
	current := *m.view.Load()
	next := make(map[string]*model.GroupConfig, len(current)+1)
	for id, cfg := range current {
		next[id] = cfg
	}
	mutate(next)
	m.view.Store(&next)
}

// Run polls the source until the context ends. The first refresh happens
// immediately so the node starts with the authored groups.
func (m *Manager) Run(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil {
		m.logger.Error("initial group refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.Error("group refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh diffs the source against the live view: new groups are registered,
// vanished groups deregistered, changed thresholds swapped in atomically.
func (m *Manager) Refresh(ctx context.Context) error {
	defs, err := m.source.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list group definitions: %w", err)
	}

	incoming := make(map[string]*model.GroupConfig, len(defs))
	for _, cfg := range defs {
		if cfg.ID == model.DefaultGroupID {
			m.logger.Warn("ignoring source definition for the implicit default group")
			continue
		}
		incoming[cfg.ID] = cfg
	}

	current := *m.view.Load()
	for id, cfg := range incoming {
		if _, exists := current[id]; !exists {
			m.Register(cfg)
		}
	}
	for id := range current {
		if id == model.DefaultGroupID {
			continue
		}
		if _, kept := incoming[id]; !kept {
			m.Deregister(id)
		}
	}

	// Apply threshold/mode changes for surviving groups in one swap.
	m.mu.Lock()
	m.storeLocked(func(next map[string]*model.GroupConfig) {
		for id, cfg := range incoming {
			next[id] = cfg
		}
	})
	m.mu.Unlock()

	return nil
}
