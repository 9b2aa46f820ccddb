package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

type fakeSource struct {
	mu   sync.Mutex
	defs []*model.GroupConfig
	err  error
}

func (f *fakeSource) Groups(context.Context) ([]*model.GroupConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]*model.GroupConfig(nil), f.defs...), nil
}

func (f *fakeSource) set(defs ...*model.GroupConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs = defs
}

func group(t *testing.T, id string, mode model.EnforcementMode, hardCPU float64) *model.GroupConfig {
	t.Helper()
	limits := map[resource.Type]model.Thresholds{}
	if hardCPU > 0 {
		limits[resource.CPU] = model.Thresholds{Soft: hardCPU / 2, Hard: hardCPU}
	}
	cfg, err := model.NewGroupConfig(id, mode, limits)
	if err != nil {
		t.Fatalf("group config: %v", err)
	}
	return cfg
}

func newManager(t *testing.T, source Source) (*Manager, *stats.Registry) {
	t.Helper()
	catalog := resource.NewCatalog(map[resource.Type]int64{resource.CPU: 100})
	tr := tracker.New(catalog)
	registry := stats.NewRegistry(catalog, tr, zap.NewNop())
	m := NewManager(source, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop(), 0)
	return m, registry
}

func TestDefaultGroupAlwaysPresent(t *testing.T) {
	m, registry := newManager(t, &fakeSource{})

	cfg, ok := m.Lookup(model.DefaultGroupID)
	if !ok {
		t.Fatal("default group must be resolvable")
	}
	if cfg.Enforced() {
		t.Fatal("default group must be monitor-only")
	}
	if _, ok := registry.Get(model.DefaultGroupID); !ok {
		t.Fatal("default group state must exist")
	}

	m.Deregister(model.DefaultGroupID)
	if _, ok := m.Lookup(model.DefaultGroupID); !ok {
		t.Fatal("default group must survive deregistration attempts")
	}
}

func TestRefreshRegistersAndDeregisters(t *testing.T) {
	source := &fakeSource{}
	source.set(group(t, "analytics", model.ModeEnforced, 0.8))
	m, registry := newManager(t, source)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if _, ok := m.Lookup("analytics"); !ok {
		t.Fatal("expected analytics registered")
	}
	if _, ok := registry.Get("analytics"); !ok {
		t.Fatal("expected analytics state created")
	}

	source.set() // definition deleted upstream
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if _, ok := m.Lookup("analytics"); ok {
		t.Fatal("expected analytics deregistered")
	}
	if _, ok := registry.Get("analytics"); ok {
		t.Fatal("expected drained analytics state removed")
	}
}

func TestRefreshAppliesThresholdChangesAtomically(t *testing.T) {
	source := &fakeSource{}
	source.set(group(t, "analytics", model.ModeEnforced, 0.8))
	m, _ := newManager(t, source)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	source.set(group(t, "analytics", model.ModeMonitorOnly, 0.5))
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	cfg, ok := m.Lookup("analytics")
	if !ok {
		t.Fatal("expected analytics still registered")
	}
	if cfg.Enforced() {
		t.Fatal("expected updated mode")
	}
	th, _ := cfg.Threshold(resource.CPU)
	if th.Hard != 0.5 {
		t.Fatalf("expected updated hard threshold 0.5, got %v", th.Hard)
	}
}

func TestRefreshSourceFailureKeepsView(t *testing.T) {
	source := &fakeSource{}
	source.set(group(t, "analytics", model.ModeEnforced, 0.8))
	m, _ := newManager(t, source)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	source.mu.Lock()
	source.err = errors.New("source unavailable")
	source.mu.Unlock()

	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, ok := m.Lookup("analytics"); !ok {
		t.Fatal("view must be preserved when the source fails")
	}
}

func TestRefreshIgnoresDefaultGroupDefinition(t *testing.T) {
	source := &fakeSource{}
	source.set(group(t, model.DefaultGroupID, model.ModeEnforced, 0.1))
	m, _ := newManager(t, source)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	cfg, _ := m.Lookup(model.DefaultGroupID)
	if cfg.Enforced() {
		t.Fatal("default group must remain unrestricted")
	}
}
