package admission

import (
	"testing"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

type fakeConfigs map[string]*model.GroupConfig

func (f fakeConfigs) Lookup(groupID string) (*model.GroupConfig, bool) {
	cfg, ok := f[groupID]
	return cfg, ok
}

func testStack(t *testing.T) (*resource.Catalog, *tracker.Tracker, *stats.Registry) {
	t.Helper()
	catalog := resource.NewCatalog(map[resource.Type]int64{
		resource.CPU:    100,
		resource.Memory: 1000,
	})
	tr := tracker.New(catalog)
	registry := stats.NewRegistry(catalog, tr, zap.NewNop())
	return catalog, tr, registry
}

func enforcedGroup(t *testing.T, id string, hardCPU float64) *model.GroupConfig {
	t.Helper()
	cfg, err := model.NewGroupConfig(id, model.ModeEnforced, map[resource.Type]model.Thresholds{
		resource.CPU: {Soft: hardCPU - 0.1, Hard: hardCPU},
	})
	if err != nil {
		t.Fatalf("group config: %v", err)
	}
	return cfg
}

func TestAdmitRejectsOverBudgetEnforcedGroup(t *testing.T) {
	catalog, tr, registry := testStack(t)
	configs := fakeConfigs{"analytics": enforcedGroup(t, "analytics", 0.8)}
	controller := NewController(catalog, configs, tr, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop())

	// 85 of 100 cpu units against a hard threshold of 80%.
	tr.Attribute("analytics", resource.CPU, 85)

	decision := controller.Admit("analytics")
	if decision.Admitted {
		t.Fatal("expected rejection")
	}
	if decision.Reason != resource.CPU {
		t.Fatalf("expected cpu reason, got %v", decision.Reason)
	}

	snap, _ := registry.Get("analytics")
	got := snap.Snapshot()
	if got.Rejections != 1 {
		t.Fatalf("expected 1 total rejection, got %d", got.Rejections)
	}
	if got.Resources["cpu"].Rejections != 1 {
		t.Fatalf("expected 1 cpu rejection, got %d", got.Resources["cpu"].Rejections)
	}

	// A different, unconfigured group under identical node load admits.
	if d := controller.Admit("reporting"); !d.Admitted {
		t.Fatal("expected unconfigured group to admit")
	}
}

func TestAdmitUnderBudget(t *testing.T) {
	catalog, tr, registry := testStack(t)
	configs := fakeConfigs{"analytics": enforcedGroup(t, "analytics", 0.8)}
	controller := NewController(catalog, configs, tr, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop())

	tr.Attribute("analytics", resource.CPU, 79)

	if d := controller.Admit("analytics"); !d.Admitted {
		t.Fatalf("expected admission, got rejection on %v", d.Reason)
	}

	state, _ := registry.Get("analytics")
	if snap := state.Snapshot(); snap.Rejections != 0 {
		t.Fatalf("admission must not touch rejection counters, got %d", snap.Rejections)
	}
}

func TestAdmitMonitorOnlyNeverRejects(t *testing.T) {
	catalog, tr, registry := testStack(t)
	cfg, err := model.NewGroupConfig("analytics", model.ModeMonitorOnly, map[resource.Type]model.Thresholds{
		resource.CPU: {Soft: 0.5, Hard: 0.6},
	})
	if err != nil {
		t.Fatalf("group config: %v", err)
	}
	controller := NewController(catalog, fakeConfigs{"analytics": cfg}, tr, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop())

	tr.Attribute("analytics", resource.CPU, 99)

	if d := controller.Admit("analytics"); !d.Admitted {
		t.Fatal("monitor-only group must admit despite breach")
	}
}

func TestAdmitEmptyGroupFallsBackToDefault(t *testing.T) {
	catalog, tr, registry := testStack(t)
	controller := NewController(catalog, fakeConfigs{}, tr, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop())

	decision := controller.Admit("")
	if !decision.Admitted {
		t.Fatal("default group must admit")
	}
	if decision.GroupID != model.DefaultGroupID {
		t.Fatalf("expected default group attribution, got %q", decision.GroupID)
	}
	if _, ok := registry.Get(model.DefaultGroupID); !ok {
		t.Fatal("expected default group state to exist")
	}
}

func TestAdmitMemoryBreach(t *testing.T) {
	catalog, tr, registry := testStack(t)
	cfg, err := model.NewGroupConfig("ingest", model.ModeEnforced, map[resource.Type]model.Thresholds{
		resource.Memory: {Soft: 0.8, Hard: 0.9},
	})
	if err != nil {
		t.Fatalf("group config: %v", err)
	}
	controller := NewController(catalog, fakeConfigs{"ingest": cfg}, tr, registry, eventbus.NewPublisher(nil, zap.NewNop()), zap.NewNop())

	tr.Attribute("ingest", resource.Memory, 950)

	decision := controller.Admit("ingest")
	if decision.Admitted || decision.Reason != resource.Memory {
		t.Fatalf("expected memory rejection, got %+v", decision)
	}
}
