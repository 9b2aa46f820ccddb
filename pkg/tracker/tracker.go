package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/querywarden/querywarden/pkg/resource"
)

type groupUsage struct {
	usage  [resource.NumTypes]atomic.Int64
	active atomic.Int64
}

// Tracker attributes live resource consumption to (group, resource type).
// Updates are independent atomics per pair; reads are eventually consistent
// with concurrent writers.
type Tracker struct {
	catalog *resource.Catalog
	groups  sync.Map // group id -> *groupUsage
}

func New(catalog *resource.Catalog) *Tracker {
	return &Tracker{catalog: catalog}
}

func (t *Tracker) usageFor(groupID string) *groupUsage {
	if g, ok := t.groups.Load(groupID); ok {
		return g.(*groupUsage)
	}
	g, _ := t.groups.LoadOrStore(groupID, &groupUsage{})
	return g.(*groupUsage)
}

// Attribute adds a signed delta to a group's running usage of a resource.
// Deltas for resource types without statistics enabled are dropped.
func (t *Tracker) Attribute(groupID string, rt resource.Type, delta int64) {
	if !t.catalog.Enabled(rt) {
		return
	}
	t.usageFor(groupID).usage[rt].Add(delta)
}

// CurrentUsage returns the latest accumulated usage for a group and resource.
func (t *Tracker) CurrentUsage(groupID string, rt resource.Type) int64 {
	if !t.catalog.Enabled(rt) {
		return 0
	}
	g, ok := t.groups.Load(groupID)
	if !ok {
		return 0
	}
	return g.(*groupUsage).usage[rt].Load()
}

// ActiveQueries returns the number of attributions begun for a group and not
// yet released.
func (t *Tracker) ActiveQueries(groupID string) int64 {
	g, ok := t.groups.Load(groupID)
	if !ok {
		return 0
	}
	return g.(*groupUsage).active.Load()
}

// Forget drops a group's accumulators. Called after the group's state has
// been removed; a later reappearance of the id starts from zero.
func (t *Tracker) Forget(groupID string) {
	t.groups.Delete(groupID)
}

// Begin opens an attribution handle for one query. The handle feeds both the
// query-local and the group-level accumulators so the final compensating
// subtraction on release is exact.
func (t *Tracker) Begin(groupID string) *Attribution {
	t.usageFor(groupID).active.Add(1)
	return &Attribution{tracker: t, groupID: groupID}
}

// Attribution measures one query's consumption. Release undoes the query's
// contribution exactly once, no matter how many paths race to clean up.
type Attribution struct {
	tracker  *Tracker
	groupID  string
	usage    [resource.NumTypes]atomic.Int64
	released atomic.Bool
}

func (a *Attribution) GroupID() string {
	return a.groupID
}

// Add records consumption growth (or shrinkage) for the query. No-op after
// release.
func (a *Attribution) Add(rt resource.Type, delta int64) {
	if !rt.Valid() || a.released.Load() {
		return
	}
	a.usage[rt].Add(delta)
	a.tracker.Attribute(a.groupID, rt, delta)
}

// UsageOf returns the query's own accumulated consumption of a resource.
func (a *Attribution) UsageOf(rt resource.Type) int64 {
	if !rt.Valid() {
		return 0
	}
	return a.usage[rt].Load()
}

// Release subtracts the query's measured consumption from the group's live
// usage. Idempotent: concurrent completion and cancellation cleanup paths
// subtract at most once.
func (a *Attribution) Release() {
	if !a.released.CompareAndSwap(false, true) {
		return
	}
	for _, rt := range resource.Types() {
		if final := a.usage[rt].Load(); final != 0 {
			a.tracker.Attribute(a.groupID, rt, -final)
		}
	}
	a.tracker.usageFor(a.groupID).active.Add(-1)
}
