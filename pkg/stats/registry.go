package stats

import (
	"sync"

	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/resource"
)

// ActiveCounter reports how many queries a group currently has in flight.
// The usage tracker implements it.
type ActiveCounter interface {
	ActiveQueries(groupID string) int64
}

// Registry is the concurrent map from group id to live GroupState. A state is
// published only after full construction; removal is deferred until the group
// has no active queries, so in-flight attribution is never orphaned.
type Registry struct {
	catalog *resource.Catalog
	active  ActiveCounter
	logger  *zap.Logger

	groups sync.Map // group id -> *GroupState

	mu     sync.Mutex
	doomed map[string]struct{}
}

func NewRegistry(catalog *resource.Catalog, active ActiveCounter, logger *zap.Logger) *Registry {
	return &Registry{
		catalog: catalog,
		active:  active,
		logger:  logger,
		doomed:  make(map[string]struct{}),
	}
}

// GetOrCreate returns the group's state, constructing it race-free on first
// access: concurrent callers all observe the same fully-initialized state.
func (r *Registry) GetOrCreate(groupID string) *GroupState {
	if s, ok := r.groups.Load(groupID); ok {
		return s.(*GroupState)
	}
	s, loaded := r.groups.LoadOrStore(groupID, newGroupState(groupID, r.catalog))
	if !loaded {
		r.logger.Debug("created query group state", zap.String("group_id", groupID))
	}
	return s.(*GroupState)
}

func (r *Registry) Get(groupID string) (*GroupState, bool) {
	s, ok := r.groups.Load(groupID)
	if !ok {
		return nil, false
	}
	return s.(*GroupState), true
}

// Range visits every live group state.
func (r *Registry) Range(fn func(groupID string, state *GroupState) bool) {
	r.groups.Range(func(key, value any) bool {
		return fn(key.(string), value.(*GroupState))
	})
}

// Register clears any pending removal for the id and ensures its state
// exists.
func (r *Registry) Register(groupID string) *GroupState {
	r.mu.Lock()
	delete(r.doomed, groupID)
	r.mu.Unlock()
	return r.GetOrCreate(groupID)
}

// Deregister removes a group's state once it has zero active queries. Groups
// still running work are marked for removal and swept later; recreation under
// the same id after removal starts from zero counters.
func (r *Registry) Deregister(groupID string) {
	if r.active.ActiveQueries(groupID) == 0 {
		r.groups.Delete(groupID)
		r.logger.Info("removed query group state", zap.String("group_id", groupID))
		return
	}
	r.mu.Lock()
	r.doomed[groupID] = struct{}{}
	r.mu.Unlock()
	r.logger.Info("deferred query group removal, queries still running",
		zap.String("group_id", groupID),
		zap.Int64("active_queries", r.active.ActiveQueries(groupID)))
}

// Sweep completes deferred removals whose groups have drained. Returns the
// ids actually removed so callers can release related bookkeeping.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for groupID := range r.doomed {
		if r.active.ActiveQueries(groupID) != 0 {
			continue
		}
		r.groups.Delete(groupID)
		delete(r.doomed, groupID)
		removed = append(removed, groupID)
		r.logger.Info("removed query group state", zap.String("group_id", groupID))
	}
	return removed
}
