package stats

import (
	"sync/atomic"

	"github.com/querywarden/querywarden/pkg/resource"
)

// ResourceStats holds the per-resource counters of one group. Rejections are
// written by the admission controller, cancellations by the enforcement loop.
type ResourceStats struct {
	rejections    atomic.Int64
	cancellations atomic.Int64
}

// GroupState carries one group's cumulative counters since process start.
// Counters never decrease; each is an independent atomic, so a snapshot is
// per-counter atomic but not a cross-counter transaction.
type GroupState struct {
	groupID string

	completions   atomic.Int64
	rejections    atomic.Int64
	failures      atomic.Int64
	cancellations atomic.Int64

	// Populated at construction for stats-enabled resource types only;
	// the key set never changes afterwards.
	resources [resource.NumTypes]*ResourceStats
}

func newGroupState(groupID string, catalog *resource.Catalog) *GroupState {
	s := &GroupState{groupID: groupID}
	for _, rt := range catalog.EnabledTypes() {
		s.resources[rt] = &ResourceStats{}
	}
	return s
}

func (s *GroupState) GroupID() string {
	return s.groupID
}

func (s *GroupState) RecordCompletion() {
	s.completions.Add(1)
}

func (s *GroupState) RecordFailure() {
	s.failures.Add(1)
}

func (s *GroupState) RecordRejection(rt resource.Type) {
	s.rejections.Add(1)
	if rs := s.resourceStats(rt); rs != nil {
		rs.rejections.Add(1)
	}
}

func (s *GroupState) RecordCancellation(rt resource.Type) {
	s.cancellations.Add(1)
	if rs := s.resourceStats(rt); rs != nil {
		rs.cancellations.Add(1)
	}
}

func (s *GroupState) resourceStats(rt resource.Type) *ResourceStats {
	if !rt.Valid() {
		return nil
	}
	return s.resources[rt]
}

// ResourceSnapshot is a point-in-time read of one resource's counters.
type ResourceSnapshot struct {
	Rejections    int64 `json:"rejections"`
	Cancellations int64 `json:"cancellations"`
}

// Snapshot is a point-in-time view of a group's counters for reporting.
type Snapshot struct {
	GroupID       string                      `json:"group_id"`
	Completions   int64                       `json:"completions"`
	Rejections    int64                       `json:"total_rejections"`
	Failures      int64                       `json:"failures"`
	Cancellations int64                       `json:"total_cancellations"`
	Resources     map[string]ResourceSnapshot `json:"resources"`
}

// Snapshot reads every counter atomically. Concurrent increments may land
// between individual reads; monitoring accepts that.
func (s *GroupState) Snapshot() Snapshot {
	snap := Snapshot{
		GroupID:       s.groupID,
		Completions:   s.completions.Load(),
		Rejections:    s.rejections.Load(),
		Failures:      s.failures.Load(),
		Cancellations: s.cancellations.Load(),
		Resources:     make(map[string]ResourceSnapshot, resource.NumTypes),
	}
	for _, rt := range resource.Types() {
		rs := s.resources[rt]
		if rs == nil {
			continue
		}
		snap.Resources[rt.String()] = ResourceSnapshot{
			Rejections:    rs.rejections.Load(),
			Cancellations: rs.cancellations.Load(),
		}
	}
	return snap
}
