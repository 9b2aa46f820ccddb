// Package enginetest provides an in-memory execution engine for tests and
// the load simulator. It honors the same attribution and cancellation
// contracts a real execution framework would.
package enginetest

import (
	"context"
	"sync"

	"github.com/querywarden/querywarden/pkg/engine"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

// Query is one simulated in-flight query.
type Query struct {
	id      string
	groupID string
	attr    *tracker.Attribution
	token   *engine.CancelToken
}

func (q *Query) ID() string      { return q.id }
func (q *Query) GroupID() string { return q.groupID }

func (q *Query) UsageOf(rt resource.Type) int64 {
	return q.attr.UsageOf(rt)
}

// Add grows (or shrinks) the query's consumption of a resource.
func (q *Query) Add(rt resource.Type, delta int64) {
	q.attr.Add(rt, delta)
}

func (q *Query) Token() *engine.CancelToken {
	return q.token
}

// Engine is a concurrency-safe fake execution engine backed by the real
// tracker and registry.
type Engine struct {
	tracker  *tracker.Tracker
	registry *stats.Registry

	mu       sync.Mutex
	queries  map[string]*Query
	enumErrs map[string]error
}

func New(tr *tracker.Tracker, registry *stats.Registry) *Engine {
	return &Engine{
		tracker:  tr,
		registry: registry,
		queries:  make(map[string]*Query),
		enumErrs: make(map[string]error),
	}
}

// Start begins a query attributed to a group. The caller chooses the id so
// tests can pin ordering.
func (e *Engine) Start(id, groupID string) *Query {
	q := &Query{
		id:      id,
		groupID: groupID,
		attr:    e.tracker.Begin(groupID),
		token:   &engine.CancelToken{},
	}
	e.mu.Lock()
	e.queries[id] = q
	e.mu.Unlock()
	return q
}

// Finish completes a query: releases its attribution and records the outcome.
// Cancelled queries count as cancellations already recorded by the enforcer,
// so they are finished with failed=false and no completion increment.
func (e *Engine) Finish(id string, failed bool) {
	e.mu.Lock()
	q, ok := e.queries[id]
	delete(e.queries, id)
	e.mu.Unlock()
	if !ok {
		return
	}

	q.attr.Release()
	state := e.registry.GetOrCreate(q.groupID)
	if q.token.Cancelled() {
		return
	}
	if failed {
		state.RecordFailure()
	} else {
		state.RecordCompletion()
	}
}

// FailEnumeration makes RunningQueries fail for one group, simulating an
// engine that cannot list a group's queries.
func (e *Engine) FailEnumeration(groupID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.enumErrs, groupID)
		return
	}
	e.enumErrs[groupID] = err
}

func (e *Engine) RunningQueries(_ context.Context, groupID string) ([]engine.RunningQuery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enumErrs[groupID]; err != nil {
		return nil, err
	}

	var out []engine.RunningQuery
	for _, q := range e.queries {
		if q.groupID == groupID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (e *Engine) Cancel(_ context.Context, queryID string) engine.CancelResult {
	e.mu.Lock()
	q, ok := e.queries[queryID]
	e.mu.Unlock()
	if !ok {
		return engine.CancelNoop
	}
	q.token.Cancel()
	return engine.CancelSignaled
}

// Running reports whether a query is still in flight.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.queries[id]
	return ok
}
