// Package engine defines the boundary to the external query execution
// framework. The governance core enumerates running queries and signals
// cancellation through it; the framework itself lives outside this module.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/querywarden/querywarden/pkg/resource"
)

// CancelResult reports what a cancellation request did.
type CancelResult int

const (
	// CancelSignaled means the target was running and its token was set.
	CancelSignaled CancelResult = iota
	// CancelNoop means the target had already finished. Not an error.
	CancelNoop
)

// RunningQuery is the enforcement loop's view of one in-flight query.
type RunningQuery interface {
	ID() string
	GroupID() string
	UsageOf(rt resource.Type) int64
}

// Engine is the execution framework seen from the governance core.
type Engine interface {
	// RunningQueries enumerates the queries currently attributed to a group.
	RunningQueries(ctx context.Context, groupID string) ([]RunningQuery, error)
	// Cancel signals cooperative cancellation of one query and returns
	// immediately; it never waits for the query to terminate.
	Cancel(ctx context.Context, queryID string) CancelResult
}

// CancelToken is the cooperative cancellation flag handed to the execution
// framework at query start. The core only sets it; the framework polls it at
// bounded intervals.
type CancelToken struct {
	cancelled atomic.Bool
}

func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
