package tracker

import (
	"sync"
	"testing"

	"github.com/querywarden/querywarden/pkg/resource"
)

func newTestTracker() *Tracker {
	return New(resource.NewCatalog(map[resource.Type]int64{
		resource.CPU:    10000,
		resource.Memory: 1 << 30,
	}))
}

func TestConcurrentAttributeNoLostUpdates(t *testing.T) {
	tr := newTestTracker()

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				tr.Attribute("analytics", resource.CPU, 3)
				tr.Attribute("analytics", resource.CPU, -1)
			}
		}()
	}
	wg.Wait()

	want := int64(workers * perWorker * 2)
	if got := tr.CurrentUsage("analytics", resource.CPU); got != want {
		t.Fatalf("expected usage %d, got %d", want, got)
	}
}

func TestAttributeDisabledTypeDropped(t *testing.T) {
	tr := New(resource.NewCatalog(map[resource.Type]int64{resource.CPU: 1000}))

	tr.Attribute("analytics", resource.Memory, 100)
	if got := tr.CurrentUsage("analytics", resource.Memory); got != 0 {
		t.Fatalf("expected zero usage for disabled type, got %d", got)
	}
}

func TestAttributionReleaseCompensatesExactly(t *testing.T) {
	tr := newTestTracker()

	attr := tr.Begin("analytics")
	attr.Add(resource.CPU, 40)
	attr.Add(resource.Memory, 1024)
	attr.Add(resource.CPU, 10)

	if got := tr.CurrentUsage("analytics", resource.CPU); got != 50 {
		t.Fatalf("expected live cpu usage 50, got %d", got)
	}
	if got := attr.UsageOf(resource.CPU); got != 50 {
		t.Fatalf("expected query cpu usage 50, got %d", got)
	}

	attr.Release()

	if got := tr.CurrentUsage("analytics", resource.CPU); got != 0 {
		t.Fatalf("expected cpu usage 0 after release, got %d", got)
	}
	if got := tr.CurrentUsage("analytics", resource.Memory); got != 0 {
		t.Fatalf("expected memory usage 0 after release, got %d", got)
	}
}

func TestAttributionReleaseIdempotent(t *testing.T) {
	tr := newTestTracker()

	other := tr.Begin("analytics")
	other.Add(resource.CPU, 100)

	attr := tr.Begin("analytics")
	attr.Add(resource.CPU, 30)

	// Completion and cancellation cleanup racing on the same query.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attr.Release()
		}()
	}
	wg.Wait()

	if got := tr.CurrentUsage("analytics", resource.CPU); got != 100 {
		t.Fatalf("expected usage 100 after idempotent release, got %d", got)
	}
	if got := tr.ActiveQueries("analytics"); got != 1 {
		t.Fatalf("expected 1 active query, got %d", got)
	}
}

func TestActiveQueries(t *testing.T) {
	tr := newTestTracker()

	first := tr.Begin("ingest")
	second := tr.Begin("ingest")
	if got := tr.ActiveQueries("ingest"); got != 2 {
		t.Fatalf("expected 2 active queries, got %d", got)
	}

	first.Release()
	second.Release()
	if got := tr.ActiveQueries("ingest"); got != 0 {
		t.Fatalf("expected 0 active queries, got %d", got)
	}
}

func TestForgetResetsUsage(t *testing.T) {
	tr := newTestTracker()

	tr.Attribute("adhoc", resource.CPU, 77)
	tr.Forget("adhoc")
	if got := tr.CurrentUsage("adhoc", resource.CPU); got != 0 {
		t.Fatalf("expected usage 0 after forget, got %d", got)
	}
}
