// load-simulator drives the governance core with synthetic query traffic:
// workers ask for admission, grow their consumption, and cooperatively honor
// cancellation, while the enforcement loop polices the configured groups.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/admission"
	"github.com/querywarden/querywarden/pkg/enforcer"
	"github.com/querywarden/querywarden/pkg/engine/enginetest"
	"github.com/querywarden/querywarden/pkg/eventbus"
	"github.com/querywarden/querywarden/pkg/lifecycle"
	"github.com/querywarden/querywarden/pkg/model"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

type staticSource struct {
	groups []*model.GroupConfig
}

func (s *staticSource) Groups(context.Context) ([]*model.GroupConfig, error) {
	return s.groups, nil
}

func main() {
	var (
		workers  = flag.Int("workers", 8, "concurrent query workers")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		interval = flag.Duration("interval", 250*time.Millisecond, "enforcement interval")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	catalog := resource.NewCatalog(map[resource.Type]int64{
		resource.CPU:    10000,
		resource.Memory: 1 << 30,
	})

	analytics, err := model.NewGroupConfig("analytics", model.ModeEnforced, map[resource.Type]model.Thresholds{
		resource.CPU:    {Soft: 0.3, Hard: 0.4},
		resource.Memory: {Soft: 0.5, Hard: 0.6},
	})
	if err != nil {
		panic(err)
	}
	reporting, err := model.NewGroupConfig("reporting", model.ModeMonitorOnly, map[resource.Type]model.Thresholds{
		resource.CPU: {Soft: 0.2, Hard: 0.3},
	})
	if err != nil {
		panic(err)
	}

	tr := tracker.New(catalog)
	registry := stats.NewRegistry(catalog, tr, logger)
	publisher := eventbus.NewPublisher(nil, logger)
	manager := lifecycle.NewManager(&staticSource{groups: []*model.GroupConfig{analytics, reporting}},
		registry, publisher, logger, time.Second)
	controller := admission.NewController(catalog, manager, tr, registry, publisher, logger)
	eng := enginetest.New(tr, registry)
	enf := enforcer.New(catalog, manager, tr, registry, eng, publisher, logger, *interval, 0)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	if err := manager.Refresh(ctx); err != nil {
		logger.Fatal("failed to load groups", zap.Error(err))
	}
	go enf.Run(ctx)

	groups := []string{"analytics", "reporting", ""}
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				runQuery(ctx, rng, groups[rng.Intn(len(groups))], controller, eng)
			}
		}(int64(i))
	}
	wg.Wait()

	registry.Range(func(groupID string, state *stats.GroupState) bool {
		snap := state.Snapshot()
		logger.Info("final group stats",
			zap.String("group_id", groupID),
			zap.Int64("completions", snap.Completions),
			zap.Int64("rejections", snap.Rejections),
			zap.Int64("cancellations", snap.Cancellations))
		return true
	})
}

func runQuery(ctx context.Context, rng *rand.Rand, groupID string, controller *admission.Controller, eng *enginetest.Engine) {
	decision := controller.Admit(groupID)
	if !decision.Admitted {
		time.Sleep(time.Duration(10+rng.Intn(40)) * time.Millisecond)
		return
	}

	q := eng.Start(uuid.NewString(), decision.GroupID)
	steps := 5 + rng.Intn(20)
	for i := 0; i < steps && ctx.Err() == nil; i++ {
		if q.Token().Cancelled() {
			eng.Finish(q.ID(), false)
			return
		}
		q.Add(resource.CPU, int64(50+rng.Intn(200)))
		q.Add(resource.Memory, int64(1<<16+rng.Intn(1<<20)))
		time.Sleep(time.Duration(5+rng.Intn(20)) * time.Millisecond)
	}
	eng.Finish(q.ID(), rng.Intn(50) == 0)
}
