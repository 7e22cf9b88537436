// Package campaign walks a catalog of entities and launches one
// orchestrator run per entity with bounded concurrency. Fan-out across
// entities happens here, never inside a single entity run.
package campaign

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/rawblock/discovery-engine/internal/engine"
	"github.com/rawblock/discovery-engine/pkg/model"
)

// Runner drives a bounded-concurrency sweep of entities through the
// Orchestrator.
type Runner struct {
	orchestrator   *engine.Orchestrator
	maxConcurrency int

	totalEntities atomic.Int64
	completed     atomic.Int64
	running       atomic.Bool
}

// NewRunner constructs a Runner bound to an Orchestrator.
func NewRunner(orchestrator *engine.Orchestrator, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Runner{orchestrator: orchestrator, maxConcurrency: maxConcurrency}
}

// RunProgress is a thread-safe snapshot of a catalog sweep.
type RunProgress struct {
	Running       bool  `json:"running"`
	TotalEntities int64 `json:"totalEntities"`
	Completed     int64 `json:"completed"`
}

// GetProgress returns the current sweep progress.
func (r *Runner) GetProgress() RunProgress {
	return RunProgress{
		Running:       r.running.Load(),
		TotalEntities: r.totalEntities.Load(),
		Completed:     r.completed.Load(),
	}
}

// ReportFunc receives each entity's completed OpportunityReport as it
// finishes; callers may persist or forward it.
type ReportFunc func(model.OpportunityReport)

// Sweep runs entities concurrently up to maxConcurrency, invoking onReport
// for each completed run. Sweep blocks until every entity has been
// processed or ctx is cancelled.
func (r *Runner) Sweep(ctx context.Context, entities []model.Entity, tier string, onReport ReportFunc) {
	r.running.Store(true)
	defer r.running.Store(false)

	r.totalEntities.Store(int64(len(entities)))
	r.completed.Store(0)

	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	log.Printf("[CampaignRunner] Starting sweep of %d entities (concurrency=%d)", len(entities), r.maxConcurrency)

	for _, entity := range entities {
		select {
		case <-ctx.Done():
			log.Printf("[CampaignRunner] Sweep cancelled after %d/%d entities", r.completed.Load(), len(entities))
			wg.Wait()
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(e model.Entity) {
			defer wg.Done()
			defer func() { <-sem }()

			report := r.orchestrator.Run(ctx, e, tier)
			completed := r.completed.Add(1)
			if completed%10 == 0 {
				log.Printf("[CampaignRunner] Progress: %d/%d entities processed", completed, len(entities))
			}
			if onReport != nil {
				onReport(report)
			}
		}(entity)
	}

	wg.Wait()
	log.Printf("[CampaignRunner] Sweep complete: %d entities processed", r.completed.Load())
}
