package campaign

import (
	"context"
	"sync"
	"testing"

	"github.com/rawblock/discovery-engine/internal/engine"
	"github.com/rawblock/discovery-engine/pkg/model"
)

func testOrchestrator() *engine.Orchestrator {
	priors := engine.NewTemporalPriorService()
	return engine.NewOrchestrator(nil, nil, nil, nil, nil, nil, priors, nil, nil, engine.OrchestratorConfig{MaxPasses: 1, PerCategoryBudget: 1, TargetConfidence: 0.85})
}

func TestRunner_Sweep_ProcessesEveryEntity(t *testing.T) {
	r := NewRunner(testOrchestrator(), 2)

	entities := []model.Entity{
		{EntityID: "e1", Name: "A FC"},
		{EntityID: "e2", Name: "B FC"},
		{EntityID: "e3", Name: "C FC"},
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	r.Sweep(context.Background(), entities, "basic", func(report model.OpportunityReport) {
		mu.Lock()
		seen[report.EntityID] = true
		mu.Unlock()
	})

	if len(seen) != len(entities) {
		t.Fatalf("expected %d reports, got %d", len(entities), len(seen))
	}
	for _, e := range entities {
		if !seen[e.EntityID] {
			t.Errorf("expected a report for entity %q", e.EntityID)
		}
	}

	progress := r.GetProgress()
	if progress.Running {
		t.Errorf("expected Running=false after Sweep returns")
	}
	if progress.Completed != int64(len(entities)) {
		t.Errorf("expected Completed=%d, got %d", len(entities), progress.Completed)
	}
}

func TestRunner_Sweep_StopsEarlyOnCancellation(t *testing.T) {
	r := NewRunner(testOrchestrator(), 1)

	entities := make([]model.Entity, 20)
	for i := range entities {
		entities[i] = model.Entity{EntityID: model.NewID("ent"), Name: "Team"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Sweep(ctx, entities, "basic", nil)

	progress := r.GetProgress()
	if progress.Completed >= int64(len(entities)) {
		t.Errorf("expected cancellation before all entities are processed, got Completed=%d of %d", progress.Completed, len(entities))
	}
}

func TestNewRunner_DefaultsNonPositiveConcurrency(t *testing.T) {
	r := NewRunner(testOrchestrator(), 0)
	if r.maxConcurrency != 4 {
		t.Errorf("expected default concurrency of 4, got %d", r.maxConcurrency)
	}
}

func TestRunner_GetProgress_ZeroValueBeforeSweep(t *testing.T) {
	r := NewRunner(testOrchestrator(), 2)
	p := r.GetProgress()
	if p.Running || p.TotalEntities != 0 || p.Completed != 0 {
		t.Errorf("expected zero-value progress before any Sweep, got %+v", p)
	}
}
