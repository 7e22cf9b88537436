package engine

import (
	"context"
	"testing"

	"github.com/rawblock/discovery-engine/pkg/model"
)

func TestReplay_ReconstructsAcceptedCountsAndSaturation(t *testing.T) {
	log := NewMemorySignalLog()
	ctx := context.Background()

	log.Append(ctx, model.Signal{EntityID: "e", PassNumber: 1, HypothesisID: "h1", Category: model.CategoryCRM, Decision: model.DecisionAccept})
	log.Append(ctx, model.Signal{EntityID: "e", PassNumber: 1, HypothesisID: "h2", Category: model.CategoryWeb, Decision: model.DecisionReject})
	log.Append(ctx, model.Signal{EntityID: "e", PassNumber: 1, HypothesisID: "h2", Category: model.CategoryWeb, Decision: model.DecisionReject})
	log.Append(ctx, model.Signal{EntityID: "e", PassNumber: 1, HypothesisID: "h2", Category: model.CategoryWeb, Decision: model.DecisionReject})

	state, err := Replay(ctx, log, "e", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.AcceptedInCategory[model.CategoryCRM] != 1 {
		t.Errorf("expected 1 accepted CRM signal, got %d", state.AcceptedInCategory[model.CategoryCRM])
	}
	if !state.CategorySaturated[model.CategoryWeb] {
		t.Errorf("expected WEB to be saturated after 3 consecutive rejects")
	}
	if len(state.RecentDecisions) != 4 {
		t.Errorf("expected 4 recorded decisions, got %d", len(state.RecentDecisions))
	}
}

func TestReplay_ScopedToEntityAndPass(t *testing.T) {
	log := NewMemorySignalLog()
	ctx := context.Background()

	log.Append(ctx, model.Signal{EntityID: "e1", PassNumber: 1, Category: model.CategoryCRM, Decision: model.DecisionAccept})
	log.Append(ctx, model.Signal{EntityID: "e2", PassNumber: 1, Category: model.CategoryCRM, Decision: model.DecisionAccept})
	log.Append(ctx, model.Signal{EntityID: "e1", PassNumber: 2, Category: model.CategoryCRM, Decision: model.DecisionAccept})

	state, err := Replay(ctx, log, "e1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.AcceptedInCategory[model.CategoryCRM] != 1 {
		t.Errorf("expected replay to be scoped to (entity, pass), got %d accepted", state.AcceptedInCategory[model.CategoryCRM])
	}
}

func TestCompareStates_ExactMatchOnIdenticalReplay(t *testing.T) {
	log := NewMemorySignalLog()
	ctx := context.Background()
	log.Append(ctx, model.Signal{EntityID: "e", PassNumber: 1, HypothesisID: "h1", Category: model.CategoryCRM, Decision: model.DecisionAccept})

	live, _ := Replay(ctx, log, "e", 1)
	replayed, _ := Replay(ctx, log, "e", 1)

	report, err := CompareStates(live, replayed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.ExactMatch {
		t.Errorf("expected exact match between two replays of the same log")
	}
	if report.AdjustedRandIndex != 1.0 {
		t.Errorf("expected ARI=1.0 for identical saturation partitions, got %v", report.AdjustedRandIndex)
	}
}

func TestCompareStates_ScopeMismatchErrors(t *testing.T) {
	a := model.NewDiscoveryState("e1", 1)
	b := model.NewDiscoveryState("e2", 1)

	if _, err := CompareStates(a, b); err == nil {
		t.Errorf("expected an error when comparing states for different entities")
	}
}
