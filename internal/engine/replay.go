package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// Replay reconstructs DiscoveryState for (entityID, passNumber) by
// replaying the Signal log in append order — the authoritative mechanism
// for state rehydration.
func Replay(ctx context.Context, log SignalLog, entityID string, passNumber int) (*model.DiscoveryState, error) {
	signals, err := log.Replay(ctx, entityID, passNumber)
	if err != nil {
		return nil, newErr(KindFatal, "Replay", err)
	}

	state := model.NewDiscoveryState(entityID, passNumber)
	for _, sig := range signals {
		switch sig.Decision {
		case model.DecisionAccept:
			state.AcceptedInCategory[sig.Category]++
			state.ConsecutiveRejects[sig.Category] = 0
		case model.DecisionReject:
			state.ConsecutiveRejects[sig.Category]++
			if EvaluateConsecutiveRejectSaturation(state.ConsecutiveRejects[sig.Category]) {
				state.CategorySaturated[sig.Category] = true
			}
		default:
			state.ConsecutiveRejects[sig.Category] = 0
		}
		state.RecordDecision(sig.HypothesisID, sig.Decision)
	}
	return state, nil
}

// DriftReport is diagnostic sugar over the required exact-equality replay
// invariant: an ARI/VI-style similarity score between a live state's
// per-category saturation partition and the replayed one, useful for
// operational monitoring, never the authoritative check.
type DriftReport struct {
	AdjustedRandIndex float64
	VariationOfInfo   float64
	ExactMatch        bool
}

// CompareStates reports both the authoritative bit-identical check and the
// diagnostic drift score between two DiscoveryStates for the same
// (entity, pass).
func CompareStates(live, replayed *model.DiscoveryState) (DriftReport, error) {
	if live.EntityID != replayed.EntityID || live.PassNumber != replayed.PassNumber {
		return DriftReport{}, fmt.Errorf("compare: state scope mismatch")
	}

	exact := statesEqual(live, replayed)

	categories := model.AllCategories()
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	liveLabels := make([]int, 0, len(categories))
	replayedLabels := make([]int, 0, len(categories))
	for _, c := range categories {
		liveLabels = append(liveLabels, saturationLabel(live, c))
		replayedLabels = append(replayedLabels, saturationLabel(replayed, c))
	}

	return DriftReport{
		AdjustedRandIndex: adjustedRandIndex(liveLabels, replayedLabels),
		VariationOfInfo:   variationOfInformation(liveLabels, replayedLabels),
		ExactMatch:        exact,
	}, nil
}

func saturationLabel(s *model.DiscoveryState, c model.SignalCategory) int {
	if s.CategorySaturated[c] {
		return 1
	}
	return 0
}

// statesEqual is the authoritative bit-identical comparison; it
// deliberately ignores hop/blacklist fields that
// are pass-scoped scratch state reset at pass start, and compares only the
// fields the Signal log can reconstruct.
func statesEqual(a, b *model.DiscoveryState) bool {
	if a.EntityID != b.EntityID || a.PassNumber != b.PassNumber {
		return false
	}
	if len(a.AcceptedInCategory) != len(b.AcceptedInCategory) {
		return false
	}
	for k, v := range a.AcceptedInCategory {
		if b.AcceptedInCategory[k] != v {
			return false
		}
	}
	if len(a.ConsecutiveRejects) != len(b.ConsecutiveRejects) {
		return false
	}
	for k, v := range a.ConsecutiveRejects {
		if b.ConsecutiveRejects[k] != v {
			return false
		}
	}
	if len(a.CategorySaturated) != len(b.CategorySaturated) {
		return false
	}
	for k, v := range a.CategorySaturated {
		if b.CategorySaturated[k] != v {
			return false
		}
	}
	if len(a.RecentDecisions) != len(b.RecentDecisions) {
		return false
	}
	for i := range a.RecentDecisions {
		if a.RecentDecisions[i] != b.RecentDecisions[i] {
			return false
		}
	}
	return true
}
