package engine

import (
	"testing"

	"github.com/rawblock/discovery-engine/pkg/model"
)

func TestStore_Add_IdempotentWithinPass(t *testing.T) {
	s := NewStore()
	h := model.Hypothesis{
		EntityID:   "ent-1",
		Category:   model.CategoryCRM,
		Statement:  "Acme is evaluating a CRM platform.",
		PassNumber: 1,
	}

	first, err := s.Add(h)
	if err != nil {
		t.Fatalf("unexpected error on first Add: %v", err)
	}

	second, err := s.Add(h)
	if err == nil {
		t.Fatalf("expected DuplicateHypothesis error on second Add with identical fields")
	}
	if KindOf(err) != KindDuplicateHypothesis {
		t.Errorf("expected KindDuplicateHypothesis, got %v", KindOf(err))
	}
	if second.HypothesisID != first.HypothesisID {
		t.Errorf("expected duplicate Add to return the existing record, got different ids %q vs %q", second.HypothesisID, first.HypothesisID)
	}
	if len(s.All()) != 1 {
		t.Errorf("expected exactly one stored hypothesis, got %d", len(s.All()))
	}
}

func TestStore_Add_SameStatementDifferentPassIsNotDuplicate(t *testing.T) {
	s := NewStore()
	h := model.Hypothesis{
		EntityID:  "ent-1",
		Category:  model.CategoryCRM,
		Statement: "Acme is evaluating a CRM platform.",
	}

	h.PassNumber = 1
	if _, err := s.Add(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.PassNumber = 2
	if _, err := s.Add(h); err != nil {
		t.Errorf("expected pass-2 copy to be a distinct record, got error: %v", err)
	}
	if len(s.All()) != 2 {
		t.Errorf("expected 2 stored hypotheses across passes, got %d", len(s.All()))
	}
}

func TestStore_Add_CoercesUnknownCategoryToOther(t *testing.T) {
	s := NewStore()
	h, err := s.Add(model.Hypothesis{EntityID: "e", Category: "BLOCKCHAIN", Statement: "off-taxonomy proposal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Category != model.CategoryOther {
		t.Errorf("expected unknown category coerced to OTHER, got %q", h.Category)
	}
}

func TestStore_PickNext_HighestEIGWins(t *testing.T) {
	s := NewStore()
	low, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryOther, Statement: "low value", Confidence: 0.90})
	high, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "high value", Confidence: 0.20})

	noBoost := func(h *model.Hypothesis) (float64, float64) { return 1.0, 1.0 }
	picked := s.PickNext(0, noBoost)
	if picked == nil {
		t.Fatalf("expected a candidate, got nil")
	}
	if picked.HypothesisID != high.HypothesisID {
		t.Errorf("expected the higher-EIG hypothesis %q to be picked, got %q (low-EIG candidate was %q)", high.HypothesisID, picked.HypothesisID, low.HypothesisID)
	}
}

func TestStore_PickNext_ScopedToPassNumber(t *testing.T) {
	s := NewStore()
	pastPass, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "stale pass-1 parent", Confidence: 0.5, PassNumber: 1})
	currentPass, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "pass-2 child", Confidence: 0.5, PassNumber: 2})

	noBoost := func(h *model.Hypothesis) (float64, float64) { return 1.0, 1.0 }
	picked := s.PickNext(2, noBoost)
	if picked == nil {
		t.Fatalf("expected a candidate for pass 2, got nil")
	}
	if picked.HypothesisID != currentPass.HypothesisID {
		t.Errorf("expected pass-scoped PickNext to return the pass-2 hypothesis %q, got %q (pass-1 candidate was %q)", currentPass.HypothesisID, picked.HypothesisID, pastPass.HypothesisID)
	}

	if got := s.PickNext(3, noBoost); got != nil {
		t.Errorf("expected nil when no hypothesis belongs to pass 3, got %v", got)
	}
}

func TestStore_PickNext_SkipsFrozen(t *testing.T) {
	s := NewStore()
	only, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "only one"})
	s.Freeze(only.HypothesisID, "test freeze")

	noBoost := func(h *model.Hypothesis) (float64, float64) { return 1.0, 1.0 }
	if got := s.PickNext(0, noBoost); got != nil {
		t.Errorf("expected nil when every hypothesis is frozen, got %v", got)
	}
}

func TestStore_PickNext_TieBreakByIterationsThenID(t *testing.T) {
	s := NewStore()
	// Identical category/confidence/iterations forces an EIG tie; the
	// tie-break then falls to lexicographic hypothesis_id.
	a, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "a", Confidence: 0.5})
	b, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "b", Confidence: 0.5})

	noBoost := func(h *model.Hypothesis) (float64, float64) { return 1.0, 1.0 }
	picked := s.PickNext(0, noBoost)

	var wantID string
	if a.HypothesisID < b.HypothesisID {
		wantID = a.HypothesisID
	} else {
		wantID = b.HypothesisID
	}
	if picked.HypothesisID != wantID {
		t.Errorf("expected tie-break to favor lexicographically smaller id %q, got %q", wantID, picked.HypothesisID)
	}
}

func TestStore_UpdateAfterSignal_UnknownHypothesis(t *testing.T) {
	s := NewStore()
	err := s.UpdateAfterSignal(model.Signal{HypothesisID: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error when updating an unknown hypothesis")
	}
	if KindOf(err) != KindFatal {
		t.Errorf("expected KindFatal for unknown hypothesis update, got %v", KindOf(err))
	}
}

func TestStore_FreezeCategory(t *testing.T) {
	s := NewStore()
	crm, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "crm"})
	web, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryWeb, Statement: "web"})

	s.FreezeCategory(model.CategoryCRM, 0, "saturated")

	got, _ := s.Get(crm.HypothesisID)
	if !got.Frozen {
		t.Errorf("expected CRM hypothesis to be frozen")
	}
	got, _ = s.Get(web.HypothesisID)
	if got.Frozen {
		t.Errorf("expected WEB hypothesis to remain unfrozen")
	}
}

func TestStore_FreezeCategory_ScopedToPass(t *testing.T) {
	s := NewStore()
	parent, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "parent", PassNumber: 1})
	child, _ := s.Add(model.Hypothesis{EntityID: "e", Category: model.CategoryCRM, Statement: "follow-up child", PassNumber: 2})

	s.FreezeCategory(model.CategoryCRM, 1, "saturated")

	got, _ := s.Get(parent.HypothesisID)
	if !got.Frozen {
		t.Errorf("expected the saturating pass's hypothesis to be frozen")
	}
	got, _ = s.Get(child.HypothesisID)
	if got.Frozen {
		t.Errorf("expected a later-pass hypothesis in the same category to stay live")
	}
}

func TestNetworkBoost_CapsAtMax(t *testing.T) {
	if got := NetworkBoost(10); got != networkBoostCap {
		t.Errorf("expected NetworkBoost to cap at %v, got %v", networkBoostCap, got)
	}
}

func TestNetworkBoost_ZeroPeersIsBaseline(t *testing.T) {
	if got := NetworkBoost(0); got != 1.0 {
		t.Errorf("expected NetworkBoost(0) = 1.0, got %v", got)
	}
}
