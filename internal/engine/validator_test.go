package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// stubJudge implements LLMJudge with fixed, test-controlled responses.
type stubJudge struct {
	pass2    criteriaCheck
	pass2Err error
	pass3    bool
	pass3Err error
}

func (j *stubJudge) JudgePassTwo(ctx context.Context, h model.Hypothesis, ev model.Evidence) (criteriaCheck, error) {
	return j.pass2, j.pass2Err
}

func (j *stubJudge) JudgePassThree(ctx context.Context, h model.Hypothesis, ev model.Evidence, pass2 criteriaCheck) (bool, error) {
	return j.pass3, j.pass3Err
}

func neverSeen(hypothesisID, contentHash string) bool { return false }
func noneBlacklisted(domain string) bool              { return false }

func freshInputs(now time.Time) PassOneInputs {
	return PassOneInputs{
		EntityName:  "Acme FC",
		Keywords:    []string{"CRM"},
		Seen:        neverSeen,
		Blacklisted: noneBlacklisted,
		Now:         now,
	}
}

func baseHypothesis() model.Hypothesis {
	return model.Hypothesis{
		HypothesisID: "hyp-1",
		EntityID:     "ent-1",
		Category:     model.CategoryCRM,
		Statement:    "Acme FC is evaluating a CRM platform.",
		Confidence:   StartConfidence,
	}
}

func baseEvidence(now time.Time) model.Evidence {
	return model.Evidence{
		EvidenceID:   "evd-1",
		HypothesisID: "hyp-1",
		SourceURL:    "https://technews.example.com/acme-crm",
		SourceType:   model.SourceTechNews,
		Snippet:      "Acme FC announced a new CRM platform rollout.",
		ContentHash:  "hash-1",
		FetchedAt:    now,
	}
}

func TestValidator_Evaluate_AllFourCriteriaMet_Accepts(t *testing.T) {
	v := NewValidator(nil)
	now := time.Now()
	judge := &stubJudge{pass2: criteriaCheck{IsNew: true, EntitySpecific: true, ImpliesProcurement: true, CredibleSource: true}, pass3: true}

	sig, _ := v.Evaluate(context.Background(), judge, baseHypothesis(), baseEvidence(now), freshInputs(now), model.PriorLookup{Multiplier: 1.0}, 0)

	if sig.Decision != model.DecisionAccept {
		t.Fatalf("expected ACCEPT, got %v (reason: %s)", sig.Decision, sig.Reasoning)
	}
	wantApplied := AcceptDelta * CategoryMultiplier(0) * 1.0
	if diff := sig.AppliedDelta - wantApplied; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected applied_delta %v, got %v", wantApplied, sig.AppliedDelta)
	}
	wantPost := model.Clamp(StartConfidence+wantApplied, MinConfidence, MaxConfidence)
	if diff := sig.PostConfidence - wantPost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected post_confidence %v, got %v", wantPost, sig.PostConfidence)
	}
}

func TestValidator_Evaluate_ThreeCriteriaMet_WeakAccept(t *testing.T) {
	v := NewValidator(nil)
	now := time.Now()
	judge := &stubJudge{pass2: criteriaCheck{IsNew: true, EntitySpecific: true, ImpliesProcurement: true, CredibleSource: false}}

	sig, _ := v.Evaluate(context.Background(), judge, baseHypothesis(), baseEvidence(now), freshInputs(now), model.PriorLookup{Multiplier: 1.0}, 0)

	if sig.Decision != model.DecisionWeakAccept {
		t.Fatalf("expected WEAK_ACCEPT, got %v", sig.Decision)
	}
}

func TestValidator_Evaluate_PassThreeContradicts_DowngradesToWeakAccept(t *testing.T) {
	v := NewValidator(nil)
	now := time.Now()
	judge := &stubJudge{pass2: criteriaCheck{IsNew: true, EntitySpecific: true, ImpliesProcurement: true, CredibleSource: true}, pass3: false}

	sig, _ := v.Evaluate(context.Background(), judge, baseHypothesis(), baseEvidence(now), freshInputs(now), model.PriorLookup{Multiplier: 1.0}, 0)

	if sig.Decision != model.DecisionWeakAccept {
		t.Fatalf("expected pass-3 contradiction to downgrade ACCEPT to WEAK_ACCEPT, got %v", sig.Decision)
	}
}

func TestValidator_Evaluate_NotNewOrNotEntitySpecific_Rejects(t *testing.T) {
	v := NewValidator(nil)
	now := time.Now()
	judge := &stubJudge{pass2: criteriaCheck{IsNew: false, EntitySpecific: true, ImpliesProcurement: true, CredibleSource: true}}

	sig, _ := v.Evaluate(context.Background(), judge, baseHypothesis(), baseEvidence(now), freshInputs(now), model.PriorLookup{Multiplier: 1.0}, 0)

	if sig.Decision != model.DecisionReject {
		t.Fatalf("expected REJECT, got %v", sig.Decision)
	}
}

func TestValidator_Evaluate_PassOneDuplicate_RejectsBeforeLLM(t *testing.T) {
	v := NewValidator(nil)
	now := time.Now()
	judge := &stubJudge{}
	inputs := freshInputs(now)
	inputs.Seen = func(hypothesisID, contentHash string) bool { return true }

	sig, p1Result := v.Evaluate(context.Background(), judge, baseHypothesis(), baseEvidence(now), inputs, model.PriorLookup{Multiplier: 1.0}, 0)

	if sig.Decision != model.DecisionReject {
		t.Fatalf("expected Pass-1 duplicate-content REJECT, got %v", sig.Decision)
	}
	if sig.ModelUsed != model.ModelSmall {
		t.Errorf("expected Pass-1 short-circuit to leave model_used at the deterministic tier, got %v", sig.ModelUsed)
	}
	if p1Result.Decision != model.DecisionReject {
		t.Errorf("expected returned PassOneResult to carry the REJECT verdict, got %v", p1Result.Decision)
	}
	if p1Result.BlacklistedHop != "" {
		t.Errorf("expected BlacklistedHop unset for a duplicate-content rejection, got %q", p1Result.BlacklistedHop)
	}
}

func TestCategoryMultiplier_DecreasesWithAcceptedCount(t *testing.T) {
	m0 := CategoryMultiplier(0)
	m1 := CategoryMultiplier(1)
	m2 := CategoryMultiplier(2)
	if !(m0 > m1 && m1 > m2) {
		t.Errorf("expected category multiplier to strictly decrease as accepted count rises: got %v, %v, %v", m0, m1, m2)
	}
	if m0 != 1.0 {
		t.Errorf("expected CategoryMultiplier(0) = 1.0, got %v", m0)
	}
}

func TestPostConfidence_ClampsAtBounds(t *testing.T) {
	if got := PostConfidence(MaxConfidence, 0.50); got != MaxConfidence {
		t.Errorf("expected post confidence clamped to MaxConfidence, got %v", got)
	}
	if got := PostConfidence(MinConfidence, -0.50); got != MinConfidence {
		t.Errorf("expected post confidence clamped to MinConfidence, got %v", got)
	}
}

func TestEvaluateConsecutiveRejectSaturation(t *testing.T) {
	if EvaluateConsecutiveRejectSaturation(CategorySaturationThreshold - 1) {
		t.Errorf("expected no saturation below threshold")
	}
	if !EvaluateConsecutiveRejectSaturation(CategorySaturationThreshold) {
		t.Errorf("expected saturation at threshold")
	}
}

func TestEvaluateConfidenceSaturation(t *testing.T) {
	if EvaluateConfidenceSaturation(0.005, true) != true {
		t.Errorf("expected a full, near-zero window to be saturated")
	}
	if EvaluateConfidenceSaturation(0.005, false) != false {
		t.Errorf("expected an incomplete window to never be saturated regardless of sum")
	}
	if EvaluateConfidenceSaturation(0.50, true) != false {
		t.Errorf("expected a full window with a large sum to not be saturated")
	}
}
