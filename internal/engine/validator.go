package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// Fixed decision-arithmetic constants. Never tuned at runtime; changing
// RejectDelta requires a design-change record, not a config knob.
const (
	StartConfidence = 0.20
	MaxConfidence   = 0.95
	MinConfidence   = 0.05

	AcceptDelta     = 0.06
	WeakAcceptDelta = 0.02
	RejectDelta     = -0.02
	NoProgressDelta = 0.00

	CategorySaturationThreshold = 3
	ConfidenceSaturationWindow  = 10
	ConfidenceSaturationEpsilon = 0.01
	PerCategoryBudget           = 20

	maxTransientRetries = 3
)

// transientBackoffSchedule is the fixed retry backoff for external
// calls, shared by the LLM and scraper paths.
var transientBackoffSchedule = []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}

// Validator is the 3-pass evaluation cascade producing a Signal with
// deterministic confidence arithmetic. This is the only place confidence
// is arithmetic.
type Validator struct {
	llm LanguageModel
}

// NewValidator constructs a Validator bound to a LanguageModel collaborator.
func NewValidator(llm LanguageModel) *Validator {
	return &Validator{llm: llm}
}

// PassOneInputs bundles everything EvaluatePassOne needs that the
// Validator itself does not own (state lives in DiscoveryState).
type PassOneInputs struct {
	EntityName  string
	Keywords    []string
	Seen        seenContentHashes
	Blacklisted domainBlacklist
	Now         time.Time
}

// criteriaCheck is the pass-2/3 LLM judgement, modeled as a first-class
// result rather than parsed free text at this layer. The LLMJudge builds
// this shape; defaultLLMJudge parses it from the LanguageModel's JSON
// response.
type criteriaCheck struct {
	IsNew              bool
	EntitySpecific     bool
	ImpliesProcurement bool
	CredibleSource     bool
	Reasoning          string
}

func (c criteriaCheck) metCount() int {
	n := 0
	for _, ok := range []bool{c.IsNew, c.EntitySpecific, c.ImpliesProcurement, c.CredibleSource} {
		if ok {
			n++
		}
	}
	return n
}

// LLMJudge abstracts the pass-2/pass-3 LLM judgement so Evaluate can be
// tested deterministically without a real LanguageModel round trip; the
// default implementation calls through to the bound LanguageModel.
type LLMJudge interface {
	JudgePassTwo(ctx context.Context, h model.Hypothesis, ev model.Evidence) (criteriaCheck, error)
	JudgePassThree(ctx context.Context, h model.Hypothesis, ev model.Evidence, pass2 criteriaCheck) (confirmed bool, err error)
}

// Evaluate runs the full 3-pass cascade for one (hypothesis, evidence) pair
// and produces a Signal. acceptedInCategory and temporal supply the inputs
// the confidence arithmetic depends on (category_multiplier,
// temporal_multiplier source).
func (v *Validator) Evaluate(ctx context.Context, judge LLMJudge, h model.Hypothesis, ev model.Evidence, p1 PassOneInputs, temporal model.PriorLookup, acceptedInCategory int) (model.Signal, PassOneResult) {
	now := p1.Now
	if now.IsZero() {
		now = time.Now()
	}

	sig := model.Signal{
		SignalID:           model.NewID("sig"),
		EvidenceID:         ev.EvidenceID,
		HypothesisID:       h.HypothesisID,
		EntityID:           h.EntityID,
		Category:           h.Category,
		PreConfidence:      h.Confidence,
		TemporalMultiplier: temporal.Multiplier,
		PassNumber:         h.PassNumber,
		CreatedAt:          now,
		ModelUsed:          model.ModelSmall,
	}

	p1Result := EvaluatePassOne(h, ev, p1.EntityName, p1.Keywords, p1.Seen, p1.Blacklisted, now)
	if p1Result.Decision != "" {
		return finalizeSignal(sig, p1Result.Decision, p1Result.Reason, 0, acceptedInCategory, temporal.Multiplier), p1Result
	}

	pass2, err := callWithRetry(ctx, func() (criteriaCheck, error) { return judge.JudgePassTwo(ctx, h, ev) })
	if err != nil {
		return finalizeSignal(sig, model.DecisionNoProgress, fmt.Sprintf("transient failure: %v", err), 0, acceptedInCategory, temporal.Multiplier), p1Result
	}

	// Stale or non-entity-specific evidence is disqualifying outright; a
	// WEAK_ACCEPT can only be missing one of the two softer criteria.
	met := pass2.metCount()
	var decision model.Decision
	switch {
	case met == 4:
		decision = model.DecisionAccept
	case !pass2.IsNew || !pass2.EntitySpecific:
		decision = model.DecisionReject
	case met == 3:
		decision = model.DecisionWeakAccept
	default:
		decision = model.DecisionNoProgress
	}

	sig.ModelUsed = model.ModelSmall
	sig.Reasoning = pass2.Reasoning

	if decision == model.DecisionAccept {
		sig.ModelUsed = model.ModelLarge
		confirmed, err := callWithRetry(ctx, func() (bool, error) { return judge.JudgePassThree(ctx, h, ev, pass2) })
		if err != nil {
			decision = model.DecisionNoProgress
			sig.Reasoning = fmt.Sprintf("pass-3 confirmation failed transiently: %v", err)
		} else if !confirmed {
			decision = model.DecisionWeakAccept
		}
	}

	delta := rawDeltaFor(decision)
	return finalizeSignal(sig, decision, sig.Reasoning, delta, acceptedInCategory, temporal.Multiplier), p1Result
}

func rawDeltaFor(d model.Decision) float64 {
	switch d {
	case model.DecisionAccept:
		return AcceptDelta
	case model.DecisionWeakAccept:
		return WeakAcceptDelta
	case model.DecisionReject:
		return RejectDelta
	default:
		return NoProgressDelta
	}
}

// CategoryMultiplier computes 1/(1+accepted_signals_in_category_this_pass),
// enforcing breadth-before-depth.
func CategoryMultiplier(acceptedInCategory int) float64 {
	return 1.0 / (1.0 + float64(acceptedInCategory))
}

// AppliedDelta computes applied_delta = raw × category_multiplier ×
// temporal_multiplier.
func AppliedDelta(rawDelta, categoryMultiplier, temporalMultiplier float64) float64 {
	return rawDelta * categoryMultiplier * temporalMultiplier
}

// PostConfidence computes clamp(pre + applied, min, max): bounded and
// deterministic given identical inputs.
func PostConfidence(preConfidence, appliedDelta float64) float64 {
	return model.Clamp(preConfidence+appliedDelta, MinConfidence, MaxConfidence)
}

func finalizeSignal(sig model.Signal, decision model.Decision, reason string, rawDelta float64, acceptedInCategory int, temporalMultiplier float64) model.Signal {
	categoryMultiplier := CategoryMultiplier(acceptedInCategory)
	applied := AppliedDelta(rawDelta, categoryMultiplier, temporalMultiplier)

	sig.Decision = decision
	sig.Reasoning = reason
	sig.ConfidenceDeltaRaw = rawDelta
	sig.CategoryMultiplier = categoryMultiplier
	sig.AppliedDelta = applied
	sig.PostConfidence = PostConfidence(sig.PreConfidence, applied)
	return sig
}

// NoProgressSignal builds the signal emitted when an iteration could not
// produce evidence at all (hop exhaustion, transient fetch failure).
// The engine never invents a decision: the signal records the reason
// and a zero raw delta, and still flows through the normal arithmetic so
// the log replays identically.
func NoProgressSignal(h model.Hypothesis, reason string, temporal model.PriorLookup, acceptedInCategory int, now time.Time) model.Signal {
	sig := model.Signal{
		SignalID:           model.NewID("sig"),
		HypothesisID:       h.HypothesisID,
		EntityID:           h.EntityID,
		Category:           h.Category,
		PreConfidence:      h.Confidence,
		TemporalMultiplier: temporal.Multiplier,
		PassNumber:         h.PassNumber,
		CreatedAt:          now,
		ModelUsed:          model.ModelSmall,
	}
	return finalizeSignal(sig, model.DecisionNoProgress, reason, NoProgressDelta, acceptedInCategory, temporal.Multiplier)
}

// callWithRetry retries a transient external call up to
// maxTransientRetries times with the fixed backoff schedule.
func callWithRetry[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxTransientRetries; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt+1 < maxTransientRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(transientBackoffSchedule[attempt]):
			}
		}
	}
	return zero, newErr(KindTransientExternal, "callWithRetry", lastErr)
}

// EvaluateConsecutiveRejectSaturation reports whether a category has
// saturated.
func EvaluateConsecutiveRejectSaturation(consecutiveRejects int) bool {
	return consecutiveRejects >= CategorySaturationThreshold
}

// EvaluateConfidenceSaturation reports whether a hypothesis's rolling
// window of applied deltas has saturated.
func EvaluateConfidenceSaturation(windowSum float64, windowFull bool) bool {
	return windowFull && windowSum < ConfidenceSaturationEpsilon
}
