package engine

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// infoValueTable is the category-dependent constant in the EIG formula.
// Categories closer to a team's commercial core (CRM, ticketing,
// commerce) carry higher information value than ambient ones.
var infoValueTable = map[model.SignalCategory]float64{
	model.CategoryCRM:           1.00,
	model.CategoryTicketing:     0.95,
	model.CategoryCommerce:      0.90,
	model.CategoryAnalytics:     0.85,
	model.CategoryDataPlatform:  0.80,
	model.CategoryFanEngagement: 0.75,
	model.CategoryOperations:    0.70,
	model.CategoryMobile:        0.70,
	model.CategoryWeb:           0.65,
	model.CategorySecurity:      0.65,
	model.CategoryCloud:         0.60,
	model.CategoryIntegration:   0.60,
	model.CategoryContent:       0.55,
	model.CategoryOther:         0.50,
}

func infoValue(c model.SignalCategory) float64 {
	if v, ok := infoValueTable[c]; ok {
		return v
	}
	return infoValueTable[model.CategoryOther]
}

// networkBoostCap is the maximum network_boost term in the EIG formula.
const networkBoostCap = 1.30

// networkBoostPerPeer is the per-matching-peer increment.
const networkBoostPerPeer = 0.10

// NetworkBoost computes EIG's network_boost(h) ∈ [1.00, 1.30]: +0.10 for
// every partner/peer known to have adopted matching technology, capped.
func NetworkBoost(matchingPeers int) float64 {
	boost := 1.00 + networkBoostPerPeer*float64(matchingPeers)
	if boost > networkBoostCap {
		boost = networkBoostCap
	}
	return boost
}

// Novelty computes EIG's novelty(h) = 1/(1+iterations_attempted).
func Novelty(iterationsAttempted int) float64 {
	return 1.0 / (1.0 + float64(iterationsAttempted))
}

// EIG computes the scheduling priority of a hypothesis: expected
// information gain.
func EIG(confidence float64, iterationsAttempted int, category model.SignalCategory, temporalBoost, networkBoost float64) float64 {
	return (1 - confidence) * Novelty(iterationsAttempted) * infoValue(category) * temporalBoost * networkBoost
}

// Store owns hypotheses for a single entity's run and performs
// EIG-ranked selection. One Store instance is exclusive to one entity
// run, never shared.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*model.Hypothesis
	byHash map[string]string // statement_hash (scoped to entity+category+pass) -> hypothesis_id
}

// NewStore constructs an empty Hypothesis Store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*model.Hypothesis),
		byHash: make(map[string]string),
	}
}

func hashKey(entityID string, category model.SignalCategory, pass int, statementHash string) string {
	return fmt.Sprintf("%s|%s|%d|%s", entityID, category, pass, statementHash)
}

// Add stores a hypothesis. Adding the same (entity, category,
// statement_hash) within the same pass is idempotent: it silently merges
// into the existing record and returns it, with a DuplicateHypothesis
// error the caller may ignore.
func (s *Store) Add(h model.Hypothesis) (*model.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !h.Category.IsValid() {
		log.Printf("[Store] Warning: unknown category %q coerced to OTHER", h.Category)
		h.Category = model.CategoryOther
	}
	if h.StatementHash == "" {
		h.StatementHash = model.StatementHash(h.EntityID, h.Category, h.Statement)
	}
	key := hashKey(h.EntityID, h.Category, h.PassNumber, h.StatementHash)
	if existingID, ok := s.byHash[key]; ok {
		log.Printf("[Store] duplicate hypothesis merged: entity=%s category=%s pass=%d", h.EntityID, h.Category, h.PassNumber)
		return s.byID[existingID], newErr(KindDuplicateHypothesis, "Store.Add", nil)
	}
	if h.HypothesisID == "" {
		h.HypothesisID = model.NewID("hyp")
	}
	stored := h
	s.byID[stored.HypothesisID] = &stored
	s.byHash[key] = stored.HypothesisID
	return &stored, nil
}

// Get returns a hypothesis by id.
func (s *Store) Get(hypothesisID string) (*model.Hypothesis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byID[hypothesisID]
	return h, ok
}

// All returns every hypothesis currently stored (frozen or not), for
// report assembly and replay comparison.
func (s *Store) All() []*model.Hypothesis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Hypothesis, 0, len(s.byID))
	for _, h := range s.byID {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HypothesisID < out[j].HypothesisID })
	return out
}

// UpdateAfterSignal rewrites confidence, iterations_attempted,
// last_decision, and appends the evidence id.
func (s *Store) UpdateAfterSignal(sig model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[sig.HypothesisID]
	if !ok {
		return newErr(KindFatal, "Store.UpdateAfterSignal", nil)
	}
	h.Confidence = sig.PostConfidence
	h.IterationsAttempted++
	h.LastDecision = sig.Decision
	if sig.EvidenceID != "" {
		h.EvidenceIDs = append(h.EvidenceIDs, sig.EvidenceID)
	}
	return nil
}

// HasForPass reports whether any hypothesis belongs to passNumber,
// frozen or not — the orchestrator's "did this pass gain any work"
// termination check.
func (s *Store) HasForPass(passNumber int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.byID {
		if h.PassNumber == passNumber {
			return true
		}
	}
	return false
}

// Freeze marks a hypothesis frozen; it is never selected again.
func (s *Store) Freeze(hypothesisID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byID[hypothesisID]; ok {
		h.Frozen = true
		h.FrozenReason = reason
	}
}

// FreezeCategory freezes every hypothesis in a category belonging to
// passNumber, used on category saturation. Saturation is pass-scoped: a
// follow-up child already spawned for a later pass stays live.
func (s *Store) FreezeCategory(category model.SignalCategory, passNumber int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.byID {
		if h.Category == category && h.PassNumber == passNumber && !h.Frozen {
			h.Frozen = true
			h.FrozenReason = reason
		}
	}
}

// PickNext returns the unfrozen hypothesis with highest EIG among those
// belonging to passNumber; ties broken by (a) lowest iterations_attempted,
// (b) lexicographic hypothesis_id. A hypothesis carried over from an
// earlier pass is never eligible even though the Store itself accumulates
// hypotheses across the whole run for reporting. eigOf supplies
// per-hypothesis temporal/network boosts since those depend on
// collaborators the Store does not itself hold.
func (s *Store) PickNext(passNumber int, eigOf func(h *model.Hypothesis) (temporalBoost, networkBoost float64)) *model.Hypothesis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Hypothesis
	bestEIG := -1.0
	for _, h := range s.byID {
		if h.Frozen || h.PassNumber != passNumber {
			continue
		}
		tBoost, nBoost := eigOf(h)
		score := EIG(h.Confidence, h.IterationsAttempted, h.Category, tBoost, nBoost)
		if best == nil {
			best, bestEIG = h, score
			continue
		}
		if score > bestEIG {
			best, bestEIG = h, score
			continue
		}
		if score == bestEIG {
			if h.IterationsAttempted < best.IterationsAttempted {
				best = h
			} else if h.IterationsAttempted == best.IterationsAttempted && h.HypothesisID < best.HypothesisID {
				best = h
			}
		}
	}
	return best
}
