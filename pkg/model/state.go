package model

// RecentDecisionHistoryLimit bounds the trailing decision history kept in a
// DiscoveryState.
const RecentDecisionHistoryLimit = 50

// DecisionRecord is one entry in a DiscoveryState's recent decision history.
type DecisionRecord struct {
	HypothesisID string
	Decision     Decision
}

// DiscoveryState is the per-(entity_id, pass_number) working set. It is
// rehydrated by replaying the Signal log and is never shared across
// entities — one orchestrator task owns one DiscoveryState exclusively.
type DiscoveryState struct {
	EntityID   string
	PassNumber int

	Hypotheses map[string]*Hypothesis // keyed by hypothesis_id

	AcceptedInCategory map[SignalCategory]int
	ConsecutiveRejects map[SignalCategory]int
	CategorySaturated  map[SignalCategory]bool

	HopConsecutiveFailures map[SourceType]int
	HopBlacklistPatterns   map[SourceType][]string
	HopsTriedThisIteration map[string]map[SourceType]bool // hypothesis_id -> hops tried

	// HopBlacklistHits counts, per source type, how many times the
	// deterministic filter rejected evidence from that hop for matching a
	// blacklisted phrase — the penalty term in hop scoring.
	HopBlacklistHits map[SourceType]int

	// SeenContentHashes records (hypothesis_id, content_hash) pairs the
	// filter has already evaluated, keyed by hypothesisID+"|"+contentHash,
	// so a re-fetch of identical content for the same hypothesis is
	// rejected as a duplicate rather than re-scored by the LLM cascade.
	SeenContentHashes map[string]bool

	RecentDecisions []DecisionRecord

	IterationsThisPass int
}

func seenKey(hypothesisID, contentHash string) string {
	return hypothesisID + "|" + contentHash
}

// HasSeen reports whether (hypothesisID, contentHash) has already been
// evaluated this pass.
func (s *DiscoveryState) HasSeen(hypothesisID, contentHash string) bool {
	return s.SeenContentHashes[seenKey(hypothesisID, contentHash)]
}

// MarkSeen records that (hypothesisID, contentHash) has now been evaluated.
func (s *DiscoveryState) MarkSeen(hypothesisID, contentHash string) {
	if s.SeenContentHashes == nil {
		s.SeenContentHashes = make(map[string]bool)
	}
	s.SeenContentHashes[seenKey(hypothesisID, contentHash)] = true
}

// NewDiscoveryState constructs an empty working set for one (entity, pass).
func NewDiscoveryState(entityID string, passNumber int) *DiscoveryState {
	return &DiscoveryState{
		EntityID:               entityID,
		PassNumber:             passNumber,
		Hypotheses:             make(map[string]*Hypothesis),
		AcceptedInCategory:     make(map[SignalCategory]int),
		ConsecutiveRejects:     make(map[SignalCategory]int),
		CategorySaturated:      make(map[SignalCategory]bool),
		HopConsecutiveFailures: make(map[SourceType]int),
		HopBlacklistPatterns:   make(map[SourceType][]string),
		HopsTriedThisIteration: make(map[string]map[SourceType]bool),
		HopBlacklistHits:       make(map[SourceType]int),
		SeenContentHashes:      make(map[string]bool),
	}
}

// RecordDecision appends to the bounded recent-decision history.
func (s *DiscoveryState) RecordDecision(hypothesisID string, d Decision) {
	s.RecentDecisions = append(s.RecentDecisions, DecisionRecord{HypothesisID: hypothesisID, Decision: d})
	if len(s.RecentDecisions) > RecentDecisionHistoryLimit {
		s.RecentDecisions = s.RecentDecisions[len(s.RecentDecisions)-RecentDecisionHistoryLimit:]
	}
}
