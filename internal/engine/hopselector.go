package engine

import (
	"sort"
	"strings"
	"sync"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// channelROI is the fixed historical ACCEPT-rate table per source type.
var channelROI = map[model.SourceType]float64{
	model.SourcePartnershipAnnouncement: 0.35,
	model.SourceTechNews:                0.25,
	model.SourcePressRelease:            0.10,
	model.SourceLeadershipJobPosting:    0.08,
	model.SourceAnnualReport:            0.06,
	model.SourceCareersPage:             0.04,
	model.SourceOfficialSite:            0.02,
	model.SourceLinkedInOperationalJob:  0.01,
}

// hopOrder fixes the candidate iteration order, highest ROI first.
var hopOrder = []model.SourceType{
	model.SourcePartnershipAnnouncement,
	model.SourceTechNews,
	model.SourcePressRelease,
	model.SourceLeadershipJobPosting,
	model.SourceAnnualReport,
	model.SourceCareersPage,
	model.SourceOfficialSite,
	model.SourceLinkedInOperationalJob,
}

const (
	consecutiveFailureExclusion = 2
	blacklistHitPenalty         = 0.05
)

// HopChoice is the selector's return value: a chosen hop plus keywords to
// query the scraping collaborator with.
type HopChoice struct {
	Hop           model.SourceType
	ResolverHints []string
}

// HopSelector tracks hop failure state for one hypothesis within one pass.
type HopSelector struct {
	mu                 sync.Mutex
	consecutiveFailure map[model.SourceType]int
	resetUsed          bool
}

// NewHopSelector constructs a selector; the orchestrator keeps one per
// hypothesis for the duration of a pass.
func NewHopSelector() *HopSelector {
	return &HopSelector{consecutiveFailure: make(map[model.SourceType]int)}
}

// RecordFailure increments a hop's consecutive failure count.
func (hs *HopSelector) RecordFailure(hop model.SourceType) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.consecutiveFailure[hop]++
}

// RecordSuccess resets a hop's consecutive failure count; a single
// success clears the streak.
func (hs *HopSelector) RecordSuccess(hop model.SourceType) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.consecutiveFailure[hop] = 0
}

func (hs *HopSelector) isExcluded(hop model.SourceType) bool {
	return hs.consecutiveFailure[hop] >= consecutiveFailureExclusion
}

// blacklistHitCounter reports how many times recent content matched a
// blacklist pattern for a hop, supplied by the caller from DiscoveryState.
type blacklistHitCounter func(hop model.SourceType) int

// Pick chooses the next hop to scrape, given the hops already tried and
// a blacklist-hit counter. Returns nil when every hop is exhausted.
func (hs *HopSelector) Pick(eig float64, alreadyTried map[model.SourceType]bool, hits blacklistHitCounter) *HopChoice {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	candidates := availableHops(hs, alreadyTried)
	if len(candidates) == 0 {
		if hs.resetUsed {
			return nil
		}
		// All hops excluded: the failure counters reset once, then
		// exhaustion is permanent.
		for hop := range hs.consecutiveFailure {
			hs.consecutiveFailure[hop] = 0
		}
		hs.resetUsed = true
		candidates = availableHops(hs, alreadyTried)
		if len(candidates) == 0 {
			return nil
		}
	}

	type scored struct {
		hop   model.SourceType
		score float64
	}
	scoredHops := make([]scored, 0, len(candidates))
	for _, hop := range candidates {
		score := channelROI[hop]*eig - blacklistHitPenalty*float64(hits(hop))
		scoredHops = append(scoredHops, scored{hop: hop, score: score})
	}

	sort.Slice(scoredHops, func(i, j int) bool {
		if scoredHops[i].score != scoredHops[j].score {
			return scoredHops[i].score > scoredHops[j].score
		}
		if channelROI[scoredHops[i].hop] != channelROI[scoredHops[j].hop] {
			return channelROI[scoredHops[i].hop] > channelROI[scoredHops[j].hop]
		}
		return scoredHops[i].hop < scoredHops[j].hop
	})

	chosen := scoredHops[0].hop
	return &HopChoice{Hop: chosen, ResolverHints: defaultResolverHints(chosen)}
}

func availableHops(hs *HopSelector, alreadyTried map[model.SourceType]bool) []model.SourceType {
	var out []model.SourceType
	for _, hop := range hopOrder {
		if alreadyTried[hop] {
			continue
		}
		if hs.isExcluded(hop) {
			continue
		}
		out = append(out, hop)
	}
	return out
}

func defaultResolverHints(hop model.SourceType) []string {
	hints := strings.ToLower(strings.ReplaceAll(string(hop), "_", " "))
	return []string{hints}
}
