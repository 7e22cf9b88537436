package engine

import (
	"strings"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// maxEvidenceAge is the deterministic filter's staleness cutoff.
const maxEvidenceAge = 18 * 30 * 24 * time.Hour

// blacklistedPhrasesBySource holds deterministic REJECT phrases keyed by
// source_type: job-board noise that never signals procurement intent.
var blacklistedPhrasesBySource = map[model.SourceType][]string{
	model.SourceLinkedInOperationalJob: {"kit assistant", "equipment manager", "internship"},
	model.SourceCareersPage:            {"volunteer", "seasonal staff"},
}

// PassOneResult is the deterministic filter's verdict: either a final
// decision, or "pass" (zero value Decision) meaning pass 2 should run.
type PassOneResult struct {
	Decision Decision
	Reason   string

	// BlacklistedHop is set to the evidence's source type when the
	// verdict was a REJECT for matching a blacklisted phrase for that
	// source type, so the caller can feed the hop selector's blacklist
	// penalty. Zero value ("") for every other verdict.
	BlacklistedHop model.SourceType
}

// Decision re-exports model.Decision so validator call sites read
// naturally as engine.Decision.
type Decision = model.Decision

// seenContentHashes is supplied by the caller (the orchestrator passes
// DiscoveryState.HasSeen through PassOneInputs) rather than owned here,
// keeping this filter a pure
// function of its inputs.
type seenContentHashes func(hypothesisID, contentHash string) bool

// domainBlacklist checks a source URL's domain against a per-entity
// blacklist, supplied by the caller.
type domainBlacklist func(domain string) bool

// EvaluatePassOne runs the deterministic rule filter, the first pass of
// the validation cascade.
// REJECT if any: duplicate content_hash; evidence older than 18 months;
// source domain blacklisted; content matches a blacklisted phrase for its
// source_type. NO_PROGRESS if content mentions neither the entity nor any
// of the hypothesis's keywords.
func EvaluatePassOne(h model.Hypothesis, ev model.Evidence, entityName string, keywords []string, seen seenContentHashes, blacklisted domainBlacklist, now time.Time) PassOneResult {
	if seen(h.HypothesisID, ev.ContentHash) {
		return PassOneResult{Decision: model.DecisionReject, Reason: "duplicate content_hash for this hypothesis"}
	}

	if now.Sub(ev.FetchedAt) > maxEvidenceAge {
		return PassOneResult{Decision: model.DecisionReject, Reason: "evidence older than 18 months"}
	}

	if domain := domainOf(ev.SourceURL); blacklisted(domain) {
		return PassOneResult{Decision: model.DecisionReject, Reason: "source domain blacklisted: " + domain}
	}

	snippetLower := strings.ToLower(ev.Snippet)
	for _, phrase := range blacklistedPhrasesBySource[ev.SourceType] {
		if strings.Contains(snippetLower, phrase) {
			return PassOneResult{
				Decision:       model.DecisionReject,
				Reason:         "blacklisted phrase for " + string(ev.SourceType) + ": " + phrase,
				BlacklistedHop: ev.SourceType,
			}
		}
	}

	if !mentionsEntityOrKeyword(snippetLower, entityName, keywords) {
		return PassOneResult{Decision: model.DecisionNoProgress, Reason: "content does not mention entity or hypothesis keywords"}
	}

	return PassOneResult{} // zero-value Decision == "pass"
}

func mentionsEntityOrKeyword(snippetLower, entityName string, keywords []string) bool {
	if entityName != "" && strings.Contains(snippetLower, strings.ToLower(entityName)) {
		return true
	}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(snippetLower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func domainOf(sourceURL string) string {
	u := sourceURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}
