package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// OrchestratorConfig carries the subset of config.Config the orchestrator
// needs, kept local to avoid an import cycle with internal/config.
type OrchestratorConfig struct {
	MaxPasses         int
	PerCategoryBudget int
	TargetConfidence  float64
}

// Orchestrator runs up to N passes over one entity, evolving hypotheses
// between passes. One Orchestrator may be shared across concurrently-run
// entities — all per-run mutable state lives in the `run` value created
// fresh by each Run call, never on the Orchestrator itself.
type Orchestrator struct {
	scraper   Scraper
	llm       LanguageModel
	judge     LLMJudge
	validator *Validator
	episodes  EpisodeStore
	peers     PeerGraph
	log       SignalLog
	priors    *TemporalPriorService
	seeder    HypothesisSeeder
	alerts    *AlertManager
	cfg       OrchestratorConfig

	mu       sync.Mutex
	progress map[string]*Progress // entity_id -> progress, for concurrent runs
}

// NewOrchestrator wires every collaborator explicitly; nothing is
// resolved from a global.
func NewOrchestrator(scraper Scraper, llm LanguageModel, judge LLMJudge, episodes EpisodeStore, peers PeerGraph, signalLog SignalLog, priors *TemporalPriorService, seeder HypothesisSeeder, alerts *AlertManager, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		scraper: scraper, llm: llm, judge: judge, validator: NewValidator(llm),
		episodes: episodes, peers: peers, log: signalLog, priors: priors,
		seeder: seeder, alerts: alerts, cfg: cfg,
		progress: make(map[string]*Progress),
	}
}

// Progress is a thread-safe snapshot of an in-flight run.
type Progress struct {
	Running         atomic.Bool
	CurrentPass     atomic.Int64
	TotalIterations atomic.Int64
}

// ProgressSnapshot is the plain-value form returned to callers.
type ProgressSnapshot struct {
	Running         bool  `json:"running"`
	CurrentPass     int64 `json:"currentPass"`
	TotalIterations int64 `json:"totalIterations"`
}

// GetProgress returns the current run progress for entityID, the zero
// value if no run is known for it.
func (o *Orchestrator) GetProgress(entityID string) ProgressSnapshot {
	o.mu.Lock()
	p, ok := o.progress[entityID]
	o.mu.Unlock()
	if !ok {
		return ProgressSnapshot{}
	}
	return ProgressSnapshot{
		Running:         p.Running.Load(),
		CurrentPass:     p.CurrentPass.Load(),
		TotalIterations: p.TotalIterations.Load(),
	}
}

func (o *Orchestrator) progressFor(entityID string) *Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.progress[entityID]
	if !ok {
		p = &Progress{}
		o.progress[entityID] = p
	}
	return p
}

// run holds all state scoped to one entity's execution of Run — nothing
// here is shared across entities.
type run struct {
	o           *Orchestrator
	entity      model.Entity
	tier        string
	store       *Store
	progress    *Progress
	diagnostics []model.SkippedHypothesis
	cancelled   bool
	aborted     bool

	// evidenceURLs memoizes evidence_id -> source_url for the final
	// report's supporting-evidence listing; Evidence records themselves
	// are not persisted by the engine.
	evidenceURLs map[string]string
}

// Run drives one entity through up to cfg.MaxPasses passes, returning the
// final OpportunityReport. Cancellation is cooperative: the current
// iteration always runs to completion before the run returns cancelled.
func (o *Orchestrator) Run(ctx context.Context, entity model.Entity, tier string) model.OpportunityReport {
	p := o.progressFor(entity.EntityID)
	p.Running.Store(true)
	defer p.Running.Store(false)

	r := &run{
		o:            o,
		entity:       entity,
		tier:         tier,
		store:        NewStore(),
		progress:     p,
		evidenceURLs: make(map[string]string),
	}
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) model.OpportunityReport {
	passesRun := 0

	for pass := 1; pass <= r.o.cfg.MaxPasses; pass++ {
		r.progress.CurrentPass.Store(int64(pass))
		passesRun = pass

		state := model.NewDiscoveryState(r.entity.EntityID, pass)
		r.seedPass(ctx, pass)
		if !r.store.HasForPass(pass) {
			if pass > 1 {
				log.Printf("[Orchestrator] pass %d added no new hypotheses for entity %s; ending run", pass, r.entity.EntityID)
			}
			break
		}

		r.runPass(ctx, pass, state)

		if r.cancelled || r.aborted {
			break
		}
	}

	return model.OpportunityReport{
		EntityID:    r.entity.EntityID,
		PassesRun:   passesRun,
		Lines:       buildReportLines(r.store, r.evidenceURLs),
		Diagnostics: r.diagnostics,
		Cancelled:   r.cancelled,
	}
}

func (r *run) runPass(ctx context.Context, pass int, state *model.DiscoveryState) {
	o := r.o
	hopSelectors := make(map[string]*HopSelector)
	budget := o.cfg.PerCategoryBudget * len(model.AllCategories())

	for iter := 0; iter < budget; iter++ {
		select {
		case <-ctx.Done():
			r.cancelled = true
		default:
		}
		if r.cancelled || r.aborted {
			break
		}

		h := r.store.PickNext(pass, func(h *model.Hypothesis) (float64, float64) {
			lookup := o.priors.Lookup(h.EntityID, h.Category)
			matchingPeers := o.countMatchingPeers(ctx, r.entity.EntityID, h.Category)
			return lookup.Multiplier, NetworkBoost(matchingPeers)
		})
		if h == nil {
			break
		}

		o.runIteration(ctx, r, state, h, hopSelectors)
	}

	if state.IterationsThisPass >= budget {
		r.diagnostics = append(r.diagnostics, model.SkippedHypothesis{Reason: "iteration budget exhausted for pass"})
	}
}

func (o *Orchestrator) runIteration(ctx context.Context, r *run, state *model.DiscoveryState, h *model.Hypothesis, hopSelectors map[string]*HopSelector) {
	r.progress.TotalIterations.Add(1)
	state.IterationsThisPass++

	hs, ok := hopSelectors[h.HypothesisID]
	if !ok {
		hs = NewHopSelector()
		hopSelectors[h.HypothesisID] = hs
	}
	tried := state.HopsTriedThisIteration[h.HypothesisID]
	if tried == nil {
		tried = make(map[model.SourceType]bool)
		state.HopsTriedThisIteration[h.HypothesisID] = tried
	}

	lookup := o.priors.Lookup(h.EntityID, h.Category)
	matchingPeers := o.countMatchingPeers(ctx, r.entity.EntityID, h.Category)
	eig := EIG(h.Confidence, h.IterationsAttempted, h.Category, lookup.Multiplier, NetworkBoost(matchingPeers))
	acceptedInCategory := state.AcceptedInCategory[h.Category]

	choice := hs.Pick(eig, tried, func(hop model.SourceType) int { return state.HopBlacklistHits[hop] })
	if choice == nil {
		sig := NoProgressSignal(*h, "hops exhausted this iteration", lookup, acceptedInCategory, time.Now())
		o.applySignal(ctx, r, state, h, sig, model.Evidence{})
		return
	}
	tried[choice.Hop] = true

	ev, err := o.fetchEvidence(ctx, h, choice, r.entity.Name)
	if err != nil {
		hs.RecordFailure(choice.Hop)
		sig := NoProgressSignal(*h, "evidence fetch failed: "+err.Error(), lookup, acceptedInCategory, time.Now())
		o.applySignal(ctx, r, state, h, sig, model.Evidence{})
		return
	}
	hs.RecordSuccess(choice.Hop)

	sig, p1Result := o.validator.Evaluate(ctx, o.judge, *h, ev, PassOneInputs{
		EntityName:  r.entity.Name,
		Keywords:    keywordsFor(*h),
		Seen:        state.HasSeen,
		Blacklisted: r.entity.IsDomainBlacklisted,
		Now:         time.Now(),
	}, lookup, acceptedInCategory)
	state.MarkSeen(h.HypothesisID, ev.ContentHash)
	if p1Result.BlacklistedHop != "" {
		state.HopBlacklistHits[p1Result.BlacklistedHop]++
	}

	o.applySignal(ctx, r, state, h, sig, ev)
}

// applySignal runs the shared post-evaluation sequence for one produced
// Signal: saturation checks, durable append, store/state bookkeeping, and
// the action derived from (decision, post_confidence). Every saturation
// flag is computed BEFORE the append so the persisted signal carries it —
// replaying the log must reconstruct the identical terminal state.
func (o *Orchestrator) applySignal(ctx context.Context, r *run, state *model.DiscoveryState, h *model.Hypothesis, sig model.Signal, ev model.Evidence) {
	if ev.EvidenceID != "" {
		r.evidenceURLs[ev.EvidenceID] = ev.SourceURL
	}

	h.RecordDelta(sig.AppliedDelta, ConfidenceSaturationWindow)
	windowSum, windowFull := h.RecentDeltaSum(ConfidenceSaturationWindow)
	if EvaluateConfidenceSaturation(windowSum, windowFull) {
		sig.SaturationFlags.ConfidenceSaturated = true
		sig.Decision = model.DecisionSaturated
	}

	if sig.Decision == model.DecisionReject && EvaluateConsecutiveRejectSaturation(state.ConsecutiveRejects[h.Category]+1) {
		sig.SaturationFlags.CategorySaturated = true
	}

	if o.log != nil {
		if err := o.log.Append(ctx, sig); err != nil {
			log.Printf("[Orchestrator] Fatal: signal log append failed: %v", err)
			r.diagnostics = append(r.diagnostics, model.SkippedHypothesis{HypothesisID: h.HypothesisID, Reason: "signal log append failed: " + err.Error()})
			r.aborted = true
			return
		}
	}

	if err := r.store.UpdateAfterSignal(sig); err != nil {
		log.Printf("[Orchestrator] update_after_signal error: %v", err)
	}
	state.RecordDecision(h.HypothesisID, sig.Decision)

	switch sig.Decision {
	case model.DecisionAccept:
		state.AcceptedInCategory[h.Category]++
		state.ConsecutiveRejects[h.Category] = 0
	case model.DecisionReject:
		state.ConsecutiveRejects[h.Category]++
	default:
		state.ConsecutiveRejects[h.Category] = 0
	}

	if sig.SaturationFlags.ConfidenceSaturated {
		r.store.Freeze(h.HypothesisID, "confidence saturated")
	}
	if sig.SaturationFlags.CategorySaturated {
		state.CategorySaturated[h.Category] = true
		r.store.FreezeCategory(h.Category, h.PassNumber, "category saturated")
	}

	if model.DeriveAction(sig) == model.ActionLockIn && sig.Decision == model.DecisionAccept {
		o.spawnEpisode(ctx, r.entity, *h, sig)
		if o.alerts != nil {
			o.alerts.EmitLockIn(r.entity, *h, sig)
		}
	}
	if sig.Decision == model.DecisionAccept {
		o.spawnFollowUp(r, *h, sig, ev, h.PassNumber+1)
	}
}

// fetchEvidence asks the scraping collaborator for one piece of evidence,
// retrying transient failures (timeouts, rate-limiting) with the shared
// bounded backoff before the caller falls back to NO_PROGRESS.
// Invalid-evidence outcomes (no hits, empty body) are not retried.
func (o *Orchestrator) fetchEvidence(ctx context.Context, h *model.Hypothesis, choice *HopChoice, entityName string) (model.Evidence, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransientRetries; attempt++ {
		ev, err := o.fetchOnce(ctx, h, choice, entityName)
		if err == nil {
			return ev, nil
		}
		lastErr = err
		if KindOf(err) != KindTransientExternal {
			return model.Evidence{}, err
		}
		if attempt+1 < maxTransientRetries {
			select {
			case <-ctx.Done():
				return model.Evidence{}, newErr(KindCancelled, "Orchestrator.fetchEvidence", ctx.Err())
			case <-time.After(transientBackoffSchedule[attempt]):
			}
		}
	}
	return model.Evidence{}, lastErr
}

func (o *Orchestrator) fetchOnce(ctx context.Context, h *model.Hypothesis, choice *HopChoice, entityName string) (model.Evidence, error) {
	query := strings.TrimSpace(entityName + " " + strings.Join(choice.ResolverHints, " "))
	hits, err := o.scraper.Search(ctx, query, SearchGoogle)
	if err != nil {
		return model.Evidence{}, newErr(KindTransientExternal, "Orchestrator.fetchEvidence", err)
	}
	if len(hits) == 0 {
		return model.Evidence{}, newErr(KindInvalidEvidence, "Orchestrator.fetchEvidence", nil)
	}
	fetched, err := o.scraper.Fetch(ctx, hits[0].URL)
	if err != nil {
		return model.Evidence{}, newErr(KindTransientExternal, "Orchestrator.fetchEvidence", err)
	}
	if fetched.Markdown == "" {
		return model.Evidence{}, newErr(KindInvalidEvidence, "Orchestrator.fetchEvidence", nil)
	}
	return model.NewEvidence(h.HypothesisID, hits[0].URL, choice.Hop, fetched.Markdown, fetched.FetchedAt), nil
}

// keywordsFor derives the Pass-1 mention keywords from a hypothesis's own
// statement: its significant words, lowercased, plus the category name.
func keywordsFor(h model.Hypothesis) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(h.Statement)) {
		w = strings.Trim(w, ".,;:()\"'")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	out = append(out, strings.ToLower(strings.ReplaceAll(string(h.Category), "_", " ")))
	return out
}

func (o *Orchestrator) countMatchingPeers(ctx context.Context, entityID string, category model.SignalCategory) int {
	if o.peers == nil {
		return 0
	}
	peerIDs, err := o.peers.Peers(ctx, entityID)
	if err != nil {
		return 0
	}
	count := 0
	for _, peerID := range peerIDs {
		cats, err := o.peers.AdoptedCategories(ctx, peerID)
		if err != nil {
			continue
		}
		for _, c := range cats {
			if c == category {
				count++
				break
			}
		}
	}
	return count
}

// seedPass populates the store for a pass: pass 1 from the injected
// HypothesisSeeder, pass 2 additionally from the peer network (partners'
// known adopted categories), pass 3 by promoting the strongest surviving
// leads for a deep dive. Follow-ups spawned by earlier ACCEPTs were
// already added targeting their pass number and need no seeding here.
func (r *run) seedPass(ctx context.Context, pass int) {
	o := r.o
	switch pass {
	case 1:
		if o.seeder == nil {
			return
		}
		seeds, err := o.seeder.Seed(ctx, r.entity, r.tier)
		if err != nil {
			log.Printf("[Orchestrator] seeding error for entity %s: %v", r.entity.EntityID, err)
			return
		}
		for _, h := range seeds {
			h.PassNumber = pass
			if h.Confidence == 0 {
				h.Confidence = StartConfidence
			}
			if _, err := r.store.Add(h); err != nil && KindOf(err) != KindDuplicateHypothesis {
				log.Printf("[Orchestrator] seed add error: %v", err)
			}
		}
	case 2:
		r.seedFromNetwork(ctx, pass)
	case 3:
		r.seedDeepDive(ctx, pass)
	}
}

// deepDiveTopK bounds how many prior-pass hypotheses the deep-dive pass
// carries forward.
const deepDiveTopK = 3

// seedDeepDive promotes the top-k unfrozen previous-pass hypotheses by EIG
// into this pass, carrying their confidence, so the deep-dive pass keeps
// working the most promising leads alongside any spawned follow-ups.
func (r *run) seedDeepDive(ctx context.Context, pass int) {
	o := r.o
	type scored struct {
		h   *model.Hypothesis
		eig float64
	}
	var candidates []scored
	for _, h := range r.store.All() {
		if h.PassNumber != pass-1 || h.Frozen {
			continue
		}
		lookup := o.priors.Lookup(h.EntityID, h.Category)
		peers := o.countMatchingPeers(ctx, r.entity.EntityID, h.Category)
		candidates = append(candidates, scored{h, EIG(h.Confidence, h.IterationsAttempted, h.Category, lookup.Multiplier, NetworkBoost(peers))})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].eig != candidates[j].eig {
			return candidates[i].eig > candidates[j].eig
		}
		return candidates[i].h.HypothesisID < candidates[j].h.HypothesisID
	})
	for i, c := range candidates {
		if i >= deepDiveTopK {
			break
		}
		promoted := model.Hypothesis{
			EntityID:         c.h.EntityID,
			Category:         c.h.Category,
			Statement:        c.h.Statement,
			PriorProbability: c.h.Confidence,
			Confidence:       c.h.Confidence,
			DerivedFrom:      c.h.HypothesisID,
			PassNumber:       pass,
		}
		if _, err := r.store.Add(promoted); err != nil && KindOf(err) != KindDuplicateHypothesis {
			log.Printf("[Orchestrator] deep-dive promotion error: %v", err)
		}
	}
}

// seedFromNetwork adds one pass-2 hypothesis per category the entity's
// peers are known to have adopted technology for.
func (r *run) seedFromNetwork(ctx context.Context, pass int) {
	o := r.o
	if o.peers == nil {
		return
	}
	peerIDs, err := o.peers.Peers(ctx, r.entity.EntityID)
	if err != nil {
		log.Printf("[Orchestrator] peer lookup error for entity %s: %v", r.entity.EntityID, err)
		return
	}
	adoptedCount := make(map[model.SignalCategory]int)
	for _, peerID := range peerIDs {
		cats, err := o.peers.AdoptedCategories(ctx, peerID)
		if err != nil {
			continue
		}
		for _, c := range cats {
			adoptedCount[c]++
		}
	}
	for category, n := range adoptedCount {
		h := model.Hypothesis{
			EntityID:         r.entity.EntityID,
			Category:         category,
			Statement:        fmt.Sprintf("%s will evaluate %s technology already adopted by %d of its partners", r.entity.Name, category, n),
			PriorProbability: StartConfidence,
			Confidence:       StartConfidence,
			PassNumber:       pass,
		}
		if _, err := r.store.Add(h); err != nil && KindOf(err) != KindDuplicateHypothesis {
			log.Printf("[Orchestrator] network seed add error: %v", err)
		}
	}
}

func (o *Orchestrator) spawnEpisode(ctx context.Context, entity model.Entity, h model.Hypothesis, sig model.Signal) {
	if o.episodes == nil {
		return
	}
	ep := model.TemporalEpisode{
		EpisodeID:       model.NewID("epi"),
		EntityID:        entity.EntityID,
		SignalCategory:  h.Category,
		EpisodeType:     model.EpisodeTechnologyAdopted,
		OccurredAt:      sig.CreatedAt,
		Description:     sig.Reasoning,
		ConfidenceScore: sig.PostConfidence,
		SourceSignalID:  sig.SignalID,
	}
	if err := o.episodes.SaveEpisode(ctx, ep); err != nil {
		log.Printf("[Orchestrator] episode persist error: %v", err)
	}
}

// knownTechnologies is the vendor/platform vocabulary the evolution rule
// scans accepted evidence for. Matching is case-insensitive substring over
// the snippet.
var knownTechnologies = []string{
	"Salesforce", "HubSpot", "Microsoft Dynamics", "SAP", "Oracle",
	"Ticketmaster", "SeatGeek", "AWS", "Azure", "Google Cloud",
	"Snowflake", "Databricks", "Shopify", "Adobe", "Sitecore",
	"Tableau", "Power BI", "Okta", "Workday",
}

func surfacedTechnology(snippet string) string {
	lower := strings.ToLower(snippet)
	for _, tech := range knownTechnologies {
		if strings.Contains(lower, strings.ToLower(tech)) {
			return tech
		}
	}
	return ""
}

// spawnFollowUp implements the hypothesis-evolution rule: one child
// hypothesis per pass-N ACCEPT, prior_probability = parent confidence ×
// 0.9, derived_from = parent, targeted at pass N+1. When the accepted
// evidence surfaced a specific technology, the child statement names it.
func (o *Orchestrator) spawnFollowUp(r *run, parent model.Hypothesis, sig model.Signal, ev model.Evidence, nextPass int) {
	if nextPass > o.cfg.MaxPasses {
		return
	}
	var statement string
	if tech := surfacedTechnology(ev.Snippet); tech != "" {
		statement = fmt.Sprintf("%s will procure services around %s", r.entity.Name, tech)
	} else {
		statement = fmt.Sprintf("%s will procure follow-on %s services building on recent activity", r.entity.Name, parent.Category)
	}
	child := model.Hypothesis{
		EntityID:         parent.EntityID,
		Category:         parent.Category,
		Statement:        statement,
		PriorProbability: sig.PostConfidence * 0.9,
		Confidence:       StartConfidence,
		DerivedFrom:      parent.HypothesisID,
		PassNumber:       nextPass,
	}
	if _, err := r.store.Add(child); err != nil && KindOf(err) != KindDuplicateHypothesis {
		log.Printf("[Orchestrator] follow-up hypothesis add error: %v", err)
	}
}

func buildReportLines(store *Store, evidenceURLs map[string]string) []model.OpportunityLine {
	best := make(map[model.SignalCategory]*model.Hypothesis)
	for _, h := range store.All() {
		cur, ok := best[h.Category]
		if !ok || h.Confidence > cur.Confidence {
			best[h.Category] = h
		}
	}
	lines := make([]model.OpportunityLine, 0, len(best))
	for category, h := range best {
		var urls []string
		for _, evID := range h.EvidenceIDs {
			if u, ok := evidenceURLs[evID]; ok && u != "" {
				urls = append(urls, u)
			}
		}
		lines = append(lines, model.OpportunityLine{
			Category:               category,
			TopHypothesis:          h.Statement,
			Confidence:             h.Confidence,
			SupportingEvidenceURLs: urls,
			RecommendedAction:      model.RecommendAction(h.Confidence),
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Category < lines[j].Category })
	return lines
}
