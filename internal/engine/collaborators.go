package engine

import (
	"context"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// Every dependency the engine suspends on is a named capability
// interface, constructed by the caller and never looked up from a global.

// SearchHit is one result returned by Scraper.Search.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

// FetchResult is the page content returned by Scraper.Fetch.
type FetchResult struct {
	Markdown  string
	FetchedAt time.Time
}

// SearchEngine narrows which backend a Scraper.Search call should use.
type SearchEngine string

const (
	SearchGoogle SearchEngine = "google"
	SearchBing   SearchEngine = "bing"
	SearchYandex SearchEngine = "yandex"
)

// Scraper is the web-scraping collaborator. Out of the engine's
// scope to implement transport for; the engine only depends on this
// behaviour.
type Scraper interface {
	Search(ctx context.Context, query string, engine SearchEngine) ([]SearchHit, error)
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// LLMModel narrows which tier of language model a call targets.
type LLMModel = model.ModelTier

// LLMMessage is one turn in a chat-style completion request.
type LLMMessage struct {
	Role    string
	Content string
}

// LLMResponse is the collaborator's answer to a completion request.
type LLMResponse struct {
	Text       string
	StopReason string
}

// LanguageModel is the LLM collaborator. Idempotent retries are the
// engine's responsibility — the collaborator only forwards the call.
type LanguageModel interface {
	Complete(ctx context.Context, m LLMModel, messages []LLMMessage, maxTokens int) (LLMResponse, error)
}

// EpisodeStore persists TemporalEpisode records and answers queries over
// them.
type EpisodeStore interface {
	SaveEpisode(ctx context.Context, ep model.TemporalEpisode) error
	Episodes(ctx context.Context, entityID string, since *time.Time) ([]model.TemporalEpisode, error)
}

// PeerGraph answers partner/competitor lookups for network-boost scoring
// and pass-2 context injection.
type PeerGraph interface {
	Peers(ctx context.Context, entityID string) ([]string, error)
	// AdoptedCategories reports which SignalCategory a peer entity is known
	// to have adopted technology for, driving EIG's network_boost term.
	AdoptedCategories(ctx context.Context, peerEntityID string) ([]model.SignalCategory, error)
}

// SignalLog is the append-only durable store. Writes must be
// durable before Append returns.
type SignalLog interface {
	Append(ctx context.Context, s model.Signal) error
	// Replay returns all signals for (entityID, passNumber) in append order.
	Replay(ctx context.Context, entityID string, passNumber int) ([]model.Signal, error)
}

// PriorStore is the temporal-prior file collaborator: a read-only,
// startup-loaded map. Implementations must answer Lookup in O(1) on the hot
// path — never a database query.
type PriorStore interface {
	Lookup(entityID string, category model.SignalCategory) model.PriorLookup
}

// HypothesisSeeder is the injected pass-1 seeding strategy: given
// (entity, tier) return hypotheses with populated prior_probability.
// The exact keyword tables are the implementation's business — only the
// contract lives here.
type HypothesisSeeder interface {
	Seed(ctx context.Context, entity model.Entity, tier string) ([]model.Hypothesis, error)
}
