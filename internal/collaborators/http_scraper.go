// Package collaborators provides the stock implementations of the
// engine's injected capability interfaces (Scraper, LanguageModel,
// PeerGraph, HypothesisSeeder) — every one wired in explicitly by
// cmd/engine/main.go, never reached for via a global.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rawblock/discovery-engine/internal/engine"
)

// SearchConfig configures the HTTP search/fetch backend.
type SearchConfig struct {
	SearchURL    string // e.g. https://api.example.com/search?q=
	FetchTimeout time.Duration
}

// HTTPScraper implements engine.Scraper over a configurable HTTP search
// endpoint and plain page GET: config struct in, http.Client wrapped, one
// method per remote call.
type HTTPScraper struct {
	cfg    SearchConfig
	client *http.Client
}

// NewHTTPScraper constructs an HTTPScraper.
func NewHTTPScraper(cfg SearchConfig) *HTTPScraper {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &HTTPScraper{cfg: cfg, client: &http.Client{Timeout: cfg.FetchTimeout}}
}

type searchResponseHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Search issues a GET against the configured search endpoint and decodes
// a JSON array of hits. The chosen SearchEngine is passed through as a
// query parameter; routing between backends is the endpoint's concern.
func (s *HTTPScraper) Search(ctx context.Context, query string, eng engine.SearchEngine) ([]engine.SearchHit, error) {
	url := fmt.Sprintf("%s%s&engine=%s", s.cfg.SearchURL, query, eng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var hits []searchResponseHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode search response: %v", err)
	}

	out := make([]engine.SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, engine.SearchHit{Title: h.Title, URL: h.URL, Snippet: h.Snippet})
	}
	return out, nil
}

// Fetch retrieves a page's body as the engine's Markdown payload. No HTML
// extraction is performed here — the evidence pipeline treats whatever
// bytes come back as the snippet source, truncated downstream.
func (s *HTTPScraper) Fetch(ctx context.Context, url string) (engine.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.FetchResult{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return engine.FetchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return engine.FetchResult{}, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return engine.FetchResult{}, err
	}
	return engine.FetchResult{Markdown: string(body), FetchedAt: time.Now()}, nil
}

// LLMConfig configures the HTTP completion backend.
type LLMConfig struct {
	CompletionURL string
	APIKey        string
	Timeout       time.Duration
}

// HTTPLanguageModel implements engine.LanguageModel over a generic
// chat-completion HTTP endpoint.
type HTTPLanguageModel struct {
	cfg    LLMConfig
	client *http.Client
}

// NewHTTPLanguageModel constructs an HTTPLanguageModel.
func NewHTTPLanguageModel(cfg LLMConfig) *HTTPLanguageModel {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPLanguageModel{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type completionRequest struct {
	Model     string              `json:"model"`
	Messages  []engine.LLMMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
}

type completionResponse struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

// Complete posts a chat-style completion request and returns the raw
// text response. Retry/backoff on transient failure is the Validator's
// responsibility, not this collaborator's.
func (m *HTTPLanguageModel) Complete(ctx context.Context, tier engine.LLMModel, messages []engine.LLMMessage, maxTokens int) (engine.LLMResponse, error) {
	payload, err := json.Marshal(completionRequest{Model: string(tier), Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return engine.LLMResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.CompletionURL, bytes.NewReader(payload))
	if err != nil {
		return engine.LLMResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return engine.LLMResponse{}, fmt.Errorf("completion backend returned status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return engine.LLMResponse{}, fmt.Errorf("decode completion response: %v", err)
	}
	return engine.LLMResponse{Text: out.Text, StopReason: out.StopReason}, nil
}
