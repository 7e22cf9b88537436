package model

import "time"

// SourceType narrows where a piece of Evidence originated, used both for
// the pass-1 per-source phrase blacklist and for hop selection.
type SourceType string

const (
	SourcePartnershipAnnouncement SourceType = "PARTNERSHIP_ANNOUNCEMENT"
	SourceTechNews                SourceType = "TECH_NEWS"
	SourcePressRelease            SourceType = "PRESS_RELEASE"
	SourceLeadershipJobPosting    SourceType = "LEADERSHIP_JOB_POSTING"
	SourceAnnualReport            SourceType = "ANNUAL_REPORT"
	SourceLinkedInOperationalJob  SourceType = "LINKEDIN_OPERATIONAL_JOB"
	SourceOfficialSite            SourceType = "OFFICIAL_SITE"
	SourceCareersPage             SourceType = "CAREERS_PAGE"
	SourceOther                   SourceType = "OTHER"
)

// Evidence is a single web-sourced artifact, immutable once created.
type Evidence struct {
	EvidenceID   string     `json:"evidence_id"`
	HypothesisID string     `json:"hypothesis_id"`
	SourceURL    string     `json:"source_url"`
	SourceType   SourceType `json:"source_type"`
	Snippet      string     `json:"snippet"`
	ContentHash  string     `json:"content_hash"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// MaxSnippetBytes bounds the raw content snippet retained per Evidence;
// the token-budget discipline extends to the stored snippet, not only LLM
// context injection.
const MaxSnippetBytes = 4096

// NewEvidence constructs an Evidence record, truncating the snippet and
// computing its content hash.
func NewEvidence(hypothesisID, sourceURL string, sourceType SourceType, content string, fetchedAt time.Time) Evidence {
	snippet := content
	if len(snippet) > MaxSnippetBytes {
		snippet = snippet[:MaxSnippetBytes]
	}
	return Evidence{
		EvidenceID:   NewID("evd"),
		HypothesisID: hypothesisID,
		SourceURL:    sourceURL,
		SourceType:   sourceType,
		Snippet:      snippet,
		ContentHash:  ContentHash(hypothesisID, sourceURL, content),
		FetchedAt:    fetchedAt,
	}
}
