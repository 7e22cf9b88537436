package model

import "testing"

func TestStatementHash_Deterministic(t *testing.T) {
	h1 := StatementHash("ent-1", CategoryCRM, "Acme is evaluating a CRM platform.")
	h2 := StatementHash("ent-1", CategoryCRM, "Acme is evaluating a CRM platform.")
	if h1 != h2 {
		t.Errorf("expected identical hash for identical inputs, got %q vs %q", h1, h2)
	}
}

func TestStatementHash_DiffersOnCategory(t *testing.T) {
	h1 := StatementHash("ent-1", CategoryCRM, "same statement")
	h2 := StatementHash("ent-1", CategoryTicketing, "same statement")
	if h1 == h2 {
		t.Errorf("expected hash to differ across categories, got identical %q", h1)
	}
}

func TestContentHash_DiffersOnSourceURL(t *testing.T) {
	h1 := ContentHash("hyp-1", "https://a.example.com/x", "body text")
	h2 := ContentHash("hyp-1", "https://b.example.com/x", "body text")
	if h1 == h2 {
		t.Errorf("expected hash to differ across source URLs, got identical %q", h1)
	}
}

func TestNewID_HasKindPrefix(t *testing.T) {
	id := NewID("hyp")
	if len(id) < 5 || id[:4] != "hyp-" {
		t.Errorf("expected id prefixed with %q, got %q", "hyp-", id)
	}
}

func TestNewID_Unique(t *testing.T) {
	a := NewID("sig")
	b := NewID("sig")
	if a == b {
		t.Errorf("expected two calls to NewID to produce distinct ids, got %q twice", a)
	}
}
