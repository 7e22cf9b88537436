package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// hashFields produces a stable content hash over an ordered set of fields:
// join with a delimiter unlikely to appear in any field, then sha256/hex.
func hashFields(fields ...string) string {
	payload := ""
	for i, f := range fields {
		if i > 0 {
			payload += "|"
		}
		payload += f
	}
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// StatementHash is the idempotency key for Hypothesis.add: identical
// (entity_id, category, statement) within a pass must collide.
func StatementHash(entityID string, category SignalCategory, statement string) string {
	return hashFields(entityID, string(category), statement)
}

// ContentHash is the novelty key for Evidence: identical source content for
// the same hypothesis must be detected as a duplicate by the Pass-1 filter.
func ContentHash(hypothesisID, sourceURL, content string) string {
	return hashFields(hypothesisID, sourceURL, content)
}

// NewID mints a kind-prefixed unique identifier, e.g. "hyp-3f9c1a2b...".
func NewID(kind string) string {
	return fmt.Sprintf("%s-%s", kind, uuid.New().String())
}
