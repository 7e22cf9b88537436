package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// defaultLLMJudge is the stock LLMJudge: it prompts the bound
// LanguageModel for a JSON object matching criteriaCheck's fields and
// parses the response. Tests substitute a hand-built LLMJudge instead of
// exercising this path (see LLMJudge's doc comment).
type defaultLLMJudge struct {
	lm LanguageModel
}

// NewDefaultLLMJudge builds the stock LLMJudge used outside of tests.
// Pass 2 runs on the small tier and pass 3 on the large tier per the
// cascade's escalation rule.
func NewDefaultLLMJudge(lm LanguageModel) LLMJudge {
	return &defaultLLMJudge{lm: lm}
}

func (j *defaultLLMJudge) JudgePassTwo(ctx context.Context, h model.Hypothesis, ev model.Evidence) (criteriaCheck, error) {
	prompt := fmt.Sprintf(
		"Hypothesis: %s\nEvidence source: %s\nEvidence snippet:\n%s\n\n"+
			"Answer strictly as JSON with boolean fields is_new, entity_specific, "+
			"implies_procurement, credible_source, and a string field reasoning.",
		h.Statement, ev.SourceURL, ev.Snippet,
	)
	resp, err := j.lm.Complete(ctx, model.ModelSmall, []LLMMessage{
		{Role: "system", Content: "You screen evidence for a procurement-opportunity discovery pipeline."},
		{Role: "user", Content: prompt},
	}, 512)
	if err != nil {
		return criteriaCheck{}, err
	}

	var parsed struct {
		IsNew              bool   `json:"is_new"`
		EntitySpecific     bool   `json:"entity_specific"`
		ImpliesProcurement bool   `json:"implies_procurement"`
		CredibleSource     bool   `json:"credible_source"`
		Reasoning          string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return criteriaCheck{}, fmt.Errorf("judge: malformed pass-two response: %v", err)
	}

	return criteriaCheck{
		IsNew:              parsed.IsNew,
		EntitySpecific:     parsed.EntitySpecific,
		ImpliesProcurement: parsed.ImpliesProcurement,
		CredibleSource:     parsed.CredibleSource,
		Reasoning:          parsed.Reasoning,
	}, nil
}

func (j *defaultLLMJudge) JudgePassThree(ctx context.Context, h model.Hypothesis, ev model.Evidence, pass2 criteriaCheck) (bool, error) {
	prompt := fmt.Sprintf(
		"Hypothesis: %s\nPass-two assessment: %+v\nEvidence snippet:\n%s\n\n"+
			"Cross-examine the pass-two assessment for internal contradictions or "+
			"unsupported leaps. Answer strictly as JSON: {\"confirmed\": true|false}.",
		h.Statement, pass2, ev.Snippet,
	)
	resp, err := j.lm.Complete(ctx, model.ModelLarge, []LLMMessage{
		{Role: "system", Content: "You are a skeptical second reviewer for a procurement-opportunity discovery pipeline."},
		{Role: "user", Content: prompt},
	}, 256)
	if err != nil {
		return false, err
	}

	var parsed struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return false, fmt.Errorf("judge: malformed pass-three response: %v", err)
	}
	return parsed.Confirmed, nil
}

// extractJSON trims surrounding prose a language model sometimes wraps a
// JSON object in, returning the substring between the first '{' and the
// last '}'.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return text[start : end+1]
}
