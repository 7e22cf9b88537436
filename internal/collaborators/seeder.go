package collaborators

import (
	"context"
	"fmt"

	"github.com/rawblock/discovery-engine/internal/engine"
	"github.com/rawblock/discovery-engine/pkg/model"
)

// categoryTemplates holds one seed statement template per category, the
// pass-1 starting point before any evidence exists.
var categoryTemplates = map[model.SignalCategory]string{
	model.CategoryCRM:           "%s is evaluating or renewing a CRM platform.",
	model.CategoryTicketing:     "%s is evaluating or renewing a ticketing platform.",
	model.CategoryAnalytics:     "%s is adopting a new performance or fan analytics platform.",
	model.CategoryOperations:    "%s is modernizing back-office operations tooling.",
	model.CategoryMobile:        "%s is building or relaunching a mobile app.",
	model.CategoryWeb:           "%s is redesigning or rebuilding its public website.",
	model.CategoryCommerce:      "%s is adding or switching e-commerce/merchandising infrastructure.",
	model.CategoryFanEngagement: "%s is rolling out a new fan engagement or loyalty program.",
	model.CategoryContent:       "%s is investing in content production or a streaming platform.",
	model.CategoryDataPlatform:  "%s is consolidating data onto a new platform or warehouse.",
	model.CategorySecurity:      "%s is procuring security or access-control infrastructure.",
	model.CategoryCloud:         "%s is migrating infrastructure to a new cloud provider.",
	model.CategoryIntegration:   "%s is integrating a new middleware or API platform.",
}

// tierBudget caps how many categories a tier seeds per pass — higher
// tiers start broader.
var tierBudget = map[string]int{
	"basic":    4,
	"standard": 8,
	"premium":  13,
}

// TemplateSeeder is the stock HypothesisSeeder: it emits one templated
// hypothesis per category (bounded by tier) with prior_probability equal
// to the fixed start confidence, deferring all actual discovery to the
// validator loop's evidence-driven arithmetic.
type TemplateSeeder struct{}

// NewTemplateSeeder constructs a TemplateSeeder.
func NewTemplateSeeder() *TemplateSeeder {
	return &TemplateSeeder{}
}

func (s *TemplateSeeder) Seed(ctx context.Context, entity model.Entity, tier string) ([]model.Hypothesis, error) {
	budget, ok := tierBudget[tier]
	if !ok {
		budget = tierBudget["standard"]
	}

	categories := model.AllCategories()
	out := make([]model.Hypothesis, 0, budget)
	for i, category := range categories {
		if i >= budget {
			break
		}
		template, ok := categoryTemplates[category]
		if !ok {
			continue
		}
		out = append(out, model.Hypothesis{
			EntityID:         entity.EntityID,
			Category:         category,
			Statement:        fmt.Sprintf(template, entity.Name),
			PriorProbability: engine.StartConfidence,
			Confidence:       engine.StartConfidence,
		})
	}
	return out, nil
}
