// Package risk turns raw schema conflicts into resolution strategies,
// business-impact analysis, a merge risk assessment, and a final merge
// decision. Everything in this package is deterministic: identical inputs
// always produce identical outputs.
package risk

import (
	"strings"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Entity categories recognized by the matcher.
const (
	CategoryRevenue    = "revenue"
	CategoryCompliance = "compliance"
	CategorySecurity   = "security"
)

// CategoryRule tags conflicts with a category when the object type matches
// one of the configured type names or the field name contains one of the
// keywords. New categories are added as rules, not as code.
type CategoryRule struct {
	Category      string
	TypeNames     []string
	FieldKeywords []string
}

// EntityMatcher evaluates category rules against conflicts.
type EntityMatcher struct {
	rules []CategoryRule
}

// NewEntityMatcher builds a matcher from the given rules.
func NewEntityMatcher(rules ...CategoryRule) *EntityMatcher {
	return &EntityMatcher{rules: rules}
}

// DefaultRules returns the built-in revenue/compliance/security rules,
// extended with the configured entity type names.
func DefaultRules(revenueEntities, complianceEntities []string) []CategoryRule {
	return []CategoryRule{
		{
			Category:      CategoryRevenue,
			TypeNames:     revenueEntities,
			FieldKeywords: []string{"price", "cost", "payment", "billing", "invoice", "revenue"},
		},
		{
			Category:      CategoryCompliance,
			TypeNames:     complianceEntities,
			FieldKeywords: []string{"personal", "private", "sensitive", "pii", "gdpr", "audit"},
		},
		{
			Category:      CategorySecurity,
			FieldKeywords: []string{"auth", "permission", "access", "security", "token", "credential"},
		},
	}
}

// Matches reports whether the conflict belongs to the given category.
func (m *EntityMatcher) Matches(category string, c *models.Conflict) bool {
	for _, rule := range m.rules {
		if rule.Category != category {
			continue
		}
		if matchesRule(rule, c) {
			return true
		}
	}
	return false
}

func matchesRule(rule CategoryRule, c *models.Conflict) bool {
	objectType := strings.ToLower(c.ObjectType)
	for _, name := range rule.TypeNames {
		if strings.ToLower(name) == objectType {
			return true
		}
	}

	fieldName := strings.ToLower(c.FieldName)
	if fieldName == "" {
		return false
	}
	for _, kw := range rule.FieldKeywords {
		if strings.Contains(fieldName, kw) {
			return true
		}
	}
	return false
}
