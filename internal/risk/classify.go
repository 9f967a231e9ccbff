package risk

import (
	"sort"

	"github.com/kilupskalvis/branchd/internal/models"
)

// Config holds the externally owned classification and risk settings.
type Config struct {
	CriticalServices   []string
	RevenueEntities    []string
	ComplianceEntities []string
	// ServiceMap maps object type names to the services that consume them.
	ServiceMap map[string][]string
}

// strategyProfile is the fixed (action, confidence, effort) table per strategy.
type strategyProfile struct {
	action      string
	confidence  float64
	effortHours float64
}

var strategyProfiles = map[models.ResolutionStrategy]strategyProfile{
	models.ResolveAutomatic:     {"apply migration automatically", 0.9, 0.5},
	models.ResolveSemiAutomatic: {"apply migration, then validate affected services", 0.7, 2},
	models.ResolveManual:        {"manual analysis required", 0.3, 4},
	models.ResolveDefer:         {"defer until the next merge window", 0.1, 8},
}

// Classifier maps conflicts to resolution strategies via an ordered rule
// list; the first matching rule wins.
type Classifier struct {
	matcher          *EntityMatcher
	criticalServices map[string]bool
	serviceMap       map[string][]string
}

// NewClassifier builds a classifier from the risk configuration.
func NewClassifier(cfg Config) *Classifier {
	critical := make(map[string]bool, len(cfg.CriticalServices))
	for _, svc := range cfg.CriticalServices {
		critical[svc] = true
	}
	return &Classifier{
		matcher:          NewEntityMatcher(DefaultRules(cfg.RevenueEntities, cfg.ComplianceEntities)...),
		criticalServices: critical,
		serviceMap:       cfg.ServiceMap,
	}
}

// Classify returns the resolution strategy for a single conflict.
func (c *Classifier) Classify(conflict *models.Conflict) *models.ConflictResolution {
	strategy := c.strategyFor(conflict)
	profile := strategyProfiles[strategy]

	touchesRevenue := c.matcher.Matches(CategoryRevenue, conflict)
	touchesCompliance := c.matcher.Matches(CategoryCompliance, conflict)
	critical := c.affectsCriticalService(conflict)

	requiresApproval := strategy == models.ResolveManual ||
		strategy == models.ResolveSemiAutomatic ||
		critical

	roles := make(map[string]bool)
	if conflict.Severity == models.SeverityCritical {
		roles["engineering_lead"] = true
		roles["product_owner"] = true
	}
	if touchesRevenue {
		roles["finance_lead"] = true
	}
	if touchesCompliance {
		roles["compliance_officer"] = true
	}
	if critical {
		roles["service_owner"] = true
	}

	return &models.ConflictResolution{
		Conflict:             conflict,
		Strategy:             strategy,
		ResolutionAction:     profile.action,
		Confidence:           profile.confidence,
		EstimatedEffortHours: profile.effortHours,
		RequiresApproval:     requiresApproval,
		ApproverRoles:        sortedKeys(roles),
	}
}

// ClassifyAll classifies every conflict in order.
func (c *Classifier) ClassifyAll(conflicts []*models.Conflict) []*models.ConflictResolution {
	resolutions := make([]*models.ConflictResolution, 0, len(conflicts))
	for _, conflict := range conflicts {
		resolutions = append(resolutions, c.Classify(conflict))
	}
	return resolutions
}

// strategyFor evaluates the ordered rule list.
func (c *Classifier) strategyFor(conflict *models.Conflict) models.ResolutionStrategy {
	switch {
	case conflict.Severity == models.SeverityCritical:
		return models.ResolveManual
	case c.matcher.Matches(CategoryRevenue, conflict):
		return models.ResolveManual
	case c.matcher.Matches(CategoryCompliance, conflict):
		return models.ResolveSemiAutomatic
	case conflict.Severity == models.SeverityHigh && len(conflict.SuggestedStrategies) > 0:
		return models.ResolveSemiAutomatic
	case conflict.Severity == models.SeverityMedium || conflict.Severity == models.SeverityLow:
		return models.ResolveAutomatic
	default:
		// Fail safe: unknown severity goes to a human.
		return models.ResolveManual
	}
}

// servicesFor returns the services a conflict touches: explicit hints from
// the diff engine plus the static object-type lookup.
func (c *Classifier) servicesFor(conflict *models.Conflict) []string {
	seen := make(map[string]bool)
	for _, svc := range conflict.Impact.AffectedServices {
		seen[svc] = true
	}
	for _, svc := range c.serviceMap[conflict.ObjectType] {
		seen[svc] = true
	}
	return sortedKeys(seen)
}

// affectsCriticalService reports whether any touched service is configured
// as critical.
func (c *Classifier) affectsCriticalService(conflict *models.Conflict) bool {
	for _, svc := range c.servicesFor(conflict) {
		if c.criticalServices[svc] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
