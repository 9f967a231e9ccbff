package risk

import "github.com/kilupskalvis/branchd/internal/models"

// severityCounts tallies conflicts per severity.
type severityCounts struct {
	critical int
	high     int
	medium   int
	low      int
}

func countSeverities(conflicts []*models.Conflict) severityCounts {
	var counts severityCounts
	for _, c := range conflicts {
		switch c.Severity {
		case models.SeverityCritical:
			counts.critical++
		case models.SeverityHigh:
			counts.high++
		case models.SeverityMedium:
			counts.medium++
		default:
			counts.low++
		}
	}
	return counts
}

// AnalyzeBusinessImpact aggregates conflicts into a business-impact view.
func (c *Classifier) AnalyzeBusinessImpact(conflicts []*models.Conflict) *models.BusinessImpactAnalysis {
	counts := countSeverities(conflicts)

	affected := make(map[string]bool)
	for _, conflict := range conflicts {
		for _, svc := range c.servicesFor(conflict) {
			affected[svc] = true
		}
	}

	critical := make(map[string]bool)
	for svc := range affected {
		if c.criticalServices[svc] {
			critical[svc] = true
		}
	}

	// Downtime is additive per conflict by severity, scaled up for large
	// conflict sets where coordination overhead dominates.
	downtime := float64(counts.critical)*30 + float64(counts.high)*15 +
		float64(counts.medium+counts.low)*5
	if len(conflicts) > 10 {
		downtime *= 1.5
	}

	score := 1.0 - 0.1*float64(len(critical)) - 0.2*float64(counts.critical) - 0.1*float64(counts.high)
	score = clamp01(score)

	return &models.BusinessImpactAnalysis{
		AffectedServices:         sortedKeys(affected),
		CriticalServices:         sortedKeys(critical),
		RevenueRisk:              c.categoryRisk(CategoryRevenue, conflicts),
		CustomerRisk:             customerRisk(counts, len(conflicts)),
		ComplianceRisk:           c.categoryRisk(CategoryCompliance, conflicts),
		EstimatedDowntimeMinutes: downtime,
		RollbackComplexity:       rollbackComplexity(counts, len(conflicts)),
		BusinessContinuityScore:  score,
	}
}

// categoryRisk grades a tagged category by how many conflicts touch it and
// how severe they are.
func (c *Classifier) categoryRisk(category string, conflicts []*models.Conflict) models.RiskLevel {
	matched := 0
	severe := false
	for _, conflict := range conflicts {
		if !c.matcher.Matches(category, conflict) {
			continue
		}
		matched++
		if conflict.Severity == models.SeverityHigh || conflict.Severity == models.SeverityCritical {
			severe = true
		}
	}

	switch {
	case severe || matched > 3:
		return models.RiskHigh
	case matched > 0:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// customerRisk grades user-facing exposure from raw severities.
func customerRisk(counts severityCounts, total int) models.RiskLevel {
	switch {
	case counts.critical > 0 || counts.high > 2:
		return models.RiskHigh
	case counts.high > 0 || total > 10:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func rollbackComplexity(counts severityCounts, total int) models.RollbackComplexity {
	switch {
	case counts.critical > 0 || total > 20:
		return models.RollbackComplex
	case counts.high > 0 || total > 5:
		return models.RollbackModerate
	default:
		return models.RollbackSimple
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
