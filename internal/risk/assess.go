package risk

import (
	"fmt"

	"github.com/kilupskalvis/branchd/internal/models"
)

// AssessMergeRisks computes five independent risk categories and aggregates
// them into an overall level with operator guidance.
func (c *Classifier) AssessMergeRisks(conflicts []*models.Conflict, impact *models.BusinessImpactAnalysis) *models.MergeRiskAssessment {
	counts := countSeverities(conflicts)

	assessment := &models.MergeRiskAssessment{
		DataIntegrityRisk:      dataIntegrityRisk(counts),
		PerformanceRisk:        performanceRisk(len(conflicts)),
		BusinessContinuityRisk: continuityRisk(impact.BusinessContinuityScore),
		SecurityRisk:           c.securityRisk(conflicts),
		ComplianceRisk:         impact.ComplianceRisk,
	}
	assessment.OverallRiskLevel = overallRisk(assessment)
	assessment.MitigationSteps = mitigationSteps(assessment, impact)
	assessment.RecommendedMergeWindow = mergeWindow(assessment.OverallRiskLevel, len(impact.CriticalServices) > 0)

	assessment.RequiresStakeholderApproval = assessment.OverallRiskLevel == models.RiskHigh ||
		assessment.OverallRiskLevel == models.RiskCritical ||
		len(impact.CriticalServices) > 0
	assessment.Stakeholders = stakeholders(assessment, impact)

	return assessment
}

func dataIntegrityRisk(counts severityCounts) models.RiskLevel {
	switch {
	case counts.critical > 2:
		return models.RiskCritical
	case counts.critical > 0:
		return models.RiskHigh
	case counts.high > 0:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func performanceRisk(total int) models.RiskLevel {
	switch {
	case total > 100:
		return models.RiskCritical
	case total > 50:
		return models.RiskHigh
	case total > 20:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// continuityRisk buckets the business continuity score directly.
func continuityRisk(score float64) models.RiskLevel {
	switch {
	case score < 0.5:
		return models.RiskCritical
	case score < 0.7:
		return models.RiskHigh
	case score < 0.9:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// securityRisk flags conflicts whose field name matches the security
// keyword rules.
func (c *Classifier) securityRisk(conflicts []*models.Conflict) models.RiskLevel {
	matched := 0
	severe := false
	for _, conflict := range conflicts {
		if !c.matcher.Matches(CategorySecurity, conflict) {
			continue
		}
		matched++
		if conflict.Severity == models.SeverityCritical {
			severe = true
		}
	}

	switch {
	case severe:
		return models.RiskCritical
	case matched > 0:
		return models.RiskHigh
	default:
		return models.RiskLow
	}
}

// overallRisk aggregates: critical if any category is critical, high if at
// least two are high, medium if any is high, else low.
func overallRisk(a *models.MergeRiskAssessment) models.RiskLevel {
	categories := []models.RiskLevel{
		a.DataIntegrityRisk,
		a.PerformanceRisk,
		a.BusinessContinuityRisk,
		a.SecurityRisk,
		a.ComplianceRisk,
	}

	highs := 0
	for _, level := range categories {
		if level == models.RiskCritical {
			return models.RiskCritical
		}
		if level == models.RiskHigh {
			highs++
		}
	}

	switch {
	case highs >= 2:
		return models.RiskHigh
	case highs == 1:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// mitigationSteps produces an ordered checklist keyed off the category levels.
func mitigationSteps(a *models.MergeRiskAssessment, impact *models.BusinessImpactAnalysis) []string {
	var steps []string

	if a.DataIntegrityRisk == models.RiskHigh || a.DataIntegrityRisk == models.RiskCritical {
		steps = append(steps, "snapshot all affected indexes before merging")
	}
	if a.SecurityRisk == models.RiskHigh || a.SecurityRisk == models.RiskCritical {
		steps = append(steps, "security review of authentication and access fields")
	}
	if a.ComplianceRisk == models.RiskHigh || a.ComplianceRisk == models.RiskCritical {
		steps = append(steps, "compliance signoff on sensitive data changes")
	}
	if a.PerformanceRisk == models.RiskHigh || a.PerformanceRisk == models.RiskCritical {
		steps = append(steps, "stage the merge in batches to limit reindex load")
	}
	if len(impact.CriticalServices) > 0 {
		steps = append(steps, fmt.Sprintf("notify owners of %d critical service(s) before the switch", len(impact.CriticalServices)))
	}
	if impact.RollbackComplexity == models.RollbackComplex {
		steps = append(steps, "prepare a tested rollback plan before proceeding")
	}
	steps = append(steps, "verify branch validation results after merge")

	return steps
}

// mergeWindow recommends when the merge should land.
func mergeWindow(overall models.RiskLevel, hasCriticalServices bool) string {
	switch overall {
	case models.RiskCritical:
		return ""
	case models.RiskHigh:
		return "scheduled maintenance window with stakeholder signoff"
	case models.RiskMedium:
		if hasCriticalServices {
			return "low-traffic window (02:00-04:00 UTC)"
		}
		return "business hours with on-call coverage"
	default:
		if hasCriticalServices {
			return "business hours with on-call coverage"
		}
		return "any time"
	}
}

func stakeholders(a *models.MergeRiskAssessment, impact *models.BusinessImpactAnalysis) []string {
	set := make(map[string]bool)
	if a.OverallRiskLevel == models.RiskHigh || a.OverallRiskLevel == models.RiskCritical {
		set["engineering_lead"] = true
	}
	if a.ComplianceRisk == models.RiskHigh || a.ComplianceRisk == models.RiskCritical {
		set["compliance_officer"] = true
	}
	if a.SecurityRisk == models.RiskHigh || a.SecurityRisk == models.RiskCritical {
		set["security_lead"] = true
	}
	if len(impact.CriticalServices) > 0 {
		set["service_owner"] = true
	}
	return sortedKeys(set)
}
