package core

import (
	"context"
	"fmt"

	"escrowcore/pkg/domain"
)

// NewFundConservationRule returns the in-transaction rule enforcing exact
// fund conservation: escrow balances equal the deposited budget minus
// approved milestone amounts, every payout splits its gross amount without
// loss, and the platform pool equals the sum of collected fees.
func NewFundConservationRule() domain.Rule {
	return fundConservationRule{}
}

type fundConservationRule struct{}

func (fundConservationRule) Name() string { return "fund_conservation" }

func (fundConservationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, project := range view.ListProjects() {
		var approved int64
		for _, m := range project.Milestones {
			if m.Amount < 0 {
				res.Violations = append(res.Violations, fundViolation(
					fmt.Sprintf("project %s milestone %d has negative amount %d", project.ID, m.ID, m.Amount),
					domain.EntityProject, project.ID))
			}
			if m.Status == domain.MilestoneStatusApproved {
				approved += m.Amount
			}
		}
		if project.EscrowBalance < 0 {
			res.Violations = append(res.Violations, fundViolation(
				fmt.Sprintf("project %s escrow balance is negative: %d", project.ID, project.EscrowBalance),
				domain.EntityProject, project.ID))
		}
		if project.EscrowBalance != project.TotalBudget-approved {
			res.Violations = append(res.Violations, fundViolation(
				fmt.Sprintf("project %s escrow balance %d != budget %d - approved %d",
					project.ID, project.EscrowBalance, project.TotalBudget, approved),
				domain.EntityProject, project.ID))
		}
	}

	var collectedFees int64
	for _, payout := range view.ListPayouts() {
		if payout.Gross < 0 || payout.Fee < 0 || payout.Net < 0 {
			res.Violations = append(res.Violations, fundViolation(
				fmt.Sprintf("payout %s carries negative amounts (gross=%d fee=%d net=%d)",
					payout.ID, payout.Gross, payout.Fee, payout.Net),
				domain.EntityPayout, payout.ID))
		}
		if payout.Fee+payout.Net != payout.Gross {
			res.Violations = append(res.Violations, fundViolation(
				fmt.Sprintf("payout %s leaks currency: fee %d + net %d != gross %d",
					payout.ID, payout.Fee, payout.Net, payout.Gross),
				domain.EntityPayout, payout.ID))
		}
		collectedFees += payout.Fee
	}

	registry := view.Registry()
	if registry.PlatformBalance < 0 {
		res.Violations = append(res.Violations, fundViolation(
			fmt.Sprintf("platform balance is negative: %d", registry.PlatformBalance),
			domain.EntityRegistry, ""))
	}
	if registry.PlatformBalance != collectedFees {
		res.Violations = append(res.Violations, fundViolation(
			fmt.Sprintf("platform balance %d != collected fees %d", registry.PlatformBalance, collectedFees),
			domain.EntityRegistry, ""))
	}

	return res, nil
}

func fundViolation(message string, entity domain.EntityType, id string) domain.Violation {
	return domain.Violation{
		Rule:     "fund_conservation",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
