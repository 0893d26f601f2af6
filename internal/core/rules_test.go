package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	memory "escrowcore/internal/infra/persistence/memory"
	"escrowcore/pkg/domain"
)

type fakeView struct {
	projects []domain.Project
	payouts  []domain.Payout
	registry domain.Registry
}

func (v fakeView) ListProjects() []domain.Project { return v.projects }

func (v fakeView) FindProject(id string) (domain.Project, bool) {
	for _, p := range v.projects {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Project{}, false
}

func (v fakeView) ListDisputes() []domain.Dispute { return nil }
func (v fakeView) ListPayouts() []domain.Payout   { return v.payouts }
func (v fakeView) Registry() domain.Registry      { return v.registry }

func balancedView() fakeView {
	project := domain.Project{
		Base:          domain.Base{ID: "p1"},
		Client:        "client-1",
		Freelancer:    "freelancer-1",
		TotalBudget:   1000,
		EscrowBalance: 400,
		Status:        domain.ProjectStatusActive,
		Milestones: []domain.Milestone{
			{ID: 0, Amount: 600, Status: domain.MilestoneStatusApproved},
			{ID: 1, Amount: 400, Status: domain.MilestoneStatusSubmitted},
		},
	}
	return fakeView{
		projects: []domain.Project{project},
		payouts: []domain.Payout{
			{Base: domain.Base{ID: "pay1"}, ProjectID: "p1", MilestoneID: 0, Gross: 600, Fee: 15, Net: 585},
		},
		registry: domain.Registry{
			TotalProjects:   1,
			ActiveProjects:  1,
			FeeRateBps:      domain.DefaultFeeRateBps,
			PlatformBalance: 15,
		},
	}
}

func violationMessages(res domain.Result) string {
	var msgs []string
	for _, v := range res.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}

func TestFundConservationRuleAcceptsBalancedState(t *testing.T) {
	res, err := NewFundConservationRule().Evaluate(context.Background(), balancedView(), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %s", violationMessages(res))
	}
}

func TestFundConservationRuleFlagsDrift(t *testing.T) {
	t.Run("escrow mismatch", func(t *testing.T) {
		view := balancedView()
		view.projects[0].EscrowBalance = 500
		res, err := NewFundConservationRule().Evaluate(context.Background(), view, nil)
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected escrow violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("payout leak", func(t *testing.T) {
		view := balancedView()
		view.payouts[0].Net = 584
		res, err := NewFundConservationRule().Evaluate(context.Background(), view, nil)
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected payout violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("platform pool mismatch", func(t *testing.T) {
		view := balancedView()
		view.registry.PlatformBalance = 20
		res, err := NewFundConservationRule().Evaluate(context.Background(), view, nil)
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected platform balance violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("negative milestone amount", func(t *testing.T) {
		view := balancedView()
		view.projects[0].Milestones[1].Amount = -400
		res, err := NewFundConservationRule().Evaluate(context.Background(), view, nil)
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected negative amount violation, err=%v res=%+v", err, res)
		}
	})
}

func TestStatusTransitionRule(t *testing.T) {
	rule := NewStatusTransitionRule()
	base := balancedView().projects[0]

	t.Run("legal transition passes", func(t *testing.T) {
		after := base
		after.Status = domain.ProjectStatusDisputed
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: base, After: after},
		})
		if err != nil || len(res.Violations) != 0 {
			t.Fatalf("expected clean result, err=%v violations=%s", err, violationMessages(res))
		}
	})
	t.Run("terminal project frozen", func(t *testing.T) {
		before := base
		before.Status = domain.ProjectStatusCompleted
		after := before
		after.Status = domain.ProjectStatusActive
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: after},
		})
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected terminal violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("invalid enum value", func(t *testing.T) {
		after := base
		after.Status = domain.ProjectStatus("archived")
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionCreate, After: after},
		})
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected enum violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("milestone amount immutable", func(t *testing.T) {
		after := base
		after.Milestones = append([]domain.Milestone(nil), base.Milestones...)
		after.Milestones[1].Amount = 999
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: base, After: after},
		})
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected amount violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("milestone sequence fixed length", func(t *testing.T) {
		after := base
		after.Milestones = append([]domain.Milestone(nil), base.Milestones...)
		after.Milestones = append(after.Milestones, domain.Milestone{ID: 2, Amount: 0, Status: domain.MilestoneStatusPending})
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: base, After: after},
		})
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected length violation, err=%v res=%+v", err, res)
		}
	})
	t.Run("approved milestone frozen", func(t *testing.T) {
		after := base
		after.Milestones = append([]domain.Milestone(nil), base.Milestones...)
		after.Milestones[0].Status = domain.MilestoneStatusSubmitted
		res, err := rule.Evaluate(context.Background(), fakeView{}, []domain.Change{
			{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: base, After: after},
		})
		if err != nil || len(res.Violations) == 0 {
			t.Fatalf("expected milestone terminal violation, err=%v res=%+v", err, res)
		}
	})
}

func TestRegistryCountersRule(t *testing.T) {
	rule := NewRegistryCountersRule()

	res, err := rule.Evaluate(context.Background(), balancedView(), nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected matching counters, err=%v violations=%s", err, violationMessages(res))
	}

	view := balancedView()
	view.registry.ActiveProjects = 3
	view.registry.DisputedProjects = 1
	res, err = rule.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected 2 drift violations, got %s", violationMessages(res))
	}
}

func TestDriftedCounterBlocksCommit(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.UpdateRegistry(func(r *domain.Registry) error {
			r.ActiveProjects++
			return nil
		})
		return txErr
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if store.RegistryStats().ActiveProjects != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}
