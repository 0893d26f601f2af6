package core

import (
	"context"
	"fmt"

	"escrowcore/pkg/domain"
)

// NewRegistryCountersRule returns the in-transaction rule verifying that the
// registry counters match the project population in the same snapshot. The
// registry trusts project operations to keep increments paired with status
// transitions; this rule turns silent counter drift into a blocked commit.
func NewRegistryCountersRule() domain.Rule {
	return registryCountersRule{}
}

type registryCountersRule struct{}

func (registryCountersRule) Name() string { return "registry_counters" }

func (registryCountersRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	var total, active, completed, disputed int
	for _, project := range view.ListProjects() {
		total++
		switch project.Status {
		case domain.ProjectStatusActive:
			active++
		case domain.ProjectStatusCompleted:
			completed++
		case domain.ProjectStatusDisputed:
			disputed++
		}
	}

	registry := view.Registry()
	res := domain.Result{}
	check := func(name string, counter, actual int) {
		if counter != actual {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "registry_counters",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("registry %s counter %d != %d projects in state", name, counter, actual),
				Entity:   domain.EntityRegistry,
			})
		}
	}
	check("total", registry.TotalProjects, total)
	check("active", registry.ActiveProjects, active)
	check("completed", registry.CompletedProjects, completed)
	check("disputed", registry.DisputedProjects, disputed)
	return res, nil
}
