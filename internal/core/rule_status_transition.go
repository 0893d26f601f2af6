package core

import (
	"context"
	"fmt"

	"escrowcore/pkg/domain"
)

// NewStatusTransitionRule returns the in-transaction rule blocking illegal
// state machine moves: no transition leaves a terminal state, and every
// status value must be a declared member of its enum. Cancelled and Disputed
// projects are terminal within this engine; dispute resolution and
// cancellation are handled by external flows.
func NewStatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

var (
	validProjectStatuses = toSet(
		string(domain.ProjectStatusOpen),
		string(domain.ProjectStatusActive),
		string(domain.ProjectStatusCompleted),
		string(domain.ProjectStatusCancelled),
		string(domain.ProjectStatusDisputed),
	)
	terminalProjectStatuses = toSet(
		string(domain.ProjectStatusCompleted),
		string(domain.ProjectStatusCancelled),
		string(domain.ProjectStatusDisputed),
	)
	validMilestoneStatuses = toSet(
		string(domain.MilestoneStatusPending),
		string(domain.MilestoneStatusInProgress),
		string(domain.MilestoneStatusSubmitted),
		string(domain.MilestoneStatusApproved),
		string(domain.MilestoneStatusDisputed),
	)
	terminalMilestoneStatuses = toSet(
		string(domain.MilestoneStatusApproved),
		string(domain.MilestoneStatusDisputed),
	)
)

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProject {
			continue
		}

		after, ok := change.After.(domain.Project)
		if !ok {
			continue
		}
		if _, valid := validProjectStatuses[string(after.Status)]; !valid {
			res.Violations = append(res.Violations, statusViolation(
				fmt.Sprintf("project %s is set to invalid status %s", after.ID, after.Status), after.ID))
		}
		for _, m := range after.Milestones {
			if _, valid := validMilestoneStatuses[string(m.Status)]; !valid {
				res.Violations = append(res.Violations, statusViolation(
					fmt.Sprintf("project %s milestone %d is set to invalid status %s", after.ID, m.ID, m.Status), after.ID))
			}
		}

		before, ok := change.Before.(domain.Project)
		if !ok {
			continue
		}
		if _, terminal := terminalProjectStatuses[string(before.Status)]; terminal && after.Status != before.Status {
			res.Violations = append(res.Violations, statusViolation(
				fmt.Sprintf("cannot move project %s from terminal status %s to %s", before.ID, before.Status, after.Status), before.ID))
		}
		if len(after.Milestones) != len(before.Milestones) {
			res.Violations = append(res.Violations, statusViolation(
				fmt.Sprintf("project %s milestone sequence length changed from %d to %d",
					before.ID, len(before.Milestones), len(after.Milestones)), before.ID))
			continue
		}
		for i, beforeMilestone := range before.Milestones {
			afterMilestone := after.Milestones[i]
			if afterMilestone.Amount != beforeMilestone.Amount {
				res.Violations = append(res.Violations, statusViolation(
					fmt.Sprintf("project %s milestone %d amount changed from %d to %d",
						before.ID, i, beforeMilestone.Amount, afterMilestone.Amount), before.ID))
			}
			if _, terminal := terminalMilestoneStatuses[string(beforeMilestone.Status)]; terminal &&
				afterMilestone.Status != beforeMilestone.Status {
				res.Violations = append(res.Violations, statusViolation(
					fmt.Sprintf("cannot move project %s milestone %d from terminal status %s to %s",
						before.ID, i, beforeMilestone.Status, afterMilestone.Status), before.ID))
			}
		}
	}
	return res, nil
}

func statusViolation(message, projectID string) domain.Violation {
	return domain.Violation{
		Rule:     "status_transition",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityProject,
		EntityID: projectID,
	}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
