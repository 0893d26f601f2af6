package core

import "escrowcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	AccountID          = domain.AccountID
	ProjectStatus      = domain.ProjectStatus
	MilestoneStatus    = domain.MilestoneStatus
	Base               = domain.Base
	Project            = domain.Project
	Milestone          = domain.Milestone
	Dispute            = domain.Dispute
	Payout             = domain.Payout
	Registry           = domain.Registry
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProject  = domain.EntityProject
	EntityDispute  = domain.EntityDispute
	EntityPayout   = domain.EntityPayout
	EntityRegistry = domain.EntityRegistry
)

const (
	ProjectStatusOpen      = domain.ProjectStatusOpen
	ProjectStatusActive    = domain.ProjectStatusActive
	ProjectStatusCompleted = domain.ProjectStatusCompleted
	ProjectStatusCancelled = domain.ProjectStatusCancelled
	ProjectStatusDisputed  = domain.ProjectStatusDisputed
)

const (
	MilestoneStatusPending    = domain.MilestoneStatusPending
	MilestoneStatusInProgress = domain.MilestoneStatusInProgress
	MilestoneStatusSubmitted  = domain.MilestoneStatusSubmitted
	MilestoneStatusApproved   = domain.MilestoneStatusApproved
	MilestoneStatusDisputed   = domain.MilestoneStatusDisputed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
