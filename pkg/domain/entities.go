// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by escrowcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record together with its milestones.
	EntityProject EntityType = "project"
	// EntityDispute identifies a dispute record.
	EntityDispute EntityType = "dispute"
	// EntityPayout identifies an immutable payout record.
	EntityPayout EntityType = "payout"
	// EntityRegistry identifies the singleton registry aggregate.
	EntityRegistry EntityType = "registry"
)

// AccountID identifies a client or freelancer account. The empty string is
// the unset sentinel.
type AccountID string

// ProjectStatus represents the canonical project lifecycle states.
type ProjectStatus string

// Canonical project statuses. Cancelled is declared for completeness; no
// engine operation currently reaches it.
const (
	// ProjectStatusOpen indicates a funded project awaiting a freelancer.
	ProjectStatusOpen ProjectStatus = "open"
	// ProjectStatusActive indicates an accepted project with work in flight.
	ProjectStatusActive ProjectStatus = "active"
	// ProjectStatusCompleted indicates every milestone has been approved and paid.
	ProjectStatusCompleted ProjectStatus = "completed"
	// ProjectStatusCancelled is reserved for a cancellation flow handled
	// outside this engine.
	ProjectStatusCancelled ProjectStatus = "cancelled"
	// ProjectStatusDisputed indicates a party contested the project; further
	// milestone activity is frozen pending external arbitration.
	ProjectStatusDisputed ProjectStatus = "disputed"
)

// MilestoneStatus represents the canonical milestone workflow states.
type MilestoneStatus string

// Canonical milestone statuses used for approval and payout validation.
const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusSubmitted  MilestoneStatus = "submitted"
	MilestoneStatusApproved   MilestoneStatus = "approved"
	MilestoneStatusDisputed   MilestoneStatus = "disputed"
)

// DefaultFeeRateBps is the platform commission applied per milestone payout
// unless the registry is configured otherwise (250 bps = 2.5%).
const DefaultFeeRateBps = 250

// MaxRating is the upper bound of the reputation rating scale. Every approved
// milestone contributes this fixed maximal rating; graded ratings come only
// through the separate review subsystem.
const MaxRating = 500

// Base contains common fields for identified domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Milestone is a discrete, independently payable unit of project work. Its ID
// is the immutable index within the owning project's milestone sequence, and
// its amount is fixed at creation.
type Milestone struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Amount      int64           `json:"amount"`
	Status      MilestoneStatus `json:"status"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
}

// Project custodies client funds and drives the top-level escrow lifecycle.
// The milestone sequence is append-only at creation and fixed length
// thereafter; EscrowBalance starts equal to TotalBudget and decreases only by
// milestone payouts.
type Project struct {
	Base
	Client        AccountID     `json:"client"`
	Freelancer    AccountID     `json:"freelancer,omitempty"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	TotalBudget   int64         `json:"total_budget"`
	EscrowBalance int64         `json:"escrow_balance"`
	Milestones    []Milestone   `json:"milestones"`
	Status        ProjectStatus `json:"status"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	DisputeReason string        `json:"dispute_reason,omitempty"`
}

// Milestone returns the milestone with the given sequence index.
func (p Project) Milestone(id int) (Milestone, bool) {
	if id < 0 || id >= len(p.Milestones) {
		return Milestone{}, false
	}
	return p.Milestones[id], true
}

// AllMilestonesApproved reports whether every milestone has been approved.
func (p Project) AllMilestonesApproved() bool {
	for _, m := range p.Milestones {
		if m.Status != MilestoneStatusApproved {
			return false
		}
	}
	return true
}

// IsParticipant reports whether the account is the project's client or
// freelancer.
func (p Project) IsParticipant(account AccountID) bool {
	if account == "" {
		return false
	}
	return account == p.Client || account == p.Freelancer
}

// Dispute records a contestation raised against an active project. The
// arbitrator, resolution, and Resolved fields exist to support an external
// arbitration flow; no engine operation sets them.
type Dispute struct {
	Base
	ProjectID   string     `json:"project_id"`
	Initiator   AccountID  `json:"initiator"`
	Reason      string     `json:"reason"`
	Evidence    string     `json:"evidence,omitempty"`
	EvidenceKey string     `json:"evidence_key,omitempty"`
	Arbitrator  AccountID  `json:"arbitrator,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Resolved    bool       `json:"resolved"`
}

// Payout is the immutable record of a single milestone settlement: the gross
// milestone amount split into the platform fee and the net transfer to the
// freelancer. Gross == Fee + Net always.
type Payout struct {
	Base
	ProjectID   string    `json:"project_id"`
	MilestoneID int       `json:"milestone_id"`
	Payee       AccountID `json:"payee"`
	Gross       int64     `json:"gross"`
	Fee         int64     `json:"fee"`
	Net         int64     `json:"net"`
}

// Registry is the process-wide aggregate: project counters, the platform fee
// configuration, and the accumulated fee pool. It is created once per store
// and mutated only by project operations.
type Registry struct {
	TotalProjects     int   `json:"total_projects"`
	ActiveProjects    int   `json:"active_projects"`
	CompletedProjects int   `json:"completed_projects"`
	DisputedProjects  int   `json:"disputed_projects"`
	FeeRateBps        int64 `json:"fee_rate_bps"`
	PlatformBalance   int64 `json:"platform_balance"`
}

// SplitFee computes the platform fee and net payment for a milestone amount
// at the given basis-point rate. The fee truncates toward zero, so
// fee + net == amount exactly for any non-negative input.
func SplitFee(amount, rateBps int64) (fee, net int64) {
	fee = amount * rateBps / 10000
	net = amount - fee
	return fee, net
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured for rule evaluation and audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)
