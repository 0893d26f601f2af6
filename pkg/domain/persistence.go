package domain

import "context"

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Either every mutation in the scope commits or none
// does; no caller ever observes a partially-mutated project, milestone, or
// registry.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	FindProject(id string) (Project, bool)
	CreateDispute(Dispute) (Dispute, error)
	AppendPayout(Payout) (Payout, error)
	UpdateRegistry(mutator func(*Registry) error) (Registry, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetDispute(id string) (Dispute, bool)
	ListDisputes() []Dispute
	ListPayouts() []Payout
	RegistryStats() Registry
}
