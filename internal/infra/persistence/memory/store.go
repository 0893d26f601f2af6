// Package memory implements the transactional in-memory store backing the
// escrow engine. Every operation runs against a cloned copy of the state and
// commits atomically, so callers never observe partial mutations.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrowcore/pkg/domain"
)

type memoryState struct {
	projects map[string]domain.Project
	disputes map[string]domain.Dispute
	payouts  []domain.Payout
	registry domain.Registry
}

func newMemoryState() memoryState {
	return memoryState{
		projects: make(map[string]domain.Project),
		disputes: make(map[string]domain.Dispute),
		registry: domain.Registry{FeeRateBps: domain.DefaultFeeRateBps},
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		projects: make(map[string]domain.Project, len(s.projects)),
		disputes: make(map[string]domain.Dispute, len(s.disputes)),
		payouts:  append([]domain.Payout(nil), s.payouts...),
		registry: s.registry,
	}
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.disputes {
		cloned.disputes[k] = v
	}
	return cloned
}

func cloneProject(p domain.Project) domain.Project {
	cp := p
	cp.Milestones = make([]domain.Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		cp.Milestones[i] = cloneMilestone(m)
	}
	cp.StartedAt = cloneTime(p.StartedAt)
	cp.CompletedAt = cloneTime(p.CompletedAt)
	return cp
}

func cloneMilestone(m domain.Milestone) domain.Milestone {
	cp := m
	cp.Deadline = cloneTime(m.Deadline)
	cp.SubmittedAt = cloneTime(m.SubmittedAt)
	cp.ApprovedAt = cloneTime(m.ApprovedAt)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Store provides the in-memory transactional store for the escrow domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// transaction carries a mutation set applied to a cloned state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of transactional state.
type transactionView struct {
	state *memoryState
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The registered rules evaluate against the post-state; blocking
// violations discard the entire mutation set.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return transactionView{state: &tx.state}
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p domain.Project) (domain.Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return domain.Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(domain.Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project using the provided mutator function.
func (tx *transaction) UpdateProject(id string, mutator func(*domain.Project) error) (domain.Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return domain.Project{}, domain.Errf(domain.CodeProjectNotFound, "project %q not found", id)
	}
	before := cloneProject(current)
	working := cloneProject(current)
	if err := mutator(&working); err != nil {
		return domain.Project{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(working)
	tx.recordChange(domain.Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(working)})
	return cloneProject(working), nil
}

// FindProject retrieves a project by id from the transactional state.
func (tx *transaction) FindProject(id string) (domain.Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

// CreateDispute stores a new dispute record. Disputes are write-once within
// this engine; no update path exists.
func (tx *transaction) CreateDispute(d domain.Dispute) (domain.Dispute, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.disputes[d.ID]; exists {
		return domain.Dispute{}, fmt.Errorf("dispute %q already exists", d.ID)
	}
	if _, ok := tx.state.projects[d.ProjectID]; !ok {
		return domain.Dispute{}, domain.Errf(domain.CodeProjectNotFound, "project %q not found", d.ProjectID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.disputes[d.ID] = d
	tx.recordChange(domain.Change{Entity: domain.EntityDispute, Action: domain.ActionCreate, After: d})
	return d, nil
}

// AppendPayout records an immutable settlement entry.
func (tx *transaction) AppendPayout(p domain.Payout) (domain.Payout, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, ok := tx.state.projects[p.ProjectID]; !ok {
		return domain.Payout{}, domain.Errf(domain.CodeProjectNotFound, "project %q not found", p.ProjectID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.payouts = append(tx.state.payouts, p)
	tx.recordChange(domain.Change{Entity: domain.EntityPayout, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateRegistry mutates the singleton registry aggregate.
func (tx *transaction) UpdateRegistry(mutator func(*domain.Registry) error) (domain.Registry, error) {
	before := tx.state.registry
	working := tx.state.registry
	if err := mutator(&working); err != nil {
		return domain.Registry{}, err
	}
	tx.state.registry = working
	tx.recordChange(domain.Change{Entity: domain.EntityRegistry, Action: domain.ActionUpdate, Before: before, After: working})
	return working, nil
}

// ListProjects returns all projects within the snapshot.
func (v transactionView) ListProjects() []domain.Project {
	out := make([]domain.Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindProject retrieves a project by id from the snapshot.
func (v transactionView) FindProject(id string) (domain.Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

// ListDisputes returns all disputes within the snapshot.
func (v transactionView) ListDisputes() []domain.Dispute {
	out := make([]domain.Dispute, 0, len(v.state.disputes))
	for _, d := range v.state.disputes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPayouts returns all payout records within the snapshot in append order.
func (v transactionView) ListPayouts() []domain.Payout {
	return append([]domain.Payout(nil), v.state.payouts...)
}

// Registry returns the registry aggregate within the snapshot.
func (v transactionView) Registry() domain.Registry {
	return v.state.registry
}

// Read helpers ---------------------------------------------------------------

// GetProject retrieves a project by id from committed state.
func (s *Store) GetProject(id string) (domain.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects from committed state.
func (s *Store) ListProjects() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDispute retrieves a dispute by id from committed state.
func (s *Store) GetDispute(id string) (domain.Dispute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.disputes[id]
	return d, ok
}

// ListDisputes returns all disputes from committed state.
func (s *Store) ListDisputes() []domain.Dispute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Dispute, 0, len(s.state.disputes))
	for _, d := range s.state.disputes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPayouts returns all payout records from committed state in append order.
func (s *Store) ListPayouts() []domain.Payout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Payout(nil), s.state.payouts...)
}

// RegistryStats returns the registry aggregate from committed state.
func (s *Store) RegistryStats() domain.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.registry
}

// Snapshot captures a point-in-time clone of the store state for external
// persistence.
type Snapshot struct {
	Projects []domain.Project `json:"projects"`
	Disputes []domain.Dispute `json:"disputes"`
	Payouts  []domain.Payout  `json:"payouts"`
	Registry domain.Registry  `json:"registry"`
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Projects: make([]domain.Project, 0, len(s.state.projects)),
		Disputes: make([]domain.Dispute, 0, len(s.state.disputes)),
		Payouts:  append([]domain.Payout(nil), s.state.payouts...),
		Registry: s.state.registry,
	}
	for _, p := range s.state.projects {
		snap.Projects = append(snap.Projects, cloneProject(p))
	}
	for _, d := range s.state.disputes {
		snap.Disputes = append(snap.Disputes, d)
	}
	sort.Slice(snap.Projects, func(i, j int) bool { return snap.Projects[i].ID < snap.Projects[j].ID })
	sort.Slice(snap.Disputes, func(i, j int) bool { return snap.Disputes[i].ID < snap.Disputes[j].ID })
	return snap
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for _, p := range snapshot.Projects {
		state.projects[p.ID] = cloneProject(p)
	}
	for _, d := range snapshot.Disputes {
		state.disputes[d.ID] = d
	}
	state.payouts = append([]domain.Payout(nil), snapshot.Payouts...)
	if snapshot.Registry.FeeRateBps > 0 {
		state.registry = snapshot.Registry
	}
	s.state = state
}
