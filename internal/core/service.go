package core

import (
	"context"
	"fmt"
	"time"

	"escrowcore/internal/cache"
	"escrowcore/internal/events"
	"escrowcore/internal/infra/evidence"
	memory "escrowcore/internal/infra/persistence/memory"
	"escrowcore/internal/reputation"
	"escrowcore/pkg/domain"
)

// Service exposes the escrow engine operations. Every mutation runs inside a
// single store transaction; collaborators (reputation, events, stats cache,
// evidence) are optional and attached through functional options.
type Service struct {
	store      domain.PersistentStore
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	logger     Logger
	clock      Clock
	reputation reputation.Recorder
	events     events.Publisher
	statsCache cache.StatsCache
	evidence   evidence.Store
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithMetricsRecorder attaches a metrics sink observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer attaches a tracer spanning every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder attaches an audit sink receiving one entry per operation.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithLogger replaces the default no-op logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides wall-clock access, for deterministic tests.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithReputation attaches the reputation collaborator invoked on every
// milestone approval.
func WithReputation(recorder reputation.Recorder) ServiceOption {
	return func(s *Service) { s.reputation = recorder }
}

// WithEvents attaches a lifecycle event publisher. Events are emitted after
// commit only; publish failures are logged, never rolled back.
func WithEvents(publisher events.Publisher) ServiceOption {
	return func(s *Service) { s.events = publisher }
}

// WithStatsCache attaches a read-side registry statistics cache.
func WithStatsCache(statsCache cache.StatsCache) ServiceOption {
	return func(s *Service) { s.statsCache = statsCache }
}

// WithEvidenceStore attaches the blob store dispute evidence is archived to.
func WithEvidenceStore(store evidence.Store) ServiceOption {
	return func(s *Service) { s.evidence = store }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		logger:  noopLogger{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine (default engine when nil).
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// MilestoneDraft describes one milestone at project creation.
type MilestoneDraft struct {
	Title       string
	Description string
	Amount      int64
	Deadline    *time.Time
}

// CreateProjectInput carries the create_project arguments.
type CreateProjectInput struct {
	Client      domain.AccountID
	Title       string
	Description string
	TotalBudget int64
	Milestones  []MilestoneDraft
}

// CreateProject deposits the client's budget into escrow and publishes a new
// open project. Milestone amounts must sum to the total budget.
func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (domain.Project, domain.Result, error) {
	var (
		created domain.Project
		res     domain.Result
	)
	err := s.observe(ctx, "create_project", input.Client, func(ctx context.Context) (string, error) {
		if err := validateCreateProject(input); err != nil {
			return "", err
		}
		project := domain.Project{
			Client:        input.Client,
			Title:         input.Title,
			Description:   input.Description,
			TotalBudget:   input.TotalBudget,
			EscrowBalance: input.TotalBudget,
			Status:        domain.ProjectStatusOpen,
			Milestones:    make([]domain.Milestone, len(input.Milestones)),
		}
		for i, draft := range input.Milestones {
			project.Milestones[i] = domain.Milestone{
				ID:          i,
				Title:       draft.Title,
				Description: draft.Description,
				Amount:      draft.Amount,
				Status:      domain.MilestoneStatusPending,
				Deadline:    draft.Deadline,
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateProject(project)
			if txErr != nil {
				return txErr
			}
			_, txErr = tx.UpdateRegistry(func(r *domain.Registry) error {
				r.TotalProjects++
				return nil
			})
			return txErr
		})
		return created.ID, err
	})
	if err != nil {
		return domain.Project{}, res, err
	}
	s.invalidateStats(ctx)
	s.publish(ctx, events.Event{
		Type:      events.TypeProjectCreated,
		ProjectID: created.ID,
		Actor:     input.Client,
		Amount:    created.TotalBudget,
	})
	return created, res, nil
}

func validateCreateProject(input CreateProjectInput) error {
	if input.Client == "" {
		return domain.Errf(domain.CodeInvalidInput, "client account required")
	}
	if input.Title == "" {
		return domain.Errf(domain.CodeInvalidInput, "title required")
	}
	if input.TotalBudget < 0 {
		return domain.Errf(domain.CodeInvalidInput, "total budget must be non-negative, got %d", input.TotalBudget)
	}
	var sum int64
	for i, draft := range input.Milestones {
		if draft.Amount < 0 {
			return domain.Errf(domain.CodeInvalidInput, "milestone %d amount must be non-negative, got %d", i, draft.Amount)
		}
		sum += draft.Amount
	}
	if sum != input.TotalBudget {
		return domain.Errf(domain.CodeInvalidInput, "milestone amounts sum to %d, want total budget %d", sum, input.TotalBudget)
	}
	return nil
}

// AcceptProject assigns the caller as freelancer and activates the project.
// A second accept fails on the status guard.
func (s *Service) AcceptProject(ctx context.Context, caller domain.AccountID, projectID string) (domain.Project, domain.Result, error) {
	var (
		updated domain.Project
		res     domain.Result
	)
	err := s.observe(ctx, "accept_project", caller, func(ctx context.Context) (string, error) {
		if caller == "" {
			return projectID, domain.Errf(domain.CodeInvalidInput, "caller account required")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateProject(projectID, func(p *domain.Project) error {
				if p.Status != domain.ProjectStatusOpen {
					return domain.Errf(domain.CodeInvalidStatus, "project %s is %s, want open", p.ID, p.Status)
				}
				now := s.clock.Now()
				p.Freelancer = caller
				p.Status = domain.ProjectStatusActive
				p.StartedAt = &now
				return nil
			})
			if txErr != nil {
				return txErr
			}
			_, txErr = tx.UpdateRegistry(func(r *domain.Registry) error {
				r.ActiveProjects++
				return nil
			})
			return txErr
		})
		return projectID, err
	})
	if err != nil {
		return domain.Project{}, res, err
	}
	s.invalidateStats(ctx)
	s.publish(ctx, events.Event{
		Type:      events.TypeProjectAccepted,
		ProjectID: updated.ID,
		Actor:     caller,
	})
	return updated, res, nil
}

// SubmitMilestone marks a milestone as delivered and awaiting client review.
func (s *Service) SubmitMilestone(ctx context.Context, caller domain.AccountID, projectID string, milestoneID int) (domain.Project, domain.Result, error) {
	var (
		updated domain.Project
		res     domain.Result
	)
	err := s.observe(ctx, "submit_milestone", caller, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateProject(projectID, func(p *domain.Project) error {
				if caller != p.Freelancer {
					return domain.Errf(domain.CodeUnauthorized, "only the freelancer may submit milestones")
				}
				if p.Status != domain.ProjectStatusActive {
					return domain.Errf(domain.CodeProjectNotActive, "project %s is %s", p.ID, p.Status)
				}
				m, txErr := milestoneAt(p, milestoneID)
				if txErr != nil {
					return txErr
				}
				if m.Status != domain.MilestoneStatusPending && m.Status != domain.MilestoneStatusInProgress {
					return domain.Errf(domain.CodeInvalidStatus, "milestone %d is %s, want pending or in_progress", milestoneID, m.Status)
				}
				now := s.clock.Now()
				m.Status = domain.MilestoneStatusSubmitted
				m.SubmittedAt = &now
				return nil
			})
			return txErr
		})
		return projectID, err
	})
	if err != nil {
		return domain.Project{}, res, err
	}
	mid := milestoneID
	s.publish(ctx, events.Event{
		Type:        events.TypeMilestoneSubmitted,
		ProjectID:   updated.ID,
		MilestoneID: &mid,
		Actor:       caller,
	})
	return updated, res, nil
}

// ApproveMilestone settles a submitted milestone: the milestone amount leaves
// escrow, split into the platform fee and the freelancer's net payment, a
// payout record is appended, and the freelancer's reputation is credited.
// When the last milestone is approved the project completes within the same
// transaction.
func (s *Service) ApproveMilestone(ctx context.Context, caller domain.AccountID, projectID string, milestoneID int) (domain.Project, domain.Payout, domain.Result, error) {
	var (
		updated   domain.Project
		payout    domain.Payout
		res       domain.Result
		completed bool
	)
	err := s.observe(ctx, "approve_milestone", caller, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			rate := tx.Snapshot().Registry().FeeRateBps
			var (
				gross int64
				payee domain.AccountID
			)
			project, txErr := tx.UpdateProject(projectID, func(p *domain.Project) error {
				if caller != p.Client {
					return domain.Errf(domain.CodeUnauthorized, "only the client may approve milestones")
				}
				if p.Status != domain.ProjectStatusActive {
					return domain.Errf(domain.CodeProjectNotActive, "project %s is %s", p.ID, p.Status)
				}
				m, mErr := milestoneAt(p, milestoneID)
				if mErr != nil {
					return mErr
				}
				if m.Status != domain.MilestoneStatusSubmitted {
					return domain.Errf(domain.CodeInvalidStatus, "milestone %d is %s, want submitted", milestoneID, m.Status)
				}
				now := s.clock.Now()
				m.Status = domain.MilestoneStatusApproved
				m.ApprovedAt = &now
				p.EscrowBalance -= m.Amount
				gross = m.Amount
				payee = p.Freelancer
				return nil
			})
			if txErr != nil {
				return txErr
			}
			fee, net := domain.SplitFee(gross, rate)
			if _, txErr = tx.UpdateRegistry(func(r *domain.Registry) error {
				r.PlatformBalance += fee
				return nil
			}); txErr != nil {
				return txErr
			}
			payout, txErr = tx.AppendPayout(domain.Payout{
				ProjectID:   projectID,
				MilestoneID: milestoneID,
				Payee:       payee,
				Gross:       gross,
				Fee:         fee,
				Net:         net,
			})
			if txErr != nil {
				return txErr
			}
			if s.reputation != nil {
				if txErr = s.reputation.RecordRating(ctx, payee, domain.MaxRating); txErr != nil {
					return fmt.Errorf("record rating for %s: %w", payee, txErr)
				}
			}
			if project.AllMilestonesApproved() {
				completed = true
				now := s.clock.Now()
				project, txErr = tx.UpdateProject(projectID, func(p *domain.Project) error {
					p.Status = domain.ProjectStatusCompleted
					p.CompletedAt = &now
					return nil
				})
				if txErr != nil {
					return txErr
				}
				if _, txErr = tx.UpdateRegistry(func(r *domain.Registry) error {
					r.ActiveProjects--
					r.CompletedProjects++
					return nil
				}); txErr != nil {
					return txErr
				}
			}
			updated = project
			return nil
		})
		return projectID, err
	})
	if err != nil {
		return domain.Project{}, domain.Payout{}, res, err
	}
	s.invalidateStats(ctx)
	mid := milestoneID
	s.publish(ctx, events.Event{
		Type:        events.TypeMilestoneApproved,
		ProjectID:   updated.ID,
		MilestoneID: &mid,
		Actor:       caller,
		Amount:      payout.Gross,
	})
	if completed {
		s.publish(ctx, events.Event{
			Type:      events.TypeProjectCompleted,
			ProjectID: updated.ID,
			Actor:     caller,
		})
	}
	return updated, payout, res, nil
}

// RaiseDispute freezes an active project and records a write-once dispute.
// Evidence, when provided and an evidence store is attached, is archived as a
// content-addressed blob; archival failure downgrades to inline evidence
// only.
func (s *Service) RaiseDispute(ctx context.Context, caller domain.AccountID, projectID, reason, evidenceText string) (domain.Dispute, domain.Result, error) {
	var (
		dispute domain.Dispute
		res     domain.Result
	)
	err := s.observe(ctx, "raise_dispute", caller, func(ctx context.Context) (string, error) {
		if reason == "" {
			return "", domain.Errf(domain.CodeInvalidInput, "dispute reason required")
		}
		evidenceKey := ""
		if evidenceText != "" && s.evidence != nil {
			key, archiveErr := evidence.Archive(ctx, s.evidence, projectID, []byte(evidenceText), "text/plain")
			if archiveErr != nil {
				s.logger.Warn("evidence archival failed", "project", projectID, "error", archiveErr)
			} else {
				evidenceKey = key
			}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, txErr := tx.UpdateProject(projectID, func(p *domain.Project) error {
				if !p.IsParticipant(caller) {
					return domain.Errf(domain.CodeUnauthorized, "only project participants may raise disputes")
				}
				if p.Status != domain.ProjectStatusActive {
					return domain.Errf(domain.CodeProjectNotActive, "project %s is %s", p.ID, p.Status)
				}
				p.Status = domain.ProjectStatusDisputed
				p.DisputeReason = reason
				return nil
			})
			if txErr != nil {
				return txErr
			}
			if _, txErr = tx.UpdateRegistry(func(r *domain.Registry) error {
				r.ActiveProjects--
				r.DisputedProjects++
				return nil
			}); txErr != nil {
				return txErr
			}
			dispute, txErr = tx.CreateDispute(domain.Dispute{
				ProjectID:   projectID,
				Initiator:   caller,
				Reason:      reason,
				Evidence:    evidenceText,
				EvidenceKey: evidenceKey,
			})
			return txErr
		})
		return dispute.ID, err
	})
	if err != nil {
		return domain.Dispute{}, res, err
	}
	s.invalidateStats(ctx)
	s.publish(ctx, events.Event{
		Type:      events.TypeProjectDisputed,
		ProjectID: projectID,
		Actor:     caller,
	})
	return dispute, res, nil
}

func milestoneAt(p *domain.Project, id int) (*domain.Milestone, error) {
	if id < 0 || id >= len(p.Milestones) {
		return nil, domain.Errf(domain.CodeMilestoneNotFound, "project %s has no milestone %d", p.ID, id)
	}
	return &p.Milestones[id], nil
}

// GetProject returns the committed project with the given id.
func (s *Service) GetProject(id string) (domain.Project, bool) {
	return s.store.GetProject(id)
}

// ListProjects returns all committed projects ordered by id.
func (s *Service) ListProjects() []domain.Project {
	return s.store.ListProjects()
}

// GetDispute returns the committed dispute with the given id.
func (s *Service) GetDispute(id string) (domain.Dispute, bool) {
	return s.store.GetDispute(id)
}

// ListDisputes returns all committed disputes ordered by id.
func (s *Service) ListDisputes() []domain.Dispute {
	return s.store.ListDisputes()
}

// ListPayouts returns the payout ledger in append order.
func (s *Service) ListPayouts() []domain.Payout {
	return s.store.ListPayouts()
}

// RegistryStats returns the registry aggregate, served from the stats cache
// when one is attached. Cache failures fall back to the store.
func (s *Service) RegistryStats(ctx context.Context) domain.Registry {
	if s.statsCache != nil {
		if cached, ok, err := s.statsCache.Get(ctx); err == nil && ok {
			return cached
		} else if err != nil {
			s.logger.Warn("stats cache read failed", "error", err)
		}
	}
	stats := s.store.RegistryStats()
	if s.statsCache != nil {
		if err := s.statsCache.Set(ctx, stats); err != nil {
			s.logger.Warn("stats cache write failed", "error", err)
		}
	}
	return stats
}

// Close releases attached collaborators that hold connections.
func (s *Service) Close() error {
	if s.events == nil {
		return nil
	}
	return s.events.Close()
}

func (s *Service) observe(ctx context.Context, operation string, actor domain.AccountID, fn func(ctx context.Context) (string, error)) error {
	start := time.Now()
	opCtx, span := s.tracer.Start(ctx, operation)
	entityID, err := fn(opCtx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Warn("operation failed", "operation", operation, "entity_id", entityID, "error", err)
		s.recordAuditError(ctx, operation, entityID, actor, err, duration)
		return err
	}
	s.recordAuditSuccess(ctx, operation, entityID, actor, duration)
	return nil
}

var auditOperationMetadata = map[string]struct {
	entity domain.EntityType
	action domain.Action
}{
	"create_project":    {entity: domain.EntityProject, action: domain.ActionCreate},
	"accept_project":    {entity: domain.EntityProject, action: domain.ActionUpdate},
	"submit_milestone":  {entity: domain.EntityProject, action: domain.ActionUpdate},
	"approve_milestone": {entity: domain.EntityProject, action: domain.ActionUpdate},
	"raise_dispute":     {entity: domain.EntityDispute, action: domain.ActionCreate},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, actor domain.AccountID, duration time.Duration) {
	meta, ok := auditOperationMetadata[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, operation, entityID string, actor domain.AccountID, opErr error, duration time.Duration) {
	meta, ok := auditOperationMetadata[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusError,
		Error:     opErr.Error(),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "type", string(event.Type), "project", event.ProjectID, "error", err)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.statsCache == nil {
		return
	}
	if err := s.statsCache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", "error", err)
	}
}
