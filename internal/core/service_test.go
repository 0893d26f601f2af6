package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"escrowcore/internal/cache"
	"escrowcore/internal/events"
	"escrowcore/internal/infra/evidence"
	"escrowcore/internal/reputation"
	"escrowcore/pkg/domain"
)

func twoMilestoneInput() CreateProjectInput {
	return CreateProjectInput{
		Client:      "client-1",
		Title:       "Storefront build",
		Description: "Catalog plus checkout",
		TotalBudget: 1_000_000,
		Milestones: []MilestoneDraft{
			{Title: "Catalog", Amount: 600_000},
			{Title: "Checkout", Amount: 400_000},
		},
	}
}

func activeProject(t *testing.T, svc *Service) domain.Project {
	t.Helper()
	ctx := context.Background()
	project, _, err := svc.CreateProject(ctx, twoMilestoneInput())
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	project, _, err = svc.AcceptProject(ctx, "freelancer-1", project.ID)
	if err != nil {
		t.Fatalf("accept project: %v", err)
	}
	return project
}

func TestFullSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	rep := reputation.NewMemoryRecorder()
	pub := events.NewMemoryPublisher()
	svc := NewInMemoryService(nil, WithReputation(rep), WithEvents(pub))

	project := activeProject(t, svc)
	if project.Status != domain.ProjectStatusActive {
		t.Fatalf("expected active project, got %s", project.Status)
	}
	if project.StartedAt == nil {
		t.Fatalf("expected started_at to be set")
	}
	if project.EscrowBalance != 1_000_000 {
		t.Fatalf("expected full escrow, got %d", project.EscrowBalance)
	}

	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); err != nil {
		t.Fatalf("submit milestone 0: %v", err)
	}
	updated, payout, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0)
	if err != nil {
		t.Fatalf("approve milestone 0: %v", err)
	}
	if payout.Gross != 600_000 || payout.Fee != 15_000 || payout.Net != 585_000 {
		t.Fatalf("unexpected payout split: %+v", payout)
	}
	if payout.Payee != "freelancer-1" {
		t.Fatalf("unexpected payee: %s", payout.Payee)
	}
	if updated.EscrowBalance != 400_000 {
		t.Fatalf("expected escrow 400000, got %d", updated.EscrowBalance)
	}
	if updated.Status != domain.ProjectStatusActive {
		t.Fatalf("project must stay active with milestones outstanding, got %s", updated.Status)
	}
	if profile, ok := rep.Profile("freelancer-1"); !ok || profile.ReviewCount != 1 || profile.AverageRating != 500 {
		t.Fatalf("unexpected reputation profile: %+v ok=%v", profile, ok)
	}

	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 1); err != nil {
		t.Fatalf("submit milestone 1: %v", err)
	}
	updated, payout, _, err = svc.ApproveMilestone(ctx, "client-1", project.ID, 1)
	if err != nil {
		t.Fatalf("approve milestone 1: %v", err)
	}
	if payout.Gross != 400_000 || payout.Fee != 10_000 || payout.Net != 390_000 {
		t.Fatalf("unexpected payout split: %+v", payout)
	}
	if updated.EscrowBalance != 0 {
		t.Fatalf("expected drained escrow, got %d", updated.EscrowBalance)
	}
	if updated.Status != domain.ProjectStatusCompleted {
		t.Fatalf("expected cascading completion, got %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	stats := svc.RegistryStats(ctx)
	if stats.TotalProjects != 1 || stats.ActiveProjects != 0 || stats.CompletedProjects != 1 || stats.DisputedProjects != 0 {
		t.Fatalf("unexpected registry counters: %+v", stats)
	}
	if stats.PlatformBalance != 25_000 {
		t.Fatalf("expected accumulated fees 25000, got %d", stats.PlatformBalance)
	}

	payouts := svc.ListPayouts()
	if len(payouts) != 2 {
		t.Fatalf("expected 2 payout records, got %d", len(payouts))
	}
	for _, p := range payouts {
		if p.Fee+p.Net != p.Gross {
			t.Fatalf("payout leaks currency: %+v", p)
		}
	}

	want := []events.Type{
		events.TypeProjectCreated,
		events.TypeProjectAccepted,
		events.TypeMilestoneSubmitted,
		events.TypeMilestoneApproved,
		events.TypeMilestoneSubmitted,
		events.TypeMilestoneApproved,
		events.TypeProjectCompleted,
	}
	got := pub.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, typ := range want {
		if got[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, got[i].Type)
		}
	}
}

func TestCreateProjectValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	cases := []struct {
		name   string
		mutate func(*CreateProjectInput)
	}{
		{"missing client", func(in *CreateProjectInput) { in.Client = "" }},
		{"missing title", func(in *CreateProjectInput) { in.Title = "" }},
		{"negative budget", func(in *CreateProjectInput) { in.TotalBudget = -1 }},
		{"negative milestone amount", func(in *CreateProjectInput) { in.Milestones[0].Amount = -5 }},
		{"sum mismatch", func(in *CreateProjectInput) { in.Milestones[1].Amount = 300_000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := twoMilestoneInput()
			tc.mutate(&input)
			if _, _, err := svc.CreateProject(ctx, input); !domain.IsCode(err, domain.CodeInvalidInput) {
				t.Fatalf("expected invalid_input, got %v", err)
			}
		})
	}
	if stats := svc.RegistryStats(ctx); stats.TotalProjects != 0 {
		t.Fatalf("rejected creations must not count, got %d", stats.TotalProjects)
	}
}

func TestAcceptProjectStatusGuard(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	project := activeProject(t, svc)

	if _, _, err := svc.AcceptProject(ctx, "freelancer-2", project.ID); !domain.IsCode(err, domain.CodeInvalidStatus) {
		t.Fatalf("expected invalid_status on second accept, got %v", err)
	}
	got, _ := svc.GetProject(project.ID)
	if got.Freelancer != "freelancer-1" {
		t.Fatalf("freelancer must not change, got %s", got.Freelancer)
	}
	if stats := svc.RegistryStats(ctx); stats.ActiveProjects != 1 {
		t.Fatalf("active counter must not double count, got %d", stats.ActiveProjects)
	}
}

func TestSubmitMilestoneGuards(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	project := activeProject(t, svc)

	if _, _, err := svc.SubmitMilestone(ctx, "client-1", project.ID, 0); !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for non-freelancer, got %v", err)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 7); !domain.IsCode(err, domain.CodeMilestoneNotFound) {
		t.Fatalf("expected milestone_not_found for out-of-range index, got %v", err)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, -1); !domain.IsCode(err, domain.CodeMilestoneNotFound) {
		t.Fatalf("expected milestone_not_found for negative index, got %v", err)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); !domain.IsCode(err, domain.CodeInvalidStatus) {
		t.Fatalf("expected invalid_status on double submit, got %v", err)
	}
}

func TestApproveMilestoneGuards(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	project := activeProject(t, svc)

	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0); !domain.IsCode(err, domain.CodeInvalidStatus) {
		t.Fatalf("expected invalid_status approving unsubmitted milestone, got %v", err)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, _, err := svc.ApproveMilestone(ctx, "freelancer-1", project.ID, 0); !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for non-client, got %v", err)
	}
	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 9); !domain.IsCode(err, domain.CodeMilestoneNotFound) {
		t.Fatalf("expected milestone_not_found, got %v", err)
	}
	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stats := svc.RegistryStats(ctx)
	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0); !domain.IsCode(err, domain.CodeInvalidStatus) {
		t.Fatalf("expected invalid_status on double approve, got %v", err)
	}
	after := svc.RegistryStats(ctx)
	if after.PlatformBalance != stats.PlatformBalance {
		t.Fatalf("double approve must not move funds: %d vs %d", after.PlatformBalance, stats.PlatformBalance)
	}
	if got := svc.ListPayouts(); len(got) != 1 {
		t.Fatalf("expected single payout record, got %d", len(got))
	}
	got, _ := svc.GetProject(project.ID)
	if got.EscrowBalance != 400_000 {
		t.Fatalf("escrow must decrease exactly once, got %d", got.EscrowBalance)
	}
}

func TestRaiseDisputeFreezesProject(t *testing.T) {
	ctx := context.Background()
	store := evidence.NewMemory()
	svc := NewInMemoryService(nil, WithEvidenceStore(store))

	open, _, err := svc.CreateProject(ctx, twoMilestoneInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.RaiseDispute(ctx, "client-1", open.ID, "stalled", ""); !domain.IsCode(err, domain.CodeProjectNotActive) {
		t.Fatalf("disputes require an active project, got %v", err)
	}

	project := activeProject(t, svc)
	if _, _, err := svc.RaiseDispute(ctx, "outsider", project.ID, "stalled", ""); !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for non-participant, got %v", err)
	}
	if _, _, err := svc.RaiseDispute(ctx, "freelancer-1", project.ID, "", ""); !domain.IsCode(err, domain.CodeInvalidInput) {
		t.Fatalf("expected invalid_input for empty reason, got %v", err)
	}

	before := svc.RegistryStats(ctx)
	dispute, _, err := svc.RaiseDispute(ctx, "freelancer-1", project.ID, "payment stalled", "chat transcript")
	if err != nil {
		t.Fatalf("raise dispute: %v", err)
	}
	if dispute.Initiator != "freelancer-1" || dispute.Reason != "payment stalled" {
		t.Fatalf("unexpected dispute record: %+v", dispute)
	}
	if dispute.EvidenceKey == "" {
		t.Fatalf("expected archived evidence key")
	}
	if _, err := store.Head(ctx, dispute.EvidenceKey); err != nil {
		t.Fatalf("archived evidence missing: %v", err)
	}

	after := svc.RegistryStats(ctx)
	if after.ActiveProjects != before.ActiveProjects-1 {
		t.Fatalf("active counter must decrease by one: %d -> %d", before.ActiveProjects, after.ActiveProjects)
	}
	if after.DisputedProjects != before.DisputedProjects+1 {
		t.Fatalf("disputed counter must increase by one: %d -> %d", before.DisputedProjects, after.DisputedProjects)
	}

	frozen, _ := svc.GetProject(project.ID)
	if frozen.Status != domain.ProjectStatusDisputed || frozen.DisputeReason != "payment stalled" {
		t.Fatalf("expected frozen disputed project, got %+v", frozen)
	}
	if frozen.EscrowBalance != 1_000_000 {
		t.Fatalf("disputes must not move funds, got %d", frozen.EscrowBalance)
	}
	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); !domain.IsCode(err, domain.CodeProjectNotActive) {
		t.Fatalf("submit on disputed project must fail, got %v", err)
	}
	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0); !domain.IsCode(err, domain.CodeProjectNotActive) {
		t.Fatalf("approve on disputed project must fail, got %v", err)
	}
	if _, _, err := svc.RaiseDispute(ctx, "client-1", project.ID, "counter claim", ""); !domain.IsCode(err, domain.CodeProjectNotActive) {
		t.Fatalf("second dispute must fail on the status guard, got %v", err)
	}
}

type failingReputation struct{}

func (failingReputation) RecordRating(context.Context, domain.AccountID, int) error {
	return errors.New("reputation backend unavailable")
}

func TestReputationFailureAbortsApproval(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil, WithReputation(failingReputation{}))
	project := activeProject(t, svc)

	if _, _, err := svc.SubmitMilestone(ctx, "freelancer-1", project.ID, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, _, err := svc.ApproveMilestone(ctx, "client-1", project.ID, 0); err == nil {
		t.Fatalf("expected approval to abort on reputation failure")
	}

	got, _ := svc.GetProject(project.ID)
	if got.EscrowBalance != 1_000_000 {
		t.Fatalf("aborted approval must not move funds, got %d", got.EscrowBalance)
	}
	m, _ := got.Milestone(0)
	if m.Status != domain.MilestoneStatusSubmitted {
		t.Fatalf("milestone must stay submitted, got %s", m.Status)
	}
	if payouts := svc.ListPayouts(); len(payouts) != 0 {
		t.Fatalf("aborted approval must not record a payout, got %d", len(payouts))
	}
	if stats := svc.RegistryStats(ctx); stats.PlatformBalance != 0 {
		t.Fatalf("aborted approval must not collect fees, got %d", stats.PlatformBalance)
	}
}

func TestRegistryStatsServedThroughCache(t *testing.T) {
	ctx := context.Background()
	statsCache := cache.NewMemoryStatsCache()
	svc := NewInMemoryService(nil, WithStatsCache(statsCache))

	if stats := svc.RegistryStats(ctx); stats.TotalProjects != 0 {
		t.Fatalf("expected empty registry, got %+v", stats)
	}
	if cached, ok, err := statsCache.Get(ctx); err != nil || !ok || cached.TotalProjects != 0 {
		t.Fatalf("expected populated cache after read: %+v ok=%v err=%v", cached, ok, err)
	}

	if _, _, err := svc.CreateProject(ctx, twoMilestoneInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, err := statsCache.Get(ctx); err != nil || ok {
		t.Fatalf("expected invalidated cache after mutation, ok=%v err=%v", ok, err)
	}
	if stats := svc.RegistryStats(ctx); stats.TotalProjects != 1 {
		t.Fatalf("expected refreshed stats, got %+v", stats)
	}
}

type auditRecorderStub struct {
	entries []AuditEntry
}

func (r *auditRecorderStub) Record(_ context.Context, entry AuditEntry) {
	r.entries = append(r.entries, entry)
}

func TestRecordAuditSuccessUsesMetadata(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	recorder := &auditRecorderStub{}
	svc := NewInMemoryService(nil,
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	entityID := "project-123"
	duration := 42 * time.Millisecond
	svc.recordAuditSuccess(context.Background(), "create_project", entityID, "client-1", duration)

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Operation != "create_project" {
		t.Fatalf("unexpected operation: %s", entry.Operation)
	}
	if entry.Entity != domain.EntityProject {
		t.Fatalf("expected entity project, got %s", entry.Entity)
	}
	if entry.Action != domain.ActionCreate {
		t.Fatalf("expected create action, got %s", entry.Action)
	}
	if entry.EntityID != entityID || entry.Actor != "client-1" {
		t.Fatalf("unexpected identity fields: %+v", entry)
	}
	if entry.Status != AuditStatusSuccess {
		t.Fatalf("expected success status, got %s", entry.Status)
	}
	if entry.Duration != duration {
		t.Fatalf("expected duration %v, got %v", duration, entry.Duration)
	}
	if !entry.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %v, got %v", fixed, entry.Timestamp)
	}
}

func TestRecordAuditIgnoresUnknownOperation(t *testing.T) {
	recorder := &auditRecorderStub{}
	svc := NewInMemoryService(nil, WithAuditRecorder(recorder))

	svc.recordAuditSuccess(context.Background(), "unknown_operation", "entity", "actor", time.Second)
	svc.recordAuditError(context.Background(), "unknown_operation", "entity", "actor", errors.New("boom"), time.Second)

	if len(recorder.entries) != 0 {
		t.Fatalf("expected no audit entries for unknown operation, got %d", len(recorder.entries))
	}
}

func TestAuditRecordsFailures(t *testing.T) {
	ctx := context.Background()
	recorder := &auditRecorderStub{}
	svc := NewInMemoryService(nil, WithAuditRecorder(recorder))

	if _, _, err := svc.AcceptProject(ctx, "freelancer-1", "missing"); !domain.IsCode(err, domain.CodeProjectNotFound) {
		t.Fatalf("expected project_not_found, got %v", err)
	}
	found := false
	for _, entry := range recorder.entries {
		if entry.Operation == "accept_project" && entry.Status == AuditStatusError && entry.Error != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error audit entry for accept_project, got %+v", recorder.entries)
	}
}

func TestNoopImplementations(t *testing.T) {
	var logger noopLogger
	logger.Debug("noop")
	logger.Info("noop")
	logger.Warn("noop")
	logger.Error("noop")

	var audit noopAuditRecorder
	audit.Record(context.Background(), AuditEntry{})

	var metrics noopMetricsRecorder
	metrics.Observe(context.Background(), "noop", true, 0)

	tracer := noopTracer{}
	ctx, span := tracer.Start(context.Background(), "op")
	if ctx == nil {
		t.Fatalf("expected context from tracer")
	}
	span.End(nil)
}
