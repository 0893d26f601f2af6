package core

import (
	"context"
	"path/filepath"
	"testing"

	"escrowcore/internal/config"
)

func TestNewServiceFromConfigMemory(t *testing.T) {
	cfg := config.Config{
		Storage:  config.StorageConfig{Driver: "memory"},
		Evidence: config.EvidenceConfig{Driver: "memory"},
	}
	svc, err := NewServiceFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	project, _, err := svc.CreateProject(context.Background(), twoMilestoneInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := svc.GetProject(project.ID); !ok {
		t.Fatalf("expected project visible through configured service")
	}
}

func TestNewServiceFromConfigSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "escrow.db")
	cfg.Evidence.FSRoot = t.TempDir()
	svc, err := NewServiceFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, _, err := svc.CreateProject(context.Background(), twoMilestoneInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestNewServiceFromConfigRejectsUnknownDrivers(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{Driver: "cassandra"}}
	if _, err := NewServiceFromConfig(context.Background(), cfg); err == nil {
		t.Fatalf("expected unknown storage driver error")
	}

	cfg = config.Config{
		Storage:  config.StorageConfig{Driver: "memory"},
		Evidence: config.EvidenceConfig{Driver: "tape"},
	}
	if _, err := NewServiceFromConfig(context.Background(), cfg); err == nil {
		t.Fatalf("expected unknown evidence driver error")
	}
}
