package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"searchmatic/errs"
)

func TestProtocolUpsertAndGet(t *testing.T) {
	projects, _, protocols, _ := newTestServices(t)
	owner := uuid.New()
	project, err := projects.Create(context.Background(), owner, CreateProjectInput{Title: "p"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := protocols.Get(context.Background(), owner, project.ID); !errs.IsNotFound(err) {
		t.Fatalf("expected not found before upsert, got %v", err)
	}

	created, err := protocols.Upsert(context.Background(), owner, project.ID, ProtocolInput{
		Population:   "adults with hypertension",
		Intervention: "statins",
		Comparison:   "placebo",
		Outcome:      "mortality",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.Framework != "pico" {
		t.Errorf("expected default framework pico, got %q", created.Framework)
	}
	if created.OwnerID != owner || created.ProjectID != project.ID {
		t.Errorf("protocol not attached correctly: %+v", created)
	}

	// Zweiter Upsert überschreibt, legt kein zweites Protokoll an.
	updated, err := protocols.Upsert(context.Background(), owner, project.ID, ProtocolInput{
		Framework:  "spider",
		Sample:     "nurses",
		Design:     "interviews",
		Evaluation: "experiences",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("upsert created a second protocol: %s vs %s", updated.ID, created.ID)
	}
	if updated.Framework != "spider" || updated.Sample != "nurses" {
		t.Errorf("update not applied: %+v", updated)
	}

	got, err := protocols.Get(context.Background(), owner, project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Framework != "spider" {
		t.Errorf("persisted framework %q", got.Framework)
	}
}

func TestProtocolUpsertValidation(t *testing.T) {
	projects, _, protocols, _ := newTestServices(t)
	owner := uuid.New()
	project, err := projects.Create(context.Background(), owner, CreateProjectInput{Title: "p"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := protocols.Upsert(context.Background(), owner, project.ID, ProtocolInput{Framework: "prisma"}); !errs.IsInvalidEnumValue(err) {
		t.Errorf("unknown framework: expected invalid enum error, got %v", err)
	}
	if _, err := protocols.Upsert(context.Background(), uuid.New(), project.ID, ProtocolInput{}); !errs.IsForbidden(err) {
		t.Errorf("foreign project: expected forbidden, got %v", err)
	}
}

func TestProtocolLock(t *testing.T) {
	projects, _, protocols, _ := newTestServices(t)
	owner := uuid.New()
	project, err := projects.Create(context.Background(), owner, CreateProjectInput{Title: "p"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := protocols.Lock(context.Background(), owner, project.ID); !errs.IsNotFound(err) {
		t.Fatalf("lock without protocol: expected not found, got %v", err)
	}

	if _, err := protocols.Upsert(context.Background(), owner, project.ID, ProtocolInput{Population: "v1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	locked, err := protocols.Lock(context.Background(), owner, project.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !locked.Locked {
		t.Error("protocol not marked locked")
	}

	// Lock ist idempotent.
	if _, err := protocols.Lock(context.Background(), owner, project.ID); err != nil {
		t.Errorf("second lock: %v", err)
	}

	// Ein gesperrtes Protokoll kann nicht mehr überschrieben werden.
	if _, err := protocols.Upsert(context.Background(), owner, project.ID, ProtocolInput{Population: "v2"}); !errs.IsConflict(err) {
		t.Errorf("upsert on locked protocol: expected conflict, got %v", err)
	}
	got, err := protocols.Get(context.Background(), owner, project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Population != "v1" {
		t.Errorf("locked protocol was modified: %q", got.Population)
	}
}
