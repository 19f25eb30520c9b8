package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"searchmatic/errs"
	"searchmatic/models"
)

// fakeStore sammelt hochgeladene Objekte im Speicher.
type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	f.objects[key] = data
	return "https://exports.test/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func TestExportStudies(t *testing.T) {
	projects, studies, _, db := newTestServices(t)
	store := newFakeStore()
	exports := NewExportService(db, store, zap.NewNop(), 14)

	owner := uuid.New()
	project, err := projects.Create(context.Background(), owner, CreateProjectInput{Title: "p"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	year := 2021
	if _, err := studies.Create(context.Background(), owner, project.ID, CreateStudyInput{
		Title: "Alpha", DOI: "10.1/a", PublicationYear: &year, Keywords: []string{"k1", "k2"},
	}); err != nil {
		t.Fatalf("create study: %v", err)
	}
	if _, err := studies.Create(context.Background(), owner, project.ID, CreateStudyInput{Title: "Beta", PMID: "99"}); err != nil {
		t.Fatalf("create study: %v", err)
	}

	export, err := exports.ExportStudies(context.Background(), owner, project.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.StudyCount != 2 || export.Format != "csv" {
		t.Errorf("unexpected export row: %+v", export)
	}
	if export.Link == "" {
		t.Error("export has no link")
	}

	data, ok := store.objects[export.S3Key]
	if !ok {
		t.Fatalf("no object uploaded under %q", export.S3Key)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][1] != "title" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][1] != "Alpha" || records[1][4] != "2021" || records[1][10] != "k1;k2" {
		t.Errorf("unexpected first row: %v", records[1])
	}
	if records[2][1] != "Beta" || records[2][6] != "99" {
		t.Errorf("unexpected second row: %v", records[2])
	}

	// Export-Eintrag ist persistiert.
	var count int64
	if err := db.Model(&models.Export{}).Where("project_id = ?", project.ID).Count(&count).Error; err != nil {
		t.Fatalf("count exports: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 export row, got %d", count)
	}
}

func TestExportForeignProject(t *testing.T) {
	projects, _, _, db := newTestServices(t)
	exports := NewExportService(db, newFakeStore(), zap.NewNop(), 14)

	owner := uuid.New()
	project, err := projects.Create(context.Background(), owner, CreateProjectInput{Title: "p"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := exports.ExportStudies(context.Background(), uuid.New(), project.ID); !errs.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	exports := NewExportService(db, store, zap.NewNop(), 14)

	owner := uuid.New()
	projectID := uuid.New()

	fresh := models.Export{
		ID: uuid.New(), ProjectID: projectID, OwnerID: owner,
		Format: "csv", S3Key: "exports/fresh.csv", CreatedAt: time.Now().UTC(),
	}
	stale := models.Export{
		ID: uuid.New(), ProjectID: projectID, OwnerID: owner,
		Format: "csv", S3Key: "exports/stale.csv", CreatedAt: time.Now().UTC().AddDate(0, 0, -30),
	}
	for _, e := range []models.Export{fresh, stale} {
		if err := db.Create(&e).Error; err != nil {
			t.Fatalf("create export row: %v", err)
		}
		store.objects[e.S3Key] = []byte("csv")
	}

	removed, err := exports.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed export, got %d", removed)
	}
	if _, ok := store.objects[stale.S3Key]; ok {
		t.Error("stale object still in store")
	}
	if _, ok := store.objects[fresh.S3Key]; !ok {
		t.Error("fresh object was deleted")
	}
	var count int64
	if err := db.Model(&models.Export{}).Count(&count).Error; err != nil {
		t.Fatalf("count exports: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 export row to remain, got %d", count)
	}
}

// brokenStore schlägt beim Objekt-Löschen immer fehl.
type brokenStore struct{ *fakeStore }

func (b *brokenStore) Delete(ctx context.Context, key string) error {
	return context.DeadlineExceeded
}

func TestCleanupExpiredRemovesRowBeforeObject(t *testing.T) {
	db := newTestDB(t)
	store := &brokenStore{newFakeStore()}
	exports := NewExportService(db, store, zap.NewNop(), 14)

	stale := models.Export{
		ID: uuid.New(), ProjectID: uuid.New(), OwnerID: uuid.New(),
		Format: "csv", S3Key: "exports/stale.csv", CreatedAt: time.Now().UTC().AddDate(0, 0, -30),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("create export row: %v", err)
	}
	store.objects[stale.S3Key] = []byte("csv")

	removed, err := exports.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed export, got %d", removed)
	}

	// Die Zeile verschwindet auch bei fehlgeschlagenem Objekt-Löschen;
	// es bleibt kein Eintrag zurück, der auf ein gelöschtes Objekt zeigt.
	var count int64
	if err := db.Model(&models.Export{}).Count(&count).Error; err != nil {
		t.Fatalf("count exports: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 export rows, got %d", count)
	}
}

func TestBuildStudiesCSVEmpty(t *testing.T) {
	data, err := BuildStudiesCSV(nil)
	if err != nil {
		t.Fatalf("build csv: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected header only, got %d records", len(records))
	}
}
