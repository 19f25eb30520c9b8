package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"searchmatic/database"
	"searchmatic/registry"
)

// newTestDB öffnet eine In-Memory-SQLite-Datenbank mit dem vollen Schema und
// geseedeten Enum-Werten.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := registry.Seed(db); err != nil {
		t.Fatalf("seed enums: %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T, db *gorm.DB) *registry.Registry {
	t.Helper()
	reg, err := registry.New(db, zap.NewNop())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

// newTestServices baut alle Services über derselben Datenbank auf.
func newTestServices(t *testing.T) (*ProjectService, *StudyService, *ProtocolService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	reg := newTestRegistry(t, db)
	logger := zap.NewNop()
	projects := NewProjectService(db, reg, logger)
	studies := NewStudyService(db, reg, logger, nil, nil)
	protocols := NewProtocolService(db, reg, logger)
	return projects, studies, protocols, db
}
