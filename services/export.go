package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"searchmatic/database"
	"searchmatic/errs"
	"searchmatic/models"
)

// ObjectStore abstrahiert das S3-kompatible Export-Storage, damit Tests ohne
// echten Bucket laufen.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// ExportService erzeugt CSV-Snapshots der Studies eines Projekts und räumt
// abgelaufene Exporte per Cron wieder ab.
type ExportService struct {
	DB     *gorm.DB
	Store  ObjectStore
	Logger *zap.Logger

	RetentionDays int
}

// NewExportService erstellt eine neue Instanz des ExportService.
func NewExportService(db *gorm.DB, store ObjectStore, logger *zap.Logger, retentionDays int) *ExportService {
	return &ExportService{DB: db, Store: store, Logger: logger, RetentionDays: retentionDays}
}

// ExportStudies schreibt alle Studies des Projekts als CSV ins Objekt-Storage
// und protokolliert den Export in der Datenbank.
func (s *ExportService) ExportStudies(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Export, error) {
	var export models.Export
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		project, err := ownedProject(tx, s.Logger, ownerID, projectID)
		if err != nil {
			return err
		}

		var studies []models.Study
		if err := tx.Where("project_id = ?", projectID).Order("created_at asc").Find(&studies).Error; err != nil {
			return errs.NewDatabaseError("find", "studies", err)
		}

		data, err := BuildStudiesCSV(studies)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		key := fmt.Sprintf("exports/%s/%s.csv", project.ID, now.Format("2006-01-02T15-04-05Z"))
		link, err := s.Store.Upload(ctx, key, data)
		if err != nil {
			return errs.NewDatabaseError("upload", "export", err)
		}

		export = models.Export{
			ID:         uuid.New(),
			ProjectID:  project.ID,
			OwnerID:    project.OwnerID,
			Format:     "csv",
			StudyCount: len(studies),
			S3Key:      key,
			Link:       link,
			CreatedAt:  now,
		}
		if err := tx.Create(&export).Error; err != nil {
			return errs.NewDatabaseError("create", "export", err)
		}
		return touchProject(tx, project.ID, now)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Export erstellt",
		zap.String("project_id", projectID.String()),
		zap.String("key", export.S3Key),
		zap.Int("studies", export.StudyCount))
	return &export, nil
}

// CleanupExpired löscht Exporte, die älter als die Retention sind, aus der
// Datenbank und dem Storage. Läuft ohne Owner-Kontext im Wartungsmodus.
// Erst die Zeile, dann das Objekt: schlägt der Objekt-Löschvorgang fehl,
// bleibt höchstens ein verwaistes Objekt zurück, nie ein Export-Eintrag,
// der auf ein gelöschtes Objekt zeigt.
func (s *ExportService) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	removed := 0
	err := database.WithMaintenance(s.DB.WithContext(ctx), func(tx *gorm.DB) error {
		var expired []models.Export
		if err := tx.Where("created_at < ?", cutoff).Find(&expired).Error; err != nil {
			return errs.NewDatabaseError("find", "exports", err)
		}

		for _, e := range expired {
			if err := tx.Delete(&models.Export{}, "id = ?", e.ID).Error; err != nil {
				s.Logger.Warn("Konnte Export-Eintrag nicht löschen", zap.String("id", e.ID.String()), zap.Error(err))
				continue
			}
			if err := s.Store.Delete(ctx, e.S3Key); err != nil {
				s.Logger.Warn("Konnte Export-Objekt nicht löschen", zap.String("key", e.S3Key), zap.Error(err))
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// BuildStudiesCSV rendert die Studies als CSV: Header-Zeile plus eine Zeile
// pro Study. Keywords werden mit ";" verbunden.
func BuildStudiesCSV(studies []models.Study) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "title", "authors", "journal", "publication_year",
		"doi", "pmid", "url", "study_type", "status", "keywords",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, st := range studies {
		year := ""
		if st.PublicationYear != nil {
			year = strconv.Itoa(*st.PublicationYear)
		}
		row := []string{
			st.ID.String(), st.Title, st.Authors, st.Journal, year,
			st.DOI, st.PMID, st.URL, st.StudyType, st.Status,
			strings.Join(st.Keywords, ";"),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
