package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"searchmatic/database"
	"searchmatic/errs"
	"searchmatic/models"
	"searchmatic/providers"
	"searchmatic/providers/unpaywall"
	"searchmatic/registry"
)

// StudyService kapselt CRUD und den Provider-Import für Studies.
// Ownership wird immer über das Eltern-Projekt abgeleitet.
type StudyService struct {
	DB        *gorm.DB
	Registry  *registry.Registry
	Logger    *zap.Logger
	Providers []providers.Provider
	Unpaywall *unpaywall.Resolver // optional, darf nil sein

	MaxImportResults int
}

// NewStudyService erstellt eine neue Instanz des StudyService.
func NewStudyService(db *gorm.DB, reg *registry.Registry, logger *zap.Logger, provs []providers.Provider, oa *unpaywall.Resolver) *StudyService {
	return &StudyService{
		DB:               db,
		Registry:         reg,
		Logger:           logger,
		Providers:        provs,
		Unpaywall:        oa,
		MaxImportResults: 200,
	}
}

// CreateStudyInput: ein ggf. mitgesendetes owner_id wird ignoriert — der
// Owner kommt immer vom Eltern-Projekt.
type CreateStudyInput struct {
	Title           string   `json:"title"`
	Authors         string   `json:"authors"`
	Journal         string   `json:"journal"`
	DOI             string   `json:"doi"`
	PMID            string   `json:"pmid"`
	URL             string   `json:"url"`
	PublicationYear *int     `json:"publication_year"`
	StudyType       string   `json:"study_type"`
	Status          string   `json:"status"`
	Abstract        string   `json:"abstract"`
	FullText        string   `json:"full_text"`
	Citation        string   `json:"citation"`
	Keywords        []string `json:"keywords"`
}

// UpdateStudyInput: nur gesetzte Felder werden geschrieben.
type UpdateStudyInput struct {
	Title           *string   `json:"title"`
	Authors         *string   `json:"authors"`
	Journal         *string   `json:"journal"`
	DOI             *string   `json:"doi"`
	PMID            *string   `json:"pmid"`
	URL             *string   `json:"url"`
	PublicationYear *int      `json:"publication_year"`
	StudyType       *string   `json:"study_type"`
	Status          *string   `json:"status"`
	Abstract        *string   `json:"abstract"`
	FullText        *string   `json:"full_text"`
	Citation        *string   `json:"citation"`
	Keywords        *[]string `json:"keywords"`
}

// Create legt eine Study unter dem Projekt an. Das Eltern-Projekt muss
// existieren und dem Aufrufer gehören; last_activity_at des Projekts wird
// aktualisiert.
func (s *StudyService) Create(ctx context.Context, ownerID, projectID uuid.UUID, in CreateStudyInput) (*models.Study, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.NewValidation("title must not be empty")
	}

	studyType := in.StudyType
	if studyType == "" {
		studyType = s.Registry.Default(registry.FieldStudyType)
	} else if !s.Registry.IsValid(registry.FieldStudyType, studyType) {
		return nil, errs.NewInvalidEnumValue(registry.FieldStudyType, studyType)
	}

	status := in.Status
	if status == "" {
		status = s.Registry.Default(registry.FieldStudyStatus)
	} else if !s.Registry.IsValid(registry.FieldStudyStatus, status) {
		return nil, errs.NewInvalidEnumValue(registry.FieldStudyStatus, status)
	}

	now := time.Now().UTC()
	var study models.Study
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		project, err := ownedProject(tx, s.Logger, ownerID, projectID)
		if err != nil {
			return err
		}
		study = models.Study{
			ID:        uuid.New(),
			ProjectID: project.ID,
			// Owner immer vom Projekt, nie aus dem Request — Schutz
			// gegen Privilege Confusion.
			OwnerID:         project.OwnerID,
			Title:           title,
			Authors:         in.Authors,
			Journal:         in.Journal,
			DOI:             in.DOI,
			PMID:            in.PMID,
			URL:             in.URL,
			PublicationYear: in.PublicationYear,
			StudyType:       studyType,
			Status:          status,
			Abstract:        in.Abstract,
			FullText:        in.FullText,
			Citation:        in.Citation,
			Keywords:        datatypes.NewJSONSlice(in.Keywords),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&study).Error; err != nil {
			return errs.NewDatabaseError("create", "study", err)
		}
		return touchProject(tx, project.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return &study, nil
}

// List gibt die Studies eines Projekts zurück, optional nach Status gefiltert.
func (s *StudyService) List(ctx context.Context, ownerID, projectID uuid.UUID, statusFilter string) ([]models.Study, error) {
	var studies []models.Study
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		if _, err := ownedProject(tx, s.Logger, ownerID, projectID); err != nil {
			return err
		}
		query := tx.Where("project_id = ? AND owner_id = ?", projectID, ownerID)
		if statusFilter != "" {
			query = query.Where("status = ?", statusFilter)
		}
		return query.Order("created_at desc").Find(&studies).Error
	})
	if err != nil {
		return nil, err
	}
	return studies, nil
}

// ownedStudy lädt eine Study und prüft die Ownership über das Eltern-Projekt.
func (s *StudyService) ownedStudy(tx *gorm.DB, requesterID, studyID uuid.UUID) (*models.Study, error) {
	var study models.Study
	if err := tx.First(&study, "id = ?", studyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("study")
		}
		return nil, errs.NewDatabaseError("find", "study", err)
	}
	if _, err := ownedProject(tx, s.Logger, requesterID, study.ProjectID); err != nil {
		return nil, err
	}
	return &study, nil
}

// Update schreibt die gesetzten Felder einer Study und aktualisiert
// last_activity_at des Eltern-Projekts. project_id und owner_id sind
// unveränderlich.
func (s *StudyService) Update(ctx context.Context, ownerID, studyID uuid.UUID, in UpdateStudyInput) (*models.Study, error) {
	updates := map[string]any{}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, errs.NewValidation("title must not be empty")
		}
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Authors != nil {
		updates["authors"] = *in.Authors
	}
	if in.Journal != nil {
		updates["journal"] = *in.Journal
	}
	if in.DOI != nil {
		updates["doi"] = *in.DOI
	}
	if in.PMID != nil {
		updates["pmid"] = *in.PMID
	}
	if in.URL != nil {
		updates["url"] = *in.URL
	}
	if in.PublicationYear != nil {
		updates["publication_year"] = *in.PublicationYear
	}
	if in.StudyType != nil {
		if !s.Registry.IsValid(registry.FieldStudyType, *in.StudyType) {
			return nil, errs.NewInvalidEnumValue(registry.FieldStudyType, *in.StudyType)
		}
		updates["study_type"] = *in.StudyType
	}
	if in.Status != nil {
		if !s.Registry.IsValid(registry.FieldStudyStatus, *in.Status) {
			return nil, errs.NewInvalidEnumValue(registry.FieldStudyStatus, *in.Status)
		}
		updates["status"] = *in.Status
	}
	if in.Abstract != nil {
		updates["abstract"] = *in.Abstract
	}
	if in.FullText != nil {
		updates["full_text"] = *in.FullText
	}
	if in.Citation != nil {
		updates["citation"] = *in.Citation
	}
	if in.Keywords != nil {
		updates["keywords"] = datatypes.NewJSONSlice(*in.Keywords)
	}
	if len(updates) == 0 {
		return nil, errs.NewValidation("no updatable fields provided")
	}

	now := time.Now().UTC()
	updates["updated_at"] = now

	var study *models.Study
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		var err error
		study, err = s.ownedStudy(tx, ownerID, studyID)
		if err != nil {
			return err
		}
		if err := tx.Model(study).Updates(updates).Error; err != nil {
			return errs.NewDatabaseError("update", "study", err)
		}
		if err := touchProject(tx, study.ProjectID, now); err != nil {
			return err
		}
		return tx.First(study, "id = ?", studyID).Error
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

// Delete entfernt eine einzelne Study. Keine weitere Kaskade.
func (s *StudyService) Delete(ctx context.Context, ownerID, studyID uuid.UUID) error {
	return database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		study, err := s.ownedStudy(tx, ownerID, studyID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Study{}, "id = ?", studyID).Error; err != nil {
			return errs.NewDatabaseError("delete", "study", err)
		}
		return touchProject(tx, study.ProjectID, time.Now().UTC())
	})
}

// ImportSearch sucht über alle aktiven Provider und legt die Treffer als
// pending-Studies im Projekt an. Treffer, deren PMID oder DOI im Projekt
// schon existiert, werden übersprungen. Gibt die Anzahl neuer Studies zurück.
func (s *StudyService) ImportSearch(ctx context.Context, ownerID, projectID uuid.UUID, term string) (int, error) {
	if strings.TrimSpace(term) == "" {
		return 0, errs.NewValidation("search term must not be empty")
	}

	log := s.Logger.With(zap.String("project_id", projectID.String()), zap.String("term", term))

	// De-Duplizierung über PMID bzw. DOI, analog zum Fetch über mehrere Quellen.
	candidates := make(map[string]*models.Study)
	for _, provider := range s.Providers {
		// Die Grenze gilt über alle Provider hinweg; ist sie erreicht,
		// werden weitere Quellen gar nicht mehr angefragt.
		if len(candidates) >= s.MaxImportResults {
			break
		}
		hits, err := provider.Search(term)
		if err != nil {
			log.Error("Provider-Suche fehlgeschlagen", zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}
		log.Info("Provider hat Ergebnisse geliefert", zap.String("provider", provider.Name()), zap.Int("count", len(hits)))
		for _, hit := range hits {
			if len(candidates) >= s.MaxImportResults {
				break
			}
			key := hit.PMID
			if key == "" && hit.DOI != "" {
				key = hit.DOI
			}
			if key == "" {
				continue
			}
			if _, exists := candidates[key]; !exists {
				candidates[key] = hit
			}
		}
	}

	now := time.Now().UTC()
	imported := 0
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		project, err := ownedProject(tx, s.Logger, ownerID, projectID)
		if err != nil {
			return err
		}

		var existing []models.Study
		if err := tx.Select("doi", "pmid").Where("project_id = ?", projectID).Find(&existing).Error; err != nil {
			return errs.NewDatabaseError("find", "studies", err)
		}
		seen := make(map[string]bool, len(existing)*2)
		for _, st := range existing {
			if st.PMID != "" {
				seen[st.PMID] = true
			}
			if st.DOI != "" {
				seen[st.DOI] = true
			}
		}

		for _, hit := range candidates {
			if (hit.PMID != "" && seen[hit.PMID]) || (hit.DOI != "" && seen[hit.DOI]) {
				continue
			}

			// Open-Access-Link nachschlagen, falls nur die DOI bekannt ist.
			if hit.URL == "" && hit.DOI != "" && s.Unpaywall != nil {
				if link, err := s.Unpaywall.GetOALink(hit.DOI); err == nil && link != "" {
					hit.URL = link
				}
			}

			hit.ID = uuid.New()
			hit.ProjectID = project.ID
			hit.OwnerID = project.OwnerID
			hit.Status = s.Registry.Default(registry.FieldStudyStatus)
			if hit.StudyType == "" {
				hit.StudyType = s.Registry.Default(registry.FieldStudyType)
			}
			hit.CreatedAt = now
			hit.UpdatedAt = now

			if err := tx.Create(hit).Error; err != nil {
				return errs.NewDatabaseError("create", "study", err)
			}
			if hit.PMID != "" {
				seen[hit.PMID] = true
			}
			if hit.DOI != "" {
				seen[hit.DOI] = true
			}
			imported++
		}

		if imported > 0 {
			return touchProject(tx, project.ID, now)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info("Studien-Import abgeschlossen", zap.Int("imported", imported), zap.Int("candidates", len(candidates)))
	return imported, nil
}
