package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"searchmatic/database"
	"searchmatic/errs"
	"searchmatic/models"
	"searchmatic/registry"
)

// ProjectService kapselt CRUD und Statistik für Review-Projekte.
// Jede Operation prüft die Ownership des Aufrufers.
type ProjectService struct {
	DB       *gorm.DB
	Registry *registry.Registry
	Logger   *zap.Logger
}

// NewProjectService erstellt eine neue Instanz des ProjectService.
func NewProjectService(db *gorm.DB, reg *registry.Registry, logger *zap.Logger) *ProjectService {
	return &ProjectService{DB: db, Registry: reg, Logger: logger}
}

// CreateProjectInput sind die Felder beim Anlegen; leere Enum-Felder erhalten
// den Registry-Default.
type CreateProjectInput struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	ProjectType    string `json:"project_type"`
	Status         string `json:"status"`
	ResearchDomain string `json:"research_domain"`
}

// UpdateProjectInput: nur gesetzte Felder werden geschrieben.
type UpdateProjectInput struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	ProjectType        *string `json:"project_type"`
	Status             *string `json:"status"`
	ResearchDomain     *string `json:"research_domain"`
	ProgressPercentage *int    `json:"progress_percentage"`
	CurrentStage       *string `json:"current_stage"`
}

// ownedProject lädt ein Projekt und prüft die Ownership. NotFound und
// Forbidden werden intern fürs Audit-Log unterschieden; nach außen liefert
// der Handler für beide dieselbe Antwort.
func ownedProject(tx *gorm.DB, logger *zap.Logger, requesterID, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("project")
		}
		return nil, errs.NewDatabaseError("find", "project", err)
	}
	if project.OwnerID != requesterID {
		logger.Warn("Zugriff auf fremdes Projekt verweigert",
			zap.String("project_id", projectID.String()),
			zap.String("requester_id", requesterID.String()))
		return nil, errs.NewForbidden("project")
	}
	return &project, nil
}

// touchProject aktualisiert updated_at und last_activity_at des Projekts.
// Wird bei jeder Mutation am Projekt oder an einer Kind-Study aufgerufen.
func touchProject(tx *gorm.DB, projectID uuid.UUID, now time.Time) error {
	return tx.Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{"updated_at": now, "last_activity_at": now}).Error
}

// Create legt ein neues Projekt für den Owner an. Der Titel darf nicht leer
// sein; project_type und status müssen registrierte Enum-Werte sein.
func (s *ProjectService) Create(ctx context.Context, ownerID uuid.UUID, in CreateProjectInput) (*models.Project, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.NewValidation("title must not be empty")
	}

	projectType := in.ProjectType
	if projectType == "" {
		projectType = s.Registry.Default(registry.FieldProjectType)
	} else if !s.Registry.IsValid(registry.FieldProjectType, projectType) {
		return nil, errs.NewInvalidEnumValue(registry.FieldProjectType, projectType)
	}

	status := in.Status
	if status == "" {
		status = s.Registry.Default(registry.FieldProjectStatus)
	} else if !s.Registry.IsValid(registry.FieldProjectStatus, status) {
		return nil, errs.NewInvalidEnumValue(registry.FieldProjectStatus, status)
	}

	now := time.Now().UTC()
	project := models.Project{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Title:              title,
		Description:        in.Description,
		ProjectType:        projectType,
		Status:             status,
		ResearchDomain:     in.ResearchDomain,
		ProgressPercentage: 0,
		CurrentStage:       "Planning",
		CreatedAt:          now,
		UpdatedAt:          now,
		LastActivityAt:     now,
	}

	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		return tx.Create(&project).Error
	})
	if err != nil {
		return nil, errs.NewDatabaseError("create", "project", err)
	}

	s.Logger.Info("Projekt angelegt",
		zap.String("project_id", project.ID.String()),
		zap.String("project_type", project.ProjectType))
	return &project, nil
}

// Get liefert ein Projekt des Requesters.
func (s *ProjectService) Get(ctx context.Context, requesterID, projectID uuid.UUID) (*models.Project, error) {
	var project *models.Project
	err := database.WithOwner(s.DB.WithContext(ctx), requesterID, func(tx *gorm.DB) error {
		var err error
		project, err = ownedProject(tx, s.Logger, requesterID, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// List gibt alle Projekte des Owners zurück, zuletzt aktive zuerst.
func (s *ProjectService) List(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	var projects []models.Project
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		return tx.Where("owner_id = ?", ownerID).
			Order("last_activity_at desc").
			Find(&projects).Error
	})
	if err != nil {
		return nil, errs.NewDatabaseError("list", "projects", err)
	}
	return projects, nil
}

// Update schreibt die gesetzten Felder. Enum-Felder werden erneut gegen die
// Registry validiert; progress_percentage außerhalb [0,100] wird abgelehnt,
// der gespeicherte Wert bleibt dann unverändert.
func (s *ProjectService) Update(ctx context.Context, requesterID, projectID uuid.UUID, in UpdateProjectInput) (*models.Project, error) {
	updates := map[string]any{}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, errs.NewValidation("title must not be empty")
		}
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.ProjectType != nil {
		if !s.Registry.IsValid(registry.FieldProjectType, *in.ProjectType) {
			return nil, errs.NewInvalidEnumValue(registry.FieldProjectType, *in.ProjectType)
		}
		updates["project_type"] = *in.ProjectType
	}
	if in.Status != nil {
		if !s.Registry.IsValid(registry.FieldProjectStatus, *in.Status) {
			return nil, errs.NewInvalidEnumValue(registry.FieldProjectStatus, *in.Status)
		}
		updates["status"] = *in.Status
	}
	if in.ResearchDomain != nil {
		updates["research_domain"] = *in.ResearchDomain
	}
	if in.ProgressPercentage != nil {
		if *in.ProgressPercentage < 0 || *in.ProgressPercentage > 100 {
			return nil, errs.NewValidation("progress_percentage must be between 0 and 100")
		}
		updates["progress_percentage"] = *in.ProgressPercentage
	}
	if in.CurrentStage != nil {
		updates["current_stage"] = *in.CurrentStage
	}
	if len(updates) == 0 {
		return nil, errs.NewValidation("no updatable fields provided")
	}

	now := time.Now().UTC()
	updates["updated_at"] = now
	updates["last_activity_at"] = now

	var project *models.Project
	err := database.WithOwner(s.DB.WithContext(ctx), requesterID, func(tx *gorm.DB) error {
		var err error
		project, err = ownedProject(tx, s.Logger, requesterID, projectID)
		if err != nil {
			return err
		}
		if err := tx.Model(project).Updates(updates).Error; err != nil {
			return errs.NewDatabaseError("update", "project", err)
		}
		return tx.First(project, "id = ?", projectID).Error
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Delete löscht das Projekt und kaskadiert auf Studies, Protokoll und
// Export-Einträge — alles in einer Transaktion, all-or-nothing.
func (s *ProjectService) Delete(ctx context.Context, requesterID, projectID uuid.UUID) error {
	err := database.WithOwner(s.DB.WithContext(ctx), requesterID, func(tx *gorm.DB) error {
		if _, err := ownedProject(tx, s.Logger, requesterID, projectID); err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Study{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Protocol{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Export{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, "id = ?", projectID).Error
	})
	if err != nil {
		var apiErr *errs.ApiErr
		if errors.As(err, &apiErr) {
			return err
		}
		// Transaktion abgebrochen: Aufrufer soll die gesamte Operation
		// wiederholen, nicht Teilschritte.
		return errs.NewConflict("project delete did not complete atomically")
	}

	s.Logger.Info("Projekt gelöscht (inkl. Studies)", zap.String("project_id", projectID.String()))
	return nil
}

// Stats liefert die On-Demand-Aggregation über die Studies des Projekts.
// Nur für den Owner verfügbar.
func (s *ProjectService) Stats(ctx context.Context, requesterID, projectID uuid.UUID) (*ProjectStats, error) {
	var stats *ProjectStats
	err := database.WithOwner(s.DB.WithContext(ctx), requesterID, func(tx *gorm.DB) error {
		if _, err := ownedProject(tx, s.Logger, requesterID, projectID); err != nil {
			return err
		}
		var err error
		stats, err = ComputeStats(tx, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
