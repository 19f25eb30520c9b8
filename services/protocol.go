package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"searchmatic/database"
	"searchmatic/errs"
	"searchmatic/models"
	"searchmatic/registry"
)

// ProtocolService verwaltet das Review-Protokoll eines Projekts
// (PICO/SPIDER). Pro Projekt existiert höchstens ein Protokoll.
type ProtocolService struct {
	DB       *gorm.DB
	Registry *registry.Registry
	Logger   *zap.Logger
}

// NewProtocolService erstellt eine neue Instanz des ProtocolService.
func NewProtocolService(db *gorm.DB, reg *registry.Registry, logger *zap.Logger) *ProtocolService {
	return &ProtocolService{DB: db, Registry: reg, Logger: logger}
}

// ProtocolInput sind die Felder für das Anlegen bzw. Aktualisieren.
type ProtocolInput struct {
	Framework            string `json:"framework"`
	Population           string `json:"population"`
	Intervention         string `json:"intervention"`
	Comparison           string `json:"comparison"`
	Outcome              string `json:"outcome"`
	Sample               string `json:"sample"`
	PhenomenonOfInterest string `json:"phenomenon_of_interest"`
	Design               string `json:"design"`
	Evaluation           string `json:"evaluation"`
	ResearchType         string `json:"research_type"`
	InclusionCriteria    string `json:"inclusion_criteria"`
	ExclusionCriteria    string `json:"exclusion_criteria"`
}

// Get liefert das Protokoll des Projekts.
func (s *ProtocolService) Get(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Protocol, error) {
	var protocol models.Protocol
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		if _, err := ownedProject(tx, s.Logger, ownerID, projectID); err != nil {
			return err
		}
		if err := tx.First(&protocol, "project_id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NewNotFound("protocol")
			}
			return errs.NewDatabaseError("find", "protocol", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &protocol, nil
}

// Upsert legt das Protokoll an oder überschreibt es. Ein gesperrtes
// Protokoll kann nicht mehr verändert werden (Conflict).
func (s *ProtocolService) Upsert(ctx context.Context, ownerID, projectID uuid.UUID, in ProtocolInput) (*models.Protocol, error) {
	framework := in.Framework
	if framework == "" {
		framework = s.Registry.Default(registry.FieldProtocolFramework)
	} else if !s.Registry.IsValid(registry.FieldProtocolFramework, framework) {
		return nil, errs.NewInvalidEnumValue(registry.FieldProtocolFramework, framework)
	}

	now := time.Now().UTC()
	var protocol models.Protocol
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		project, err := ownedProject(tx, s.Logger, ownerID, projectID)
		if err != nil {
			return err
		}

		var existing models.Protocol
		err = tx.First(&existing, "project_id = ?", projectID).Error
		switch {
		case err == nil:
			if existing.Locked {
				return errs.NewConflict("protocol is locked")
			}
			protocol = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			protocol = models.Protocol{
				ID:        uuid.New(),
				ProjectID: project.ID,
				OwnerID:   project.OwnerID,
				CreatedAt: now,
			}
		default:
			return errs.NewDatabaseError("find", "protocol", err)
		}

		protocol.Framework = framework
		protocol.Population = in.Population
		protocol.Intervention = in.Intervention
		protocol.Comparison = in.Comparison
		protocol.Outcome = in.Outcome
		protocol.Sample = in.Sample
		protocol.PhenomenonOfInterest = in.PhenomenonOfInterest
		protocol.Design = in.Design
		protocol.Evaluation = in.Evaluation
		protocol.ResearchType = in.ResearchType
		protocol.InclusionCriteria = in.InclusionCriteria
		protocol.ExclusionCriteria = in.ExclusionCriteria
		protocol.UpdatedAt = now

		if err := tx.Save(&protocol).Error; err != nil {
			return errs.NewDatabaseError("save", "protocol", err)
		}
		return touchProject(tx, project.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return &protocol, nil
}

// Lock friert das Protokoll ein. Idempotent.
func (s *ProtocolService) Lock(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Protocol, error) {
	var protocol models.Protocol
	err := database.WithOwner(s.DB.WithContext(ctx), ownerID, func(tx *gorm.DB) error {
		if _, err := ownedProject(tx, s.Logger, ownerID, projectID); err != nil {
			return err
		}
		if err := tx.First(&protocol, "project_id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NewNotFound("protocol")
			}
			return errs.NewDatabaseError("find", "protocol", err)
		}
		if protocol.Locked {
			return nil
		}
		now := time.Now().UTC()
		protocol.Locked = true
		protocol.UpdatedAt = now
		if err := tx.Save(&protocol).Error; err != nil {
			return errs.NewDatabaseError("save", "protocol", err)
		}
		return touchProject(tx, projectID, now)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Protokoll gesperrt", zap.String("project_id", projectID.String()))
	return &protocol, nil
}
