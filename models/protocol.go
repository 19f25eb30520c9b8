package models

import (
	"time"

	"github.com/google/uuid"
)

// Protocol speichert das Review-Protokoll eines Projekts (PICO oder SPIDER).
// Pro Projekt existiert höchstens ein Protokoll.
type Protocol struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;uniqueIndex;not null"`
	OwnerID   uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`

	// Framework: pico oder spider (Enum-Registry).
	Framework string `json:"framework" gorm:"not null"`

	// PICO
	Population   string `json:"population,omitempty" gorm:"type:text"`
	Intervention string `json:"intervention,omitempty" gorm:"type:text"`
	Comparison   string `json:"comparison,omitempty" gorm:"type:text"`
	Outcome      string `json:"outcome,omitempty" gorm:"type:text"`

	// SPIDER
	Sample               string `json:"sample,omitempty" gorm:"type:text"`
	PhenomenonOfInterest string `json:"phenomenon_of_interest,omitempty" gorm:"type:text"`
	Design               string `json:"design,omitempty" gorm:"type:text"`
	Evaluation           string `json:"evaluation,omitempty" gorm:"type:text"`
	ResearchType         string `json:"research_type,omitempty" gorm:"type:text"`

	InclusionCriteria string `json:"inclusion_criteria,omitempty" gorm:"type:text"`
	ExclusionCriteria string `json:"exclusion_criteria,omitempty" gorm:"type:text"`

	// Gesperrte Protokolle sind eingefroren; Updates schlagen mit Conflict fehl.
	Locked bool `json:"locked" gorm:"default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (Protocol) TableName() string {
	return "protocols"
}
