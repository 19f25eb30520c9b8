package models

import (
	"time"

	"github.com/google/uuid"
)

// Project repräsentiert ein Review-Projekt (z.B. ein Systematic Review) eines Nutzers.
// Sichtbarkeit und Mutation sind strikt auf den Owner beschränkt.
type Project struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Owner-Identität aus dem verifizierten Token; unveränderlich.
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`

	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	// Kategorische Felder, validiert gegen die Enum-Registry.
	ProjectType string `json:"project_type" gorm:"index;not null"`
	Status      string `json:"status" gorm:"index;not null"`

	ResearchDomain string `json:"research_domain,omitempty"`

	// Fortschritt in Prozent, immer in [0,100].
	ProgressPercentage int    `json:"progress_percentage" gorm:"default:0"`
	CurrentStage       string `json:"current_stage" gorm:"default:'Planning'"`

	// Wird bei jeder Mutation am Projekt oder an einer Kind-Study aktualisiert.
	LastActivityAt time.Time `json:"last_activity_at" gorm:"index"`

	Studies []Study `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (Project) TableName() string {
	return "projects"
}
