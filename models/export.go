package models

import (
	"time"

	"github.com/google/uuid"
)

// Export protokolliert einen erzeugten Studien-Export (CSV im Objekt-Storage).
type Export struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;index;not null"`
	OwnerID   uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`

	Format     string `json:"format" gorm:"default:'csv'"`
	StudyCount int    `json:"study_count"`
	S3Key      string `json:"s3_key"`
	Link       string `json:"link"`
}

// TableName gibt explizit den Tabellennamen an.
func (Export) TableName() string {
	return "exports"
}
