package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Study repräsentiert eine einzelne Studie (Artikel, Report, ...) innerhalb eines Projekts.
//
// Intendierter Status-Verlauf (nicht hart erzwungen):
// pending -> screening -> {included, excluded, duplicate}, included -> extracted.
type Study struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// FK auf das Eltern-Projekt; unveränderlich.
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;index;not null"`

	// Denormalisiert vom Eltern-Projekt übernommen, nie direkt editierbar.
	OwnerID uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`

	Title   string `json:"title" gorm:"not null"`
	Authors string `json:"authors,omitempty"`
	Journal string `json:"journal,omitempty"`

	DOI             string `json:"doi,omitempty" gorm:"column:doi;index"`
	PMID            string `json:"pmid,omitempty" gorm:"column:pmid;index"`
	URL             string `json:"url,omitempty"`
	PublicationYear *int   `json:"publication_year,omitempty"`

	// Kategorische Felder, validiert gegen die Enum-Registry.
	StudyType string `json:"study_type" gorm:"index;not null"`
	Status    string `json:"status" gorm:"index;not null"`

	Abstract string `json:"abstract,omitempty" gorm:"type:text"`
	FullText string `json:"full_text,omitempty" gorm:"type:text"`
	Citation string `json:"citation,omitempty" gorm:"type:text"`

	// Geordnete Liste, Duplikate erlaubt, Reihenfolge wie eingegeben.
	Keywords datatypes.JSONSlice[string] `json:"keywords,omitempty" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (Study) TableName() string {
	return "studies"
}
