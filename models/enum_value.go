package models

import "time"

// EnumValue ist ein registrierter Wert einer Enumeration (z.B. project_type).
// Werte werden nur hinzugefügt, nie entfernt oder umbenannt — sonst würden
// historische Zeilen ungültig.
type EnumValue struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Field string `json:"field" gorm:"index:idx_enum_values_field_value,unique;size:64;not null"`
	Value string `json:"value" gorm:"index:idx_enum_values_field_value,unique;size:128;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (EnumValue) TableName() string {
	return "enum_values"
}
