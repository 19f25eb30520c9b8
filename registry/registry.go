// Package registry verwaltet die erlaubten Werte der kategorischen Felder.
// Die Menge ist additiv versioniert: Werte können registriert, aber nie
// entfernt oder umbenannt werden, damit historische Zeilen gültig bleiben.
package registry

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"searchmatic/errs"
	"searchmatic/models"
)

// Registrierte Felder.
const (
	FieldProjectType       = "project_type"
	FieldProjectStatus     = "project_status"
	FieldStudyType         = "study_type"
	FieldStudyStatus       = "study_status"
	FieldProtocolFramework = "protocol_framework"
)

// defaults enthält die beim Seeding angelegten Startwerte. Der jeweils erste
// Wert ist der Default für neue Zeilen.
var defaults = map[string][]string{
	FieldProjectType: {
		"systematic_review", "meta_analysis", "scoping_review",
		"narrative_review", "umbrella_review", "custom",
	},
	FieldProjectStatus: {
		"draft", "active", "review", "completed", "archived",
	},
	FieldStudyType: {
		"article", "thesis", "book", "conference_paper", "report", "patent", "other",
	},
	FieldStudyStatus: {
		"pending", "screening", "included", "excluded", "duplicate", "extracted",
	},
	FieldProtocolFramework: {
		"pico", "spider",
	},
}

// Registry hält die registrierten Enum-Werte aus der Datenbank in einem
// RWMutex-geschützten Cache. Register schreibt durch.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]map[string]bool
}

// Seed legt die Default-Werte in der enum_values-Tabelle an. Idempotent:
// bereits vorhandene Werte werden übersprungen.
func Seed(db *gorm.DB) error {
	for field, vals := range defaults {
		for _, v := range vals {
			ev := models.EnumValue{Field: field, Value: v}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ev).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// New lädt alle registrierten Werte aus der Datenbank in den Cache.
func New(db *gorm.DB, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		db:     db,
		logger: logger,
		values: make(map[string]map[string]bool),
	}
	var rows []models.EnumValue
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if r.values[row.Field] == nil {
			r.values[row.Field] = make(map[string]bool)
		}
		r.values[row.Field][row.Value] = true
	}
	logger.Info("Enum-Registry geladen", zap.Int("values", len(rows)))
	return r, nil
}

// IsValid prüft, ob value aktuell ein registrierter Wert des Feldes ist.
func (r *Registry) IsValid(field, value string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[field][value]
}

// Register fügt einen neuen erlaubten Wert hinzu. Erneutes Registrieren eines
// vorhandenen Wertes ist ein No-op, kein Fehler.
func (r *Registry) Register(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errs.NewInvalidEnumValue(field, value)
	}
	if _, known := defaults[field]; !known {
		return errs.NewInvalidEnumValue("field", field)
	}
	if r.IsValid(field, value) {
		return nil
	}

	ev := models.EnumValue{Field: field, Value: value}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&ev).Error; err != nil {
		return errs.NewDatabaseError("register", "enum value", err)
	}

	r.mu.Lock()
	if r.values[field] == nil {
		r.values[field] = make(map[string]bool)
	}
	r.values[field][value] = true
	r.mu.Unlock()

	r.logger.Info("Enum-Wert registriert", zap.String("field", field), zap.String("value", value))
	return nil
}

// Values gibt die aktuell registrierten Werte eines Feldes zurück, damit
// Aufrufer die gültige Menge abfragen können.
func (r *Registry) Values(field string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vals := make([]string, 0, len(r.values[field]))
	// Default-Reihenfolge zuerst, nachregistrierte Werte dahinter.
	for _, v := range defaults[field] {
		if r.values[field][v] {
			vals = append(vals, v)
		}
	}
	seeded := make(map[string]bool, len(defaults[field]))
	for _, v := range defaults[field] {
		seeded[v] = true
	}
	var extra []string
	for v := range r.values[field] {
		if !seeded[v] {
			extra = append(extra, v)
		}
	}
	sort.Strings(extra)
	return append(vals, extra...)
}

// Default gibt den Wert zurück, der verwendet wird, wenn der Aufrufer das
// Feld beim Anlegen weglässt.
func (r *Registry) Default(field string) string {
	if vals, ok := defaults[field]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// KnownField prüft, ob der Feldname eine verwaltete Enumeration bezeichnet.
func KnownField(field string) bool {
	_, ok := defaults[field]
	return ok
}
