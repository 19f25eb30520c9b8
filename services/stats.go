package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"searchmatic/errs"
	"searchmatic/models"
)

// ProjectStats ist die Lese-Aggregation über die Studies eines Projekts.
type ProjectStats struct {
	TotalStudies    int64      `json:"total_studies"`
	PendingStudies  int64      `json:"pending_studies"`
	IncludedStudies int64      `json:"included_studies"`
	ExcludedStudies int64      `json:"excluded_studies"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
}

// ComputeStats zählt die Studies eines Projekts nach Status und ermittelt die
// letzte Änderung. Reine Lese-Aggregation zum Abfragezeitpunkt, kein Cache.
func ComputeStats(tx *gorm.DB, projectID uuid.UUID) (*ProjectStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := tx.Model(&models.Study{}).
		Select("status, count(*) as count").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.NewDatabaseError("aggregate", "studies", err)
	}

	stats := &ProjectStats{}
	for _, row := range rows {
		stats.TotalStudies += row.Count
		switch row.Status {
		case "pending":
			stats.PendingStudies = row.Count
		case "included":
			stats.IncludedStudies = row.Count
		case "excluded":
			stats.ExcludedStudies = row.Count
		}
	}

	if stats.TotalStudies > 0 {
		var latest models.Study
		err := tx.Select("updated_at").
			Where("project_id = ?", projectID).
			Order("updated_at desc").
			First(&latest).Error
		if err != nil {
			return nil, errs.NewDatabaseError("aggregate", "studies", err)
		}
		t := latest.UpdatedAt
		stats.LastUpdated = &t
	}
	return stats, nil
}
