package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"searchmatic/config"
	"searchmatic/models"
)

// Open stellt die Verbindung zur PostgreSQL-Datenbank her.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Migrate führt die Auto-Migration für alle Tabellen aus und aktiviert
// anschließend die Row-Level-Security-Policies (nur PostgreSQL).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Project{},
		&models.Study{},
		&models.Protocol{},
		&models.EnumValue{},
		&models.Export{},
	); err != nil {
		return err
	}
	return enableRowLevelSecurity(db)
}
