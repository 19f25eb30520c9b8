package database

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tabellen mit owner-basierter Zeilen-Isolation.
var ownerScopedTables = []string{"projects", "studies", "protocols", "exports"}

// ownerIsolationStatements baut die Policy-Statements für eine Tabelle.
// FORCE ist notwendig: die verbindende Rolle hat die Tabellen migriert und
// ist damit Owner — Owner umgehen Policies, solange sie nicht erzwungen sind.
func ownerIsolationStatements(table string) []string {
	return []string{
		fmt.Sprintf(`ALTER TABLE %s ENABLE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`ALTER TABLE %s FORCE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`DROP POLICY IF EXISTS %s_owner_isolation ON %s`, table, table),
		fmt.Sprintf(
			`CREATE POLICY %s_owner_isolation ON %s
			 USING (owner_id = current_setting('app.owner_id', true)::uuid)
			 WITH CHECK (owner_id = current_setting('app.owner_id', true)::uuid)`,
			table, table,
		),
	}
}

// maintenanceStatements erlaubt Wartungsjobs (Export-Retention per Cron) den
// owner-übergreifenden Zugriff, aber nur wenn app.maintenance in der
// Transaktion gesetzt ist. Policies sind permissiv, die Bedingungen werden
// also ODER-verknüpft.
func maintenanceStatements(table string) []string {
	return []string{
		fmt.Sprintf(`DROP POLICY IF EXISTS %s_maintenance ON %s`, table, table),
		fmt.Sprintf(
			`CREATE POLICY %s_maintenance ON %s
			 USING (current_setting('app.maintenance', true) = 'on')`,
			table, table,
		),
	}
}

// enableRowLevelSecurity legt pro Tabelle eine Policy an, die Zeilen auf den
// in app.owner_id gesetzten Owner beschränkt. Das Zugriffs-Prädikat wird
// damit vom Storage selbst durchgesetzt und nicht nur in der Service-Schicht
// gefiltert. Auf anderen Dialekten (SQLite in Tests) ist das ein No-op.
func enableRowLevelSecurity(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, table := range ownerScopedTables {
		for _, stmt := range ownerIsolationStatements(table) {
			if err := db.Exec(stmt).Error; err != nil {
				return err
			}
		}
	}
	// Nur exports: die Retention läuft ohne Owner-Kontext.
	for _, stmt := range maintenanceStatements("exports") {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// WithOwner führt fn in einer Transaktion aus, in der app.owner_id für die
// RLS-Policies gesetzt ist. Alle Service-Operationen laufen hierüber; das
// Cascade-Delete eines Projekts ist damit all-or-nothing.
func WithOwner(db *gorm.DB, ownerID uuid.UUID, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`SELECT set_config('app.owner_id', ?, true)`, ownerID.String()).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// WithMaintenance führt fn in einer Transaktion mit gesetztem
// app.maintenance aus, damit Wartungsjobs die Owner-Isolation der
// exports-Tabelle passieren.
func WithMaintenance(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`SELECT set_config('app.maintenance', 'on', true)`).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
}
