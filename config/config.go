package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	// Secret für die Verifikation der Bearer-Tokens (HS256).
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	PubMedBaseURL  string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey   string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail    string `envconfig:"PUBMED_EMAIL"`
	PubMedTool     string `envconfig:"PUBMED_TOOL" default:"searchmatic-import"`
	PubMedMaxPages int    `envconfig:"PUBMED_MAX_PAGES" default:"50"`

	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`

	// Unpaywall-API für freie Volltext-Links (optional)
	UnpaywallBaseURL string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail   string `envconfig:"UNPAYWALL_EMAIL"`

	// Provider-Konfiguration für den Studien-Import
	EnabledProviders string `envconfig:"ENABLED_PROVIDERS" default:"pubmed,europepmc"`
	ImportMaxResults int    `envconfig:"IMPORT_MAX_RESULTS" default:"200"`

	// Export-Storage (S3-kompatibel)
	ExportS3Key    string `envconfig:"EXPORT_S3_KEY" required:"true"`
	ExportS3Secret string `envconfig:"EXPORT_S3_SECRET" required:"true"`
	ExportS3URL    string `envconfig:"EXPORT_S3_URL" required:"true"`
	ExportS3Region string `envconfig:"EXPORT_S3_REGION" required:"true"`
	ExportS3Bucket string `envconfig:"EXPORT_S3_BUCKET" required:"true"`

	// Retention für abgelaufene Exporte, bereinigt per Cron
	CronSchedule        string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	ExportRetentionDays int    `envconfig:"EXPORT_RETENTION_DAYS" default:"14"`

	// Anzahl der DB-Backups, die cmd/backup im Bucket behält
	BackupKeep int `envconfig:"BACKUP_KEEP" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
