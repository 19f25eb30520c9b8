// Backup-Utility: pg_dump der Searchmatic-Datenbank, gzip-komprimiert in den
// Export-Bucket hochladen, alte Backups rotieren. Läuft als eigener Prozess
// (z.B. per systemd-Timer) mit derselben Umgebung wie der Server.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"searchmatic/config"
	"searchmatic/storage"
)

// Backups liegen unter eigenem Prefix neben den CSV-Exporten im selben Bucket.
const backupPrefix = "backups/"

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Config load error", zap.Error(err))
	}

	logger.Info("Starte Backup der Searchmatic-Datenbank",
		zap.String("db", cfg.DBName), zap.String("bucket", cfg.ExportS3Bucket))

	dump, err := createDump(cfg)
	if err != nil {
		logger.Fatal("DB-Dump fehlgeschlagen", zap.Error(err))
	}

	client, err := storage.NewS3Client(cfg)
	if err != nil {
		logger.Fatal("S3 client creation failed", zap.Error(err))
	}

	key := fmt.Sprintf("%ssearchmatic-%s.sql.gz", backupPrefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	_, err = client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(cfg.ExportS3Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(dump),
	})
	if err != nil {
		logger.Fatal("Upload nach S3 fehlgeschlagen", zap.Error(err))
	}
	logger.Info("Backup hochgeladen",
		zap.String("key", key), zap.Int("bytes", len(dump)))

	if err := rotateBackups(client, cfg, logger); err != nil {
		logger.Fatal("Rotation alter Backups fehlgeschlagen", zap.Error(err))
	}

	logger.Info("Backup-Prozess erfolgreich abgeschlossen.")
}

// createDump ruft pg_dump mit den Verbindungsdaten aus der Server-Config auf
// und komprimiert den Dump im Stream.
func createDump(cfg *config.Config) ([]byte, error) {
	cmd := exec.Command("pg_dump",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// rotateBackups behält die neuesten BackupKeep Backups unter dem Prefix und
// löscht den Rest. CSV-Exporte im selben Bucket sind nicht betroffen.
func rotateBackups(client *s3.Client, cfg *config.Config, logger *zap.Logger) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.ExportS3Bucket),
		Prefix: aws.String(backupPrefix),
	})
	if err != nil {
		return err
	}

	stale := staleBackupKeys(output.Contents, cfg.BackupKeep)
	if len(stale) == 0 {
		logger.Info("Keine Rotation nötig", zap.Int("keep", cfg.BackupKeep))
		return nil
	}

	for _, key := range stale {
		logger.Info("Lösche altes Backup", zap.String("key", key))
		_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.ExportS3Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			logger.Warn("Konnte Backup nicht löschen", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// staleBackupKeys gibt die Keys aller Objekte zurück, die über die keep
// neuesten hinausgehen, älteste zuerst gelöscht.
func staleBackupKeys(objects []types.Object, keep int) []string {
	if len(objects) <= keep {
		return nil
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(*objects[j].LastModified)
	})

	var keys []string
	for _, obj := range objects[keep:] {
		keys = append(keys, *obj.Key)
	}
	return keys
}
