package main

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func backupObject(key string, age time.Duration) types.Object {
	ts := time.Now().UTC().Add(-age)
	return types.Object{Key: aws.String(key), LastModified: &ts}
}

func TestStaleBackupKeys(t *testing.T) {
	objects := []types.Object{
		backupObject("backups/b.sql.gz", 2*time.Hour),
		backupObject("backups/d.sql.gz", 4*time.Hour),
		backupObject("backups/a.sql.gz", 1*time.Hour),
		backupObject("backups/c.sql.gz", 3*time.Hour),
	}

	got := staleBackupKeys(objects, 2)
	want := []string{"backups/c.sql.gz", "backups/d.sql.gz"}
	if len(got) != len(want) {
		t.Fatalf("staleBackupKeys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("staleBackupKeys = %v, want %v", got, want)
		}
	}
}

func TestStaleBackupKeysNothingToRotate(t *testing.T) {
	objects := []types.Object{
		backupObject("backups/a.sql.gz", time.Hour),
		backupObject("backups/b.sql.gz", 2*time.Hour),
	}
	if got := staleBackupKeys(objects, 4); got != nil {
		t.Errorf("expected nil when fewer backups than keep, got %v", got)
	}
	if got := staleBackupKeys(nil, 4); got != nil {
		t.Errorf("expected nil for empty listing, got %v", got)
	}
}
