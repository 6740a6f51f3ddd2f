package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateEmbeddedMigrations(t *testing.T) {
	if err := validate("", true); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestValidateDirRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not_a_migration.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validate(dir, false); err == nil {
		t.Fatal("expected invalid file name to fail")
	}
}
