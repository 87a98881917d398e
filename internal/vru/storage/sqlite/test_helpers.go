package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/validation.report/internal/db"
)

// setupTestDB creates a migrated sqlite database in a temp directory.
// Using the real migrations keeps the tests honest about the schema.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return database
}
