package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SetupTestDB connects to the database named by TEST_DATABASE_URL and skips
// the test when it is unset or unreachable. The connection is closed when
// the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Test database unreachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CleanupDrafts empties the draft table.
func CleanupDrafts(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("DELETE FROM intake_drafts"); err != nil {
		t.Logf("Warning: failed to clean intake_drafts: %v", err)
	}
}
