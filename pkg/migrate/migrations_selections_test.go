package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSelectionsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_selections.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no selections migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS selections",
		"FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE",
		"CHECK (tip_cents >= 0)",
		"ON selections (bill_id, session_id)",
		"WHERE session_id IS NOT NULL",
		"DROP TABLE IF EXISTS selections",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBillsMigrationContainsTokens(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_bills.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no bills migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bills",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_owner_token",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_share_token",
		"CREATE TABLE IF NOT EXISTS bill_items",
		"CHECK (quantity > 0)",
		"CHECK (price_cents >= 0)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
