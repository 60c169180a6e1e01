package store

import (
	"strings"
	"testing"
)

func TestPendingMigrationsFiltersAppliedAndSorts(t *testing.T) {
	names := []string{
		"002_documents.up.sql",
		"001_init.up.sql",
		"001_init.down.sql",
		"003_reports.up.sql",
		"README.md",
	}
	applied := map[string]bool{"001_init.up.sql": true}

	got := pendingMigrations(names, applied)
	want := "002_documents.up.sql,003_reports.up.sql"
	if strings.Join(got, ",") != want {
		t.Errorf("pending = %v, want %v", got, want)
	}
}

func TestPendingMigrationsAllApplied(t *testing.T) {
	names := []string{"001_init.up.sql"}
	applied := map[string]bool{"001_init.up.sql": true}

	if got := pendingMigrations(names, applied); len(got) != 0 {
		t.Errorf("pending = %v, want none", got)
	}
}
