package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AliceSyndrome285/CradleAI/internal/profile"
	"github.com/AliceSyndrome285/CradleAI/store"
	"github.com/AliceSyndrome285/CradleAI/store/db"
)

// NewTestingStore opens a migrated store for driver. sqlite stores live in
// t.TempDir(); postgres tests are skipped unless POSTGRES_TEST_DSN is set.
func NewTestingStore(ctx context.Context, t *testing.T, driver string) *store.Store {
	t.Helper()

	prof := &profile.Profile{Mode: "dev", Driver: driver, Version: "test"}
	switch driver {
	case "sqlite":
		prof.Data = t.TempDir()
		prof.DSN = filepath.Join(prof.Data, "cradle_test.db")
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN not set")
		}
		prof.DSN = dsn
	default:
		t.Fatalf("unknown driver %q", driver)
	}

	dbDriver, err := db.NewDBDriver(prof)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	ts := store.New(dbDriver, prof)
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	if driver == "postgres" {
		resetPostgres(t, ts)
	}
	t.Cleanup(func() {
		if driver == "postgres" {
			resetPostgres(t, ts)
		}
		_ = ts.Close()
	})
	return ts
}

func resetPostgres(t *testing.T, ts *store.Store) {
	if _, err := ts.GetDriver().GetDB().Exec("DELETE FROM chat_conversation"); err != nil {
		t.Logf("failed to reset postgres test data: %v", err)
	}
}

// Drivers lists the drivers each store test runs against.
func Drivers() []string {
	return []string{"sqlite", "postgres"}
}
