package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSyncRunLifecyclePostgres(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()
	pg := NewPostgresStore(db)

	id := uuid.NewString()
	started := time.Now().UTC().Truncate(time.Millisecond)
	if err := pg.BeginSyncRun(ctx, id, "manual", started); err != nil {
		t.Fatalf("BeginSyncRun failed: %v", err)
	}

	run, err := pg.GetSyncRun(ctx, id)
	if err != nil {
		t.Fatalf("GetSyncRun failed: %v", err)
	}
	if run.Status != SyncRunRunning || run.FinishedAt != nil {
		t.Fatalf("expected running run without finish time, got %+v", run)
	}

	finished := started.Add(3 * time.Second)
	err = pg.FinishSyncRun(ctx, id, SyncRunResult{
		Status:     SyncRunFailed,
		FinishedAt: finished,
		HTTPStatus: 500,
		Error:      "upstream returned HTTP 500",
	})
	if err != nil {
		t.Fatalf("FinishSyncRun failed: %v", err)
	}

	runs, err := pg.ListSyncRuns(ctx, 5)
	if err != nil {
		t.Fatalf("ListSyncRuns failed: %v", err)
	}
	if len(runs) == 0 || runs[0].ID != id {
		t.Fatalf("expected newest run %s first, got %+v", id, runs)
	}
	if runs[0].HTTPStatus != 500 || runs[0].FinishedAt == nil || !runs[0].FinishedAt.Equal(finished) {
		t.Errorf("unexpected finished run: %+v", runs[0])
	}

	_, _ = db.ExecContext(ctx, `DELETE FROM sync_runs WHERE id = $1`, id)
}

func TestFinishUnknownSyncRunPostgres(t *testing.T) {
	db := openTestDatabase(t)
	pg := NewPostgresStore(db)

	err := pg.FinishSyncRun(context.Background(), uuid.NewString(), SyncRunResult{
		Status:     SyncRunSucceeded,
		FinishedAt: time.Now(),
	})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := applyDownMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

// openTestDatabase connects to TEST_DATABASE_URL and applies migrations, or
// skips the test when no database is configured.
func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		name    string
	}
	downs := make([]migration, 0)

	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		downs = append(downs, migration{version: match[1], name: entry.Name()})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := fs.ReadFile(migrations, down.name)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}

	return nil
}
