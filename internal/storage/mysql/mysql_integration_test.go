//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"concierge/internal/domain"
	mysqlrepo "concierge/internal/storage/mysql"
)

func pday(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=concierge",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/concierge?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func TestRepo_MySQL_CatalogRoundTripAndTurns(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	if _, err := repo.LoadCatalog(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty store: want ErrNotFound, got %v", err)
	}

	first := domain.CatalogData{
		Properties: []domain.Property{
			{ID: 20, Name: "Mountain Lodge", City: "Zermatt", Timezone: "Europe/Zurich", MandatoryServices: []string{"city tax"}, Active: true},
			{ID: 10, Name: "Harbour View", City: "Lisbon", Active: true},
		},
		RoomTypes: []domain.RoomType{
			{ID: 201, PropertyID: 20, Name: "Alpine Double", Type: "double", Occupancy: 2, Inventory: 1},
			{ID: 101, PropertyID: 10, Name: "Standard", Occupancy: 2, Inventory: 5},
		},
		RateCodes: []domain.RateCode{
			{ID: 2, PropertyID: 10, Name: "Summer", ValidFrom: pday("2025-06-01"), ValidTo: pday("2025-08-31")},
			{ID: 1, PropertyID: 10, Name: "Flex"},
		},
	}
	if err := repo.SaveCatalog(ctx, first); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	got, err := repo.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(got.Properties) != 2 || got.Properties[0].ID != 20 || got.Properties[0].Timezone != "Europe/Zurich" {
		t.Fatalf("properties not in source order: %+v", got.Properties)
	}
	if len(got.Properties[0].MandatoryServices) != 1 {
		t.Fatalf("services lost: %+v", got.Properties[0])
	}
	if len(got.RateCodes) != 2 || got.RateCodes[0].ID != 2 || got.RateCodes[0].ValidTo == nil {
		t.Fatalf("rate codes: %+v", got.RateCodes)
	}

	// second snapshot drops property 20 and its rooms
	second := domain.CatalogData{
		Properties: []domain.Property{{ID: 10, Name: "Harbour View Hotel", City: "Lisbon", Active: true}},
		RoomTypes:  []domain.RoomType{{ID: 101, PropertyID: 10, Name: "Standard", Occupancy: 2, Inventory: 4}},
	}
	if err := repo.SaveCatalog(ctx, second); err != nil {
		t.Fatalf("SaveCatalog second: %v", err)
	}
	got, err = repo.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog second: %v", err)
	}
	if len(got.Properties) != 1 || got.Properties[0].Name != "Harbour View Hotel" {
		t.Fatalf("properties after replace: %+v", got.Properties)
	}
	if len(got.RoomTypes) != 1 || got.RoomTypes[0].Inventory != 4 || len(got.RateCodes) != 0 {
		t.Fatalf("children after replace: rooms=%+v rates=%+v", got.RoomTypes, got.RateCodes)
	}

	if err := repo.LogMiss(ctx, 20, "room_types", 404, "not found"); err != nil {
		t.Fatalf("LogMiss: %v", err)
	}
	if err := repo.LogMiss(ctx, 20, "room_types", 403, "forbidden"); err != nil {
		t.Fatalf("LogMiss again: %v", err)
	}

	rec := domain.TurnRecord{
		ID:         uuid.NewString(),
		SessionID:  uuid.NewString(),
		Attempt:    1,
		State:      "success",
		Intent:     domain.IntentReservation,
		Confidence: 0.9,
		Valid:      true,
		At:         time.Now().UTC(),
	}
	if err := repo.RecordTurn(ctx, rec); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns WHERE session_id = ?", rec.SessionID).Scan(&n); err != nil || n != 1 {
		t.Fatalf("turns count=%d err=%v", n, err)
	}
}
