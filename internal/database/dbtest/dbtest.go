// Package dbtest opens an isolated PostgreSQL schema for store-backed tests.
// Tests are skipped unless MATCHSTATS_TEST_DATABASE_URL is set.
package dbtest

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"matchstats/internal/database"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const EnvDSN = "MATCHSTATS_TEST_DATABASE_URL"

// Open returns a migrated database bound to a fresh schema that is dropped
// when the test finishes.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set, skipping store-backed test", EnvDSN)
	}

	admin, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: database.NewLogger(time.Second)})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	schema := "mst_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := admin.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	db, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), &gorm.Config{Logger: database.NewLogger(time.Second)})
	if err != nil {
		t.Fatalf("connect to schema %s: %v", schema, err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		admin.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		if sqlDB, err := admin.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}
