//go:build integration

// Package integrationtest provides db helpers used in integration tests.
package integrationtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"

	_ "github.com/lib/pq"
)

const (
	postgresImage          = "postgres:16-alpine"
	postgresUser           = "root"
	postgresPassword       = "secret"
	postgresDatabase       = "ledger"
	postgresStartupTimeout = 2 * time.Minute
)

func dsn(host string, port nat.Port) string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser,
		postgresPassword,
		host,
		port.Port(),
		postgresDatabase,
	)
}

// MigrationURL points at the migrations from a package two levels below the
// module root.
const MigrationURL = "file://../../configs/db/migration"

// StartPostgres starts a Postgres container and returns its connection url.
// The test is skipped when docker is not available.
func StartPostgres(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	port := nat.Port("5432/tcp")

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDatabase,
		},
		WaitingFor: wait.ForSQL(port, "postgres", dsn).WithStartupTimeout(postgresStartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	return dsn(host, mappedPort)
}

// SetupDB starts a Postgres container, migrates it all the way up and
// returns a connection to it.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()

	source := StartPostgres(t)

	if err := dbpkg.Migrate(MigrationURL, source); err != nil {
		t.Fatalf("dbpkg.Migrate(%v) returned error: %v", MigrationURL, err)
	}

	db, err := dbpkg.Setup(context.Background(), "postgres", source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db cleanup failed. err: %v", err)
		}
	})

	return db
}

// Flush flushes all db tables without droping.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE transfers, accounts CASCADE`); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SeedAccounts inserts the given accounts in a single transaction.
func SeedAccounts(t *testing.T, db *sql.DB, accounts ...domain.Account) {
	t.Helper()

	ctx := context.Background()
	repo := accountrepo.NewRepoPGS(db)

	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("repo.Begin() returned error: %v", err)
	}

	for _, a := range accounts {
		if err := tx.Insert(ctx, a); err != nil {
			_ = tx.Rollback(ctx)
			t.Fatalf("tx.Insert(ctx, %+v) returned error: %v", a, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("tx.Commit() returned error: %v", err)
	}
}
