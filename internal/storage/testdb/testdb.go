// Package testdb starts a throwaway Postgres for integration tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Open returns a database handle for integration tests. TEST_DB_DSN points at
// an existing server; otherwise a postgres:16 container is started and
// terminated through t.Cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		db := connect(t, dsn)
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_USER":     "test",
			"POSTGRES_DB":       "cases",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	db := connect(t, fmt.Sprintf("postgres://test:test@%s:%s/cases?sslmode=disable", host, port.Port()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func connect(t testing.TB, dsn string) *sql.DB {
	t.Helper()

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				return db
			}
			_ = db.Close()
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("connect postgres: %v", err)
	return nil
}
