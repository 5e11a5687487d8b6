package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kirill483/auth-notify/db"
)

type PostgresStartRequest struct {
	User     string
	Password string
	DB       string
}

type PostgresStartResponse struct {
	Host string
	Port string
	URL  string
}

func StartPostgres(ctx context.Context, cfg PostgresStartRequest) (PostgresStartResponse, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     cfg.User,
			"POSTGRES_PASSWORD": cfg.Password,
			"POSTGRES_DB":       cfg.DB,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		log.Fatalf("failed to get host: %v", err)
	}

	port, err := cont.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("failed to get port: %v", err)
	}

	closer := func() {
		_ = cont.Terminate(ctx)
	}
	return PostgresStartResponse{
		Host: host,
		Port: port.Port(),
		URL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.User, cfg.Password, host, port.Port(), cfg.DB),
	}, closer
}

type RedisStartResponse struct {
	Addr string
}

func StartRedis(ctx context.Context) (RedisStartResponse, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:8.4-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("failed to start redis container: %v", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		log.Fatalf("failed to get host: %v", err)
	}

	port, err := cont.MappedPort(ctx, "6379/tcp")
	if err != nil {
		log.Fatalf("failed to get port: %v", err)
	}

	closer := func() {
		_ = cont.Terminate(ctx)
	}
	return RedisStartResponse{Addr: host + ":" + port.Port()}, closer
}

// RunMigrations drops every object and re-applies the embedded migrations, so each
// test starts from an empty schema.
func RunMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		t.Fatalf("failed to get postgres driver: %v", err)
	}

	src, err := iofs.New(db.MigrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to open migrations: %v", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "test", driver)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}

	if err := migrator.Down(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to drop existing db objects: %v", err)
	}

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to run migrations: %v", err)
	}
}

type dbQuery struct {
	t   *testing.T
	row *sql.Row
}

func Query(t *testing.T, db *sql.DB, query string, args ...any) *dbQuery {
	t.Helper()

	row := db.QueryRow(query, args...)
	require.NoError(t, row.Err())

	return &dbQuery{
		t:   t,
		row: row,
	}
}

func (q *dbQuery) AsInt64() int64 {
	q.t.Helper()

	var id int64
	err := q.row.Scan(&id)
	require.NoError(q.t, err)
	return id
}

func (q *dbQuery) AsString() string {
	q.t.Helper()

	var s string
	err := q.row.Scan(&s)
	require.NoError(q.t, err)
	return s
}

// Exec runs a statement that returns no rows.
func Exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()

	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}
