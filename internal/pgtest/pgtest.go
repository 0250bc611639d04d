// Package pgtest gives each test its own throwaway Postgres database.
// Tests are skipped unless TASKNEST_TEST_DATABASE_URL points at a server
// whose user may create databases.
package pgtest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasknest/backend/internal/migrate"
)

// EnvDSN names the variable holding the admin connection string.
const EnvDSN = "TASKNEST_TEST_DATABASE_URL"

// NewTestDB returns a pool on a fresh database with the schema migrations applied.
func NewTestDB(t testing.TB) *pgxpool.Pool {
	t.Helper()
	pool := NewEmptyDB(t)
	if err := migrate.Up(pool); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return pool
}

// NewEmptyDB returns a pool on a fresh database with no schema. The database
// is dropped when the test finishes.
func NewEmptyDB(t testing.TB) *pgxpool.Pool {
	t.Helper()
	baseDSN := os.Getenv(EnvDSN)
	if baseDSN == "" {
		t.Skipf("%s not set; skipping Postgres test", EnvDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := pgx.Connect(ctx, baseDSN)
	if err != nil {
		t.Fatalf("connect admin: %v", err)
	}

	dbName := sanitizeForPgIdent(uniqueDBName("tasknest", t.Name()))
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE "%s" WITH TEMPLATE template0 ENCODING 'UTF8'`, dbName)); err != nil {
		_ = admin.Close(ctx)
		t.Fatalf("create database: %v", err)
	}

	testDSN, err := replaceDBInDSN(baseDSN, dbName)
	if err != nil {
		_ = admin.Close(ctx)
		t.Fatalf("test dsn: %v", err)
	}
	pool, err := pgxpool.New(ctx, testDSN)
	if err != nil {
		_ = admin.Close(ctx)
		t.Fatalf("open test db: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if _, err := admin.Exec(dctx, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, dbName)); err != nil {
			t.Logf("drop database %s: %v", dbName, err)
		}
		_ = admin.Close(dctx)
	})
	return pool
}

// SeedAccount inserts an account with the given balance directly, bypassing the ledger.
func SeedAccount(t testing.TB, pool *pgxpool.Pool, email, role string, coin int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO accounts (id, email, role, coin) VALUES ($1, $2, $3, $4)
	`, id, email, role, coin)
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return id
}

// Balance reads an account's stored coin.
func Balance(t testing.TB, pool *pgxpool.Pool, email string) int64 {
	t.Helper()
	var coin int64
	if err := pool.QueryRow(context.Background(), `SELECT coin FROM accounts WHERE email = $1`, email).Scan(&coin); err != nil {
		t.Fatalf("read balance %s: %v", email, err)
	}
	return coin
}

// InTx runs fn in its own transaction and commits when fn returns nil.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replaceDBInDSN(dsn, newDB string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	u.Path = "/" + newDB
	return u.String(), nil
}

func uniqueDBName(prefix, testName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(testName))
	var rnd [6]byte
	_, _ = rand.Read(rnd[:])
	return fmt.Sprintf("%s_%08x_%s", prefix, h.Sum32(), hex.EncodeToString(rnd[:]))
}

func sanitizeForPgIdent(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_", "-", "_").Replace(s)
	if len(s) <= 63 {
		return s
	}
	return s[:31] + "_" + s[len(s)-31:]
}
