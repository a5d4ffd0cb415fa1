// Package sqlstore provides a DocumentStore on a SQL database (PostgreSQL or SQLite).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

const schema = `
CREATE TABLE IF NOT EXISTS flow_documents (
	doc_key    TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	version    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Store implements ports.DocumentStore on a flow_documents table.
// Versions are content hashes; the compare-and-swap is a conditional UPDATE.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(ctx, db, Postgres)
}

// OpenSQLite opens a SQLite database file in WAL mode and migrates the schema.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY on concurrent conditional updates.
	db.SetMaxOpenConns(1)
	return New(ctx, db, SQLite)
}

// New wraps an open database and creates the table if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for the dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get reads a document.
func (s *Store) Get(ctx context.Context, key string) (ports.Object, error) {
	var body, version string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT body, version FROM flow_documents WHERE doc_key = ?`), key,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Object{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	if err != nil {
		return ports.Object{}, fmt.Errorf("get %s: %w", key, err)
	}
	return ports.Object{Body: []byte(body), Version: version}, nil
}

// Version returns the current version of key.
func (s *Store) Version(ctx context.Context, key string) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT version FROM flow_documents WHERE doc_key = ?`), key,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("version %s: %w", key, err)
	}
	return version, nil
}

// Put inserts (IfMatch empty) or conditionally updates the document.
func (s *Store) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	version := domain.ContentVersion(req.Body)
	now := time.Now().UTC()

	var res sql.Result
	var err error
	if req.IfMatch == "" {
		res, err = s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO flow_documents (doc_key, body, version, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (doc_key) DO NOTHING`),
			req.Key, string(req.Body), version, now)
	} else {
		res, err = s.db.ExecContext(ctx, s.rebind(
			`UPDATE flow_documents SET body = ?, version = ?, updated_at = ? WHERE doc_key = ? AND version = ?`),
			string(req.Body), version, now, req.Key, req.IfMatch)
	}
	if err != nil {
		return "", fmt.Errorf("put %s: %w", req.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("put %s: %w", req.Key, err)
	}
	if n == 0 {
		current, err := s.Version(ctx, req.Key)
		if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
			return "", err
		}
		return "", &domain.ConflictError{Key: req.Key, Expected: req.IfMatch, Current: current}
	}
	return version, nil
}

// List returns the keys under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT doc_key FROM flow_documents WHERE doc_key LIKE ? ESCAPE '\' ORDER BY doc_key`),
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
