package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects placeholder style and DDL for a SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var schemas = map[Dialect]string{
	DialectSQLite: `
		CREATE TABLE IF NOT EXISTS records (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (collection, key)
		)`,
	DialectPostgres: `
		CREATE TABLE IF NOT EXISTS records (
			seq        BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (collection, key)
		)`,
}

// SQLBackend stores every collection in a single records table. It runs on
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib driver).
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLBackend wraps an open pool and creates the records table if needed.
func NewSQLBackend(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	schema, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("NewSQLBackend: unsupported dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, storageErr("NewSQLBackend", err)
	}
	return &SQLBackend{db: db, dialect: dialect}, nil
}

func (b *SQLBackend) Collection(name string) Collection {
	return &sqlCollection{b: b, name: name}
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// rebind rewrites '?' placeholders to $1, $2, ... for PostgreSQL.
func (b *SQLBackend) rebind(query string) string {
	if b.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

type sqlCollection struct {
	b    *SQLBackend
	name string
}

func (c *sqlCollection) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.b.db.ExecContext(ctx, c.b.rebind(`
		INSERT INTO records (collection, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		c.name, key, string(value), time.Now().UTC(),
	)
	if err != nil {
		return storageErr("Put "+c.name, err)
	}
	return nil
}

func (c *sqlCollection) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := c.b.db.QueryRowContext(ctx, c.b.rebind(`
		SELECT value FROM records WHERE collection = ? AND key = ?`),
		c.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("Get "+c.name, err)
	}
	return []byte(value), nil
}

func (c *sqlCollection) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	rows, err := c.b.db.QueryContext(ctx, c.b.rebind(`
		SELECT key, value FROM records WHERE collection = ? ORDER BY seq`),
		c.name,
	)
	if err != nil {
		return storageErr("Scan "+c.name, err)
	}

	// Read everything before calling fn: SQLite runs with a single
	// connection and fn may issue its own queries.
	type record struct {
		key   string
		value string
	}
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.key, &r.value); err != nil {
			_ = rows.Close()
			return storageErr("Scan "+c.name, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return storageErr("Scan "+c.name, err)
	}
	_ = rows.Close()

	for _, r := range records {
		if err := fn(r.key, []byte(r.value)); err != nil {
			return err
		}
	}
	return nil
}
