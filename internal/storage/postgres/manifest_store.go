// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

const defaultTable = "document_manifest"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ManifestStoreConfig controls the Postgres connection pool used for
// manifest rows.
type ManifestStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ManifestStore writes one row per stored document. It expects a table like:
//
//	CREATE TABLE document_manifest (
//		object_key   TEXT PRIMARY KEY,
//		run_id       TEXT NOT NULL,
//		doc_date     DATE NOT NULL,
//		uri          TEXT NOT NULL,
//		locator      TEXT,
//		content_type TEXT,
//		content_hash TEXT,
//		size_bytes   BIGINT,
//		item_count   INTEGER,
//		stored_at    TIMESTAMPTZ NOT NULL
//	);
type ManifestStore struct {
	pool  execCloser
	table string
}

// NewManifestStore creates a Postgres-backed ManifestStore using the
// provided config.
func NewManifestStore(ctx context.Context, cfg ManifestStoreConfig) (*ManifestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ManifestStore{pool: pool, table: table}, nil
}

// NewManifestStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewManifestStoreWithPool(pool execCloser, table string) (*ManifestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ManifestStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ManifestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordDocument inserts a manifest row. A row for the same key is left
// untouched.
func (s *ManifestStore) RecordDocument(ctx context.Context, entry crawler.ManifestEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("manifest store is not configured")
	}
	if entry.Key == "" {
		return fmt.Errorf("object key is required")
	}
	query, args, err := sq.Insert(s.table).
		Columns(
			"object_key",
			"run_id",
			"doc_date",
			"uri",
			"locator",
			"content_type",
			"content_hash",
			"size_bytes",
			"item_count",
			"stored_at",
		).
		Values(
			entry.Key,
			entry.RunID,
			entry.Date.Time(),
			entry.URI,
			entry.Locator,
			entry.ContentType,
			entry.ContentHash,
			int64(entry.Bytes),
			entry.Items,
			entry.StoredAt,
		).
		Suffix("ON CONFLICT (object_key) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build manifest insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert manifest row: %w", err)
	}
	return nil
}
