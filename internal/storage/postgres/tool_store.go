// Package postgres provides the Postgres-backed tool store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "tools"

// Config controls the Postgres connection pool used for tool rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ToolStore reads and writes tool rows. The table is expected to look like:
//
//	CREATE TABLE tools (
//	  name text PRIMARY KEY,
//	  category text NOT NULL DEFAULT '',
//	  description text NOT NULL DEFAULT '',
//	  version text NOT NULL DEFAULT '',
//	  homepage_url text NOT NULL DEFAULT '',
//	  original_download_url text NOT NULL DEFAULT '',
//	  accelerated_download_url text NOT NULL DEFAULT '',
//	  version_list jsonb NOT NULL DEFAULT '[]',
//	  icon text NOT NULL DEFAULT '',
//	  updated_at timestamptz NOT NULL,
//	  seq bigserial
//	);
type ToolStore struct {
	pool  pool
	table string
}

// NewToolStore connects a pool using cfg.
func NewToolStore(ctx context.Context, cfg Config) (*ToolStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ToolStore{pool: p, table: table}, nil
}

// NewToolStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewToolStoreWithPool(p pool, table string) (*ToolStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ToolStore{pool: p, table: name}, nil
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
func (s *ToolStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const columns = `name, category, description, version, homepage_url, original_download_url,
	accelerated_download_url, version_list, icon, updated_at`

// FindByName returns the row for name or catalog.ErrNotFound.
func (s *ToolStore) FindByName(ctx context.Context, name string) (catalog.ToolRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1`, columns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ToolRecord{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.ToolRecord{}, fmt.Errorf("select tool %q: %w", name, err)
	}
	return rec, nil
}

// Insert adds a new row.
func (s *ToolStore) Insert(ctx context.Context, record catalog.ToolRecord) error {
	if record.Name == "" {
		return fmt.Errorf("insert tool: empty name")
	}
	list, err := encodeVersions(record.VersionList)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	name,
	category,
	description,
	version,
	homepage_url,
	original_download_url,
	accelerated_download_url,
	version_list,
	icon,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)
	if _, err := s.pool.Exec(ctx, query, recordArgs(record, list)...); err != nil {
		return fmt.Errorf("insert tool %q: %w", record.Name, err)
	}
	return nil
}

// Update overwrites the row named by record.Name.
func (s *ToolStore) Update(ctx context.Context, record catalog.ToolRecord) error {
	list, err := encodeVersions(record.VersionList)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	category = $2,
	description = $3,
	version = $4,
	homepage_url = $5,
	original_download_url = $6,
	accelerated_download_url = $7,
	version_list = $8,
	icon = $9,
	updated_at = $10
WHERE name = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, recordArgs(record, list)...)
	if err != nil {
		return fmt.Errorf("update tool %q: %w", record.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tool %q: %w", record.Name, catalog.ErrNotFound)
	}
	return nil
}

// ListAll returns every row in insertion order.
func (s *ToolStore) ListAll(ctx context.Context) ([]catalog.ToolRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq`, columns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []catalog.ToolRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return out, nil
}

func recordArgs(record catalog.ToolRecord, list []byte) []any {
	return []any{
		record.Name,
		record.Category,
		record.Description,
		record.Version,
		record.HomepageURL,
		record.OriginalDownloadURL,
		record.AcceleratedDownloadURL,
		list,
		record.Icon,
		record.UpdatedAt,
	}
}

func encodeVersions(list []catalog.VersionEntry) ([]byte, error) {
	if len(list) == 0 {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal version list: %w", err)
	}
	return raw, nil
}

func scanRecord(row pgx.Row) (catalog.ToolRecord, error) {
	var (
		rec  catalog.ToolRecord
		list []byte
	)
	if err := row.Scan(
		&rec.Name,
		&rec.Category,
		&rec.Description,
		&rec.Version,
		&rec.HomepageURL,
		&rec.OriginalDownloadURL,
		&rec.AcceleratedDownloadURL,
		&list,
		&rec.Icon,
		&rec.UpdatedAt,
	); err != nil {
		return catalog.ToolRecord{}, err
	}
	if len(list) > 0 {
		if err := json.Unmarshal(list, &rec.VersionList); err != nil {
			return catalog.ToolRecord{}, fmt.Errorf("decode version list: %w", err)
		}
		if len(rec.VersionList) == 0 {
			rec.VersionList = nil
		}
	}
	return rec, nil
}
