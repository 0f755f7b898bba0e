package pagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/jackzampolin/relayout/internal/types"
)

// Page state kinds stored in the page_state table.
const (
	kindPageText     = "page_text"
	kindRegions      = "regions"
	kindComparison   = "comparison"
	kindReclassified = "reclassified"
)

const schemaSQL = `
create table if not exists documents (
	id          text primary key,
	filename    text not null,
	page_count  integer not null,
	created_at  timestamptz not null default now()
);
create table if not exists page_state (
	document_id text not null,
	page_number integer not null,
	kind        text not null,
	payload     jsonb not null,
	updated_at  timestamptz not null default now(),
	primary key (document_id, page_number, kind)
);`

// PostgresStore persists page state in PostgreSQL through the pgx driver.
// Each kind of page state is a JSON payload keyed by (document, page, kind).
type PostgresStore struct {
	DB *sql.DB
}

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects, pings, and creates the schema if missing.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is empty")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	s := &PostgresStore{DB: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables used by the store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, doc Document) error {
	const q = `
insert into documents(id, filename, page_count, created_at)
values ($1,$2,$3,$4)
on conflict (id)
do update set filename=excluded.filename, page_count=excluded.page_count`
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, q, doc.ID, doc.Filename, doc.PageCount, doc.CreatedAt)
	return err
}

func (s *PostgresStore) Document(ctx context.Context, id string) (*Document, error) {
	const q = `select id, filename, page_count, created_at from documents where id=$1`
	var doc Document
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&doc.ID, &doc.Filename, &doc.PageCount, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) PutPageText(ctx context.Context, key types.PageKey, page PageText) error {
	return s.put(ctx, key, kindPageText, page)
}

func (s *PostgresStore) PageText(ctx context.Context, key types.PageKey) (*PageText, error) {
	var page PageText
	if err := s.get(ctx, key, kindPageText, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *PostgresStore) PutRegions(ctx context.Context, key types.PageKey, regions []types.Region) error {
	return s.put(ctx, key, kindRegions, regions)
}

func (s *PostgresStore) Regions(ctx context.Context, key types.PageKey) ([]types.Region, error) {
	var regions []types.Region
	if err := s.get(ctx, key, kindRegions, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func (s *PostgresStore) PutComparison(ctx context.Context, key types.PageKey, cmp Comparison) error {
	return s.put(ctx, key, kindComparison, cmp)
}

func (s *PostgresStore) Comparison(ctx context.Context, key types.PageKey) (*Comparison, error) {
	var cmp Comparison
	if err := s.get(ctx, key, kindComparison, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

func (s *PostgresStore) PutReclassified(ctx context.Context, key types.PageKey, regions []types.Region) error {
	return s.put(ctx, key, kindReclassified, regions)
}

func (s *PostgresStore) Reclassified(ctx context.Context, key types.PageKey) ([]types.Region, error) {
	var regions []types.Region
	if err := s.get(ctx, key, kindReclassified, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func (s *PostgresStore) put(ctx context.Context, key types.PageKey, kind string, v any) error {
	js, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	const q = `
insert into page_state(document_id, page_number, kind, payload)
values ($1,$2,$3,$4)
on conflict (document_id, page_number, kind)
do update set payload=excluded.payload, updated_at=now()`
	_, err = s.DB.ExecContext(ctx, q, key.DocumentID, key.Page, kind, js)
	return err
}

func (s *PostgresStore) get(ctx context.Context, key types.PageKey, kind string, v any) error {
	const q = `select payload from page_state where document_id=$1 and page_number=$2 and kind=$3`
	var js []byte
	err := s.DB.QueryRowContext(ctx, q, key.DocumentID, key.Page, kind).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(js, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
