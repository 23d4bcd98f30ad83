// Package pgstore is a docstore backend on PostgreSQL, keeping each document
// as a jsonb value.
package pgstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eringen/microfeed/docstore"
)

func init() {
	docstore.Register(docstore.DriverPostgres, func(ctx context.Context, dsn string) (docstore.Store, error) {
		return Connect(ctx, dsn)
	})
}

var reFieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a docstore.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and ensures the documents table exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 64
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
    seq BIGSERIAL,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_created ON documents (collection, (data->'createdAt'));
`)
	if err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Create implements docstore.Store.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(data)); err != nil {
		return "", err
	}
	return id, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data::text FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Record{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Record{}, err
	}
	fields, err := decode(data)
	if err != nil {
		return docstore.Record{}, err
	}
	return docstore.Record{ID: id, Fields: fields}, nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Record, error) {
	sql, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.Record
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		fields, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, docstore.Record{ID: id, Fields: fields})
	}
	return out, rows.Err()
}

// buildQuery renders q as SQL. Equality filters use jsonb containment so a
// single parameter carries all of them.
func buildQuery(collection string, q docstore.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, data::text FROM documents WHERE collection = $1`)
	if len(q.Where) > 0 {
		for k := range q.Where {
			if !reFieldName.MatchString(k) {
				return "", nil, fmt.Errorf("pgstore: invalid field name %q", k)
			}
		}
		where, err := json.Marshal(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(where))
		b.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}
	if q.OrderBy != "" {
		if !reFieldName.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("pgstore: invalid field name %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		b.WriteString(` ORDER BY data->'` + q.OrderBy + `' ` + dir + `, seq ` + dir)
	} else {
		b.WriteString(` ORDER BY seq`)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	return b.String(), args, nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	set := p.Set
	if set == nil {
		set = map[string]any{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	unset := p.Unset
	if unset == nil {
		unset = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = (data || $3::jsonb) - $4::text[] WHERE collection = $1 AND id = $2`,
		collection, id, string(data), unset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`,
		collection, id, string(data))
	return err
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

func decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
