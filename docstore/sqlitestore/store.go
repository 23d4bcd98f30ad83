// Package sqlitestore is the default docstore backend: documents are kept as
// JSON text in a single SQLite table.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eringen/microfeed/docstore"
)

func init() {
	docstore.Register(docstore.DriverSQLite, func(_ context.Context, dsn string) (docstore.Store, error) {
		return New(dsn)
	})
}

var reFieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store wraps a SQLite database holding documents for every collection.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the timeline read while a post is being written; writers wait
	// on the busy timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_created
    ON documents (collection, json_extract(data, '$.createdAt'));
`)
	return err
}

// Create implements docstore.Store.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, id, string(data)); err != nil {
		return "", err
	}
	return id, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	for k, v := range q.Where {
		if !reFieldName.MatchString(k) {
			return nil, fmt.Errorf("sqlitestore: invalid field name %q", k)
		}
		b.WriteString(` AND json_extract(data, '$.` + k + `') = ?`)
		args = append(args, v)
	}
	if q.OrderBy != "" {
		if !reFieldName.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("sqlitestore: invalid field name %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		b.WriteString(` ORDER BY json_extract(data, '$.` + q.OrderBy + `') ` + dir + `, seq ` + dir)
	} else {
		b.WriteString(` ORDER BY seq`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.Record
	for rows.Next() {
		var id, data string
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

// Update implements docstore.Store. The document is rewritten inside a
// transaction so concurrent patches to different fields are not lost.
func (s *Store) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	return s.modify(ctx, collection, id, false, func(fields map[string]any) {
		p.Apply(fields)
	})
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.modify(ctx, collection, id, true, func(doc map[string]any) {
		for k, v := range fields {
			doc[k] = v
		}
	})
}

func (s *Store) modify(ctx context.Context, collection, id string, upsert bool, fn func(map[string]any)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	exists := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !upsert {
			return docstore.ErrNotFound
		}
		exists = false
		data = "{}"
	case err != nil:
		return err
	}

	fields, err := decode(data)
	if err != nil {
		return err
	}
	fn(fields)
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET data = ? WHERE collection = ? AND id = ?`, string(encoded), collection, id)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`, collection, id, string(encoded))
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return err
}

// decode parses stored JSON keeping numbers as json.Number so millisecond
// timestamps survive without float rounding.
func decode(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
