package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/graphweave/graphweave/pkg/graph"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	raw_text    TEXT NOT NULL,
	source_path TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);
`

// searchableColumns whitelists the filterable document fields; filter keys
// outside this set are rejected rather than interpolated into SQL.
var searchableColumns = map[string]string{
	"status":      "status",
	"source_path": "source_path",
}

// SQLiteRelationalStore implements RelationalStore on a local SQLite file.
type SQLiteRelationalStore struct {
	db *sql.DB
}

var _ RelationalStore = (*SQLiteRelationalStore)(nil)

// NewSQLiteRelationalStore opens (or creates) the database at path with WAL
// mode for concurrent pipeline workers.
func NewSQLiteRelationalStore(path string) (*SQLiteRelationalStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if _, err := db.Exec(documentsSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}

	return &SQLiteRelationalStore{db: db}, nil
}

func (s *SQLiteRelationalStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRelationalStore) PutDocument(ctx context.Context, doc graph.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, raw_text, source_path, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			raw_text = excluded.raw_text,
			source_path = excluded.source_path,
			status = excluded.status
	`, doc.ID.String(), doc.RawText, doc.SourcePath, doc.Status)
	if err != nil {
		return &graph.StoreWriteError{Store: "relational", Err: err}
	}
	return nil
}

func (s *SQLiteRelationalStore) GetDocument(ctx context.Context, id uuid.UUID) (graph.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, raw_text, source_path, status FROM documents WHERE id = ?`, id.String())
	return scanDocument(row)
}

func (s *SQLiteRelationalStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`, status, id.String())
	if err != nil {
		return &graph.StoreWriteError{Store: "relational", Err: err}
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteRelationalStore) Search(ctx context.Context, filters map[string]string, limit int) ([]graph.Document, error) {
	var clauses []string
	var args []any
	for key, value := range filters {
		column, ok := searchableColumns[key]
		if !ok {
			return nil, errors.Errorf("unsupported filter field: %s", key)
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}

	query := `SELECT id, raw_text, source_path, status FROM documents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "document search failed")
	}
	defer rows.Close()

	var docs []graph.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (graph.Document, error) {
	var doc graph.Document
	var id string
	err := row.Scan(&id, &doc.RawText, &doc.SourcePath, &doc.Status)
	if err == sql.ErrNoRows {
		return graph.Document{}, ErrNotFound
	}
	if err != nil {
		return graph.Document{}, errors.Wrap(err, "scanning document")
	}

	doc.ID, err = uuid.Parse(id)
	if err != nil {
		return graph.Document{}, errors.Wrap(err, "parsing document id")
	}
	return doc, nil
}
