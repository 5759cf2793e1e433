package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-extensions/pkg/extensions"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Schema creates the documents table. Every document type shares one table; the body is the
// whole document as JSONB.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_type   TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	body       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (doc_type, id)
);
CREATE INDEX IF NOT EXISTS documents_course_idx ON documents (doc_type, (body->>'_courseId'));
CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body jsonb_path_ops);
`

// Store implements extensions.Store using PostgreSQL JSONB documents
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate creates the documents table when missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return s.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (s *Store) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("document already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Retrieve returns matching documents ordered by id. When fields are given, only those keys
// of the body are selected.
func (s *Store) Retrieve(ctx context.Context, docType string, criteria extensions.Criteria, fields ...string) ([]extensions.Document, error) {
	query, args, err := buildSelect(docType, criteria, fields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.handlePostgresError("retrieve "+docType, err)
	}
	defer rows.Close()

	var result []extensions.Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, s.handlePostgresError("scan "+docType, err)
		}
		doc := extensions.Document{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", docType, err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.handlePostgresError("retrieve "+docType, err)
	}
	return result, nil
}

// Update merges delta into the top level of every matching document body
func (s *Store) Update(ctx context.Context, docType string, criteria extensions.Criteria, delta extensions.Document) error {
	query, args, err := buildUpdate(docType, criteria, delta)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return s.handlePostgresError("update "+docType, err)
	}
	if tag.RowsAffected() == 0 {
		return extensions.ErrDocumentNotFound
	}
	return nil
}

// Create inserts a new document
func (s *Store) Create(ctx context.Context, docType string, doc extensions.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("document of type %s has no _id", docType)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", docType, err)
	}

	query := `INSERT INTO documents (doc_type, id, body) VALUES ($1, $2, $3::jsonb)`
	if _, err := s.db.Exec(ctx, query, docType, id, string(body)); err != nil {
		return s.handlePostgresError("create "+docType, err)
	}
	return nil
}

func buildSelect(docType string, criteria extensions.Criteria, fields []string) (string, []interface{}, error) {
	args := []interface{}{docType}
	where, args, err := buildWhere(criteria, args)
	if err != nil {
		return "", nil, err
	}

	selectExpr := "body"
	if len(fields) > 0 {
		args = append(args, fields)
		selectExpr = fmt.Sprintf(
			"COALESCE((SELECT jsonb_object_agg(key, value) FROM jsonb_each(body) WHERE key = ANY($%d)), '{}'::jsonb)",
			len(args))
	}

	query := fmt.Sprintf("SELECT %s FROM documents WHERE doc_type = $1%s ORDER BY id", selectExpr, where)
	return query, args, nil
}

func buildUpdate(docType string, criteria extensions.Criteria, delta extensions.Document) (string, []interface{}, error) {
	patch := make(extensions.Document, len(delta))
	for k, v := range delta {
		if k == extensions.FieldID {
			continue
		}
		patch[k] = v
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s delta: %w", docType, err)
	}

	args := []interface{}{docType, string(body)}
	where, args, err := buildWhere(criteria, args)
	if err != nil {
		return "", nil, err
	}
	query := "UPDATE documents SET body = body || $2::jsonb, updated_at = NOW() WHERE doc_type = $1" + where
	return query, args, nil
}

// buildWhere renders criteria as parameterised predicates appended to args. Keys are passed
// as parameters, never interpolated.
func buildWhere(criteria extensions.Criteria, args []interface{}) (string, []interface{}, error) {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		switch v := criteria[key].(type) {
		case extensions.In:
			args = append(args, key, []string(v))
			fmt.Fprintf(&b, " AND body->>$%d = ANY($%d)", len(args)-1, len(args))
		default:
			if key == extensions.FieldID {
				if id, ok := v.(string); ok {
					args = append(args, id)
					fmt.Fprintf(&b, " AND id = $%d", len(args))
					continue
				}
			}
			contained, err := json.Marshal(map[string]interface{}{key: v})
			if err != nil {
				return "", nil, fmt.Errorf("encode criteria %s: %w", key, err)
			}
			args = append(args, string(contained))
			fmt.Fprintf(&b, " AND body @> $%d::jsonb", len(args))
		}
	}
	return b.String(), args, nil
}
