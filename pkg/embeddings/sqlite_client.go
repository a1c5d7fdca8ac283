package embeddings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

const collectionsSchema = `
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    metric TEXT NOT NULL,
    dim INTEGER NOT NULL
);
`

const docsSchema = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    meta TEXT NOT NULL,
    embedding BLOB
);
`

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkSQLiteCollection rejects names that are not plain identifiers or that
// would share a table with the settings table or SQLite's own objects.
func checkSQLiteCollection(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("Invalid collection name for sqlite: %q", name)
	}
	lower := strings.ToLower(name)
	if lower == "collections" || strings.HasPrefix(lower, "sqlite_") {
		return fmt.Errorf("Invalid collection name for sqlite: %q is reserved", name)
	}
	return nil
}

// SQLiteClient keeps the collection in a local SQLite file and answers
// nearest-neighbour queries with a full scan.
type SQLiteClient struct {
	db         *sql.DB
	collection string

	mu     sync.RWMutex
	metric DistanceMetric
}

var _ Client = (*SQLiteClient)(nil)

// NewSQLiteClient opens (or creates) the database at path. Use ":memory:"
// for a throwaway database.
func NewSQLiteClient(ctx context.Context, path string, collection string) (*SQLiteClient, error) {
	if err := checkSQLiteCollection(collection); err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("Failed to create storage directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	c := &SQLiteClient{
		db:         db,
		collection: collection,
		metric:     DistanceL2,
	}
	if err := c.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteClient) ensureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, collectionsSchema); err != nil {
		return fmt.Errorf("Failed to create sqlite schema: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(docsSchema, c.collection)); err != nil {
		return fmt.Errorf("Failed to create sqlite schema: %w", err)
	}

	var metric string
	err := c.db.QueryRowContext(ctx, `SELECT metric FROM collections WHERE name = ?`, c.collection).Scan(&metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("Failed to read collection settings: %w", err)
	}
	m, err := DistanceMetricFromString(metric)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.metric = m
	c.mu.Unlock()
	return nil
}

func (c *SQLiteClient) CreateSchema(ctx context.Context, cfg *SchemaConfig) error {
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	dim := 0
	if cfg != nil {
		dim = cfg.IndexDim
	}
	// The first recorded metric wins; mixing metrics within a collection
	// would make stored distances meaningless.
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections(name, metric, dim) VALUES(?, ?, ?)`,
		c.collection, string(cfg.metric()), dim,
	); err != nil {
		return fmt.Errorf("Failed to record collection settings: %w", err)
	}
	return c.ensureSchema(ctx)
}

func (c *SQLiteClient) DropSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, c.collection)); err != nil {
		return fmt.Errorf("Failed to drop sqlite table: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, c.collection); err != nil {
		return fmt.Errorf("Failed to drop collection settings: %w", err)
	}
	return nil
}

func (c *SQLiteClient) InsertDocument(ctx context.Context, doc *Document) error {
	if doc.Id == "" {
		return fmt.Errorf("Failed to insert document: empty id")
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("Failed to encode document metadata: %w", err)
	}
	if _, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(id, content, meta, embedding) VALUES(?, ?, ?, ?)`, c.collection),
		doc.Id, doc.Text, string(meta), encodeFloat32LE(doc.Embedding),
	); err != nil {
		return fmt.Errorf("Failed to insert a document to sqlite: %w", err)
	}
	return nil
}

func (c *SQLiteClient) FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, content, meta, embedding FROM %s ORDER BY rowid`, c.collection))
	if err != nil {
		return nil, fmt.Errorf("Failed to query sqlite: %w", err)
	}
	defer rows.Close()

	var candidates []*Document
	for rows.Next() {
		var (
			doc  Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.Id, &doc.Text, &meta, &blob); err != nil {
			return nil, fmt.Errorf("Failed to scan sqlite row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("Failed to decode document metadata: %w", err)
		}
		if doc.Embedding, err = decodeFloat32LE(blob); err != nil {
			return nil, err
		}
		candidates = append(candidates, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Failed to query sqlite: %w", err)
	}

	c.mu.RLock()
	metric := c.metric
	c.mu.RUnlock()
	return nearest(metric, embedding, candidates, k), nil
}

func (c *SQLiteClient) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("Failed to count sqlite rows: %w", err)
	}
	return n, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}
