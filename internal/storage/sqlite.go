package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/vector"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		mod_time INTEGER NOT NULL,
		size INTEGER NOT NULL,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertDocuments writes all docs in one transaction.
func (s *SQLiteStorage) UpsertDocuments(ctx context.Context, collection string, docs []*models.IndexedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, id, text, metadata, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
		   text = excluded.text,
		   metadata = excluded.metadata,
		   embedding = excluded.embedding,
		   updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx,
			collection, doc.ID, doc.Text, string(metadataJSON), vector.EncodeFloat32s(doc.Embedding),
			doc.CreatedAt, doc.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// FindIDs filters on metadata with json_extract. Only string values match.
func (s *SQLiteStorage) FindIDs(ctx context.Context, collection string, where models.Where) ([]string, error) {
	query := `SELECT id FROM documents WHERE collection = ?`
	args := []interface{}{collection}
	for key, value := range where {
		path := `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
		query += ` AND json_type(metadata, ?) = 'text' AND json_extract(metadata, ?) = ?`
		args = append(args, path, path, value)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetDocuments returns documents in the order of ids. Unknown ids are skipped.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, collection string, ids []string) ([]*models.IndexedDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding, created_at, updated_at
		 FROM documents WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.IndexedDocument, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]*models.IndexedDocument, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func scanDocument(rows *sql.Rows) (*models.IndexedDocument, error) {
	var doc models.IndexedDocument
	var metadataJSON string
	var blob []byte
	if err := rows.Scan(&doc.ID, &doc.Text, &metadataJSON, &blob, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	vec, err := vector.DecodeFloat32s(blob)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	doc.Embedding = vec
	return &doc, nil
}

// LoadVectors reads every embedding of collection.
func (s *SQLiteStorage) LoadVectors(ctx context.Context, collection string) ([]string, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, err
		}
		vec, err := vector.DecodeFloat32s(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("document %s: %w", id, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	return ids, vectors, rows.Err()
}

// DeleteDocuments removes documents by id.
func (s *SQLiteStorage) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	return err
}

// CountDocuments returns the number of documents in collection.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

// GetSource returns the source record with id, or nil when there is none.
func (s *SQLiteStorage) GetSource(ctx context.Context, id string) (*models.SourceRecord, error) {
	rec := &models.SourceRecord{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT path, mod_time, size, ingested_at FROM sources WHERE id = ?`, id).
		Scan(&rec.Path, &rec.ModTime, &rec.Size, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PutSource inserts or replaces a source record. A zero IngestedAt is set to now.
func (s *SQLiteStorage) PutSource(ctx context.Context, rec *models.SourceRecord) error {
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, path, mod_time, size, ingested_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   path = excluded.path,
		   mod_time = excluded.mod_time,
		   size = excluded.size,
		   ingested_at = excluded.ingested_at`,
		rec.ID, rec.Path, rec.ModTime, rec.Size, rec.IngestedAt)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
