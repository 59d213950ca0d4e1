// Package storage defines the persistence interface for collection documents.
package storage

import (
	"context"

	"github.com/hyperjump/pachat/internal/models"
)

// Storage defines collection document persistence operations.
type Storage interface {
	// UpsertDocuments inserts docs into collection, replacing rows with the same id.
	UpsertDocuments(ctx context.Context, collection string, docs []*models.IndexedDocument) error
	// FindIDs returns the ids of documents whose metadata satisfies where, in insertion order.
	FindIDs(ctx context.Context, collection string, where models.Where) ([]string, error)
	GetDocuments(ctx context.Context, collection string, ids []string) ([]*models.IndexedDocument, error)
	// LoadVectors returns every id and embedding of collection, in insertion order.
	LoadVectors(ctx context.Context, collection string) ([]string, [][]float32, error)
	DeleteDocuments(ctx context.Context, collection string, ids []string) error

	// Stats
	CountDocuments(ctx context.Context, collection string) (int64, error)

	// Inbox sources. GetSource returns nil, nil for an unknown id.
	GetSource(ctx context.Context, id string) (*models.SourceRecord, error)
	PutSource(ctx context.Context, rec *models.SourceRecord) error

	Close() error
}
