package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/pachat/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_UpsertAndGet(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.IndexedDocument{
		ID:        "doc1",
		Embedding: []float32{0.25, 0.75},
		Text:      "PA number: PA001",
		Metadata:  map[string]interface{}{models.MetaPANumber: "PA001"},
	}
	if err := store.UpsertDocuments(ctx, models.CollectionPages, []*models.IndexedDocument{doc}); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocuments(ctx, models.CollectionPages, []string{"missing", "doc1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(got))
	}
	if got[0].Text != doc.Text || got[0].MetaString(models.MetaPANumber) != "PA001" {
		t.Errorf("got %+v", got[0])
	}
	if len(got[0].Embedding) != 2 || got[0].Embedding[1] != 0.75 {
		t.Errorf("embedding not round-tripped: %v", got[0].Embedding)
	}

	// Same id replaces the row.
	doc.Text = "PA number: PA002"
	doc.Metadata[models.MetaPANumber] = "PA002"
	if err := store.UpsertDocuments(ctx, models.CollectionPages, []*models.IndexedDocument{doc}); err != nil {
		t.Fatal(err)
	}
	n, err := store.CountDocuments(ctx, models.CollectionPages)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 doc after upsert, got %d", n)
	}
	got, _ = store.GetDocuments(ctx, models.CollectionPages, []string{"doc1"})
	if got[0].Text != "PA number: PA002" {
		t.Errorf("expected replaced text, got %q", got[0].Text)
	}
}

func TestSQLiteStorage_collectionsAreSeparate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	doc := &models.IndexedDocument{ID: "same", Text: "x", Metadata: map[string]interface{}{}}
	for _, c := range []string{models.CollectionAPIList, models.CollectionAPISpec} {
		if err := store.UpsertDocuments(ctx, c, []*models.IndexedDocument{doc}); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range []string{models.CollectionAPIList, models.CollectionAPISpec} {
		if n, _ := store.CountDocuments(ctx, c); n != 1 {
			t.Errorf("%s: expected 1, got %d", c, n)
		}
	}
	if n, _ := store.CountDocuments(ctx, models.CollectionUML); n != 0 {
		t.Errorf("puml should be empty, got %d", n)
	}
}

func TestSQLiteStorage_FindIDs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	docs := []*models.IndexedDocument{
		{ID: "a", Text: "a", Metadata: map[string]interface{}{"pa_number": "PA001", "pdf_filename": "x.pdf"}},
		{ID: "b", Text: "b", Metadata: map[string]interface{}{"pa_number": "PA002", "pdf_filename": "x.pdf"}},
		{ID: "c", Text: "c", Metadata: map[string]interface{}{"pa_number": "PA001", "pdf_filename": "y.pdf"}},
		{ID: "d", Text: "d", Metadata: map[string]interface{}{"db_name": []interface{}{"PA001"}}},
	}
	if err := store.UpsertDocuments(ctx, models.CollectionPages, docs); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		where models.Where
		want  []string
	}{
		{"no constraint", nil, []string{"a", "b", "c", "d"}},
		{"single key", models.Where{"pa_number": "PA001"}, []string{"a", "c"}},
		{"conjunction", models.Where{"pa_number": "PA001", "pdf_filename": "y.pdf"}, []string{"c"}},
		{"no match", models.Where{"pa_number": "PA999"}, nil},
		{"non-string value never matches", models.Where{"db_name": "PA001"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := store.FindIDs(ctx, models.CollectionPages, tt.where)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestSQLiteStorage_LoadVectorsAndDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	docs := []*models.IndexedDocument{
		{ID: "1", Text: "one", Embedding: []float32{1, 0}},
		{ID: "2", Text: "two", Embedding: []float32{0, 1}},
	}
	if err := store.UpsertDocuments(ctx, models.CollectionUML, docs); err != nil {
		t.Fatal(err)
	}
	ids, vecs, err := store.LoadVectors(ctx, models.CollectionUML)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "1" || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors: %v %v", ids, vecs)
	}
	if err := store.DeleteDocuments(ctx, models.CollectionUML, []string{"1"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountDocuments(ctx, models.CollectionUML); n != 1 {
		t.Errorf("expected 1 after delete, got %d", n)
	}
}

func TestSQLiteStorage_emptyBatchIsNoop(t *testing.T) {
	store := newTestStorage(t)
	if err := store.UpsertDocuments(context.Background(), models.CollectionPages, nil); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStorage_Sources(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	got, err := store.GetSource(ctx, "source:missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("unknown source should be nil, got %+v", got)
	}

	rec := &models.SourceRecord{ID: "source:a", Path: "/inbox/a.pdf", ModTime: 1700000000123456789, Size: 42}
	if err := store.PutSource(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.IngestedAt.IsZero() {
		t.Error("IngestedAt should be set")
	}
	got, err = store.GetSource(ctx, "source:a")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Path != rec.Path || got.ModTime != rec.ModTime || got.Size != 42 {
		t.Fatalf("got %+v", got)
	}

	rec.ModTime++
	rec.Size = 43
	if err := store.PutSource(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetSource(ctx, "source:a")
	if got.ModTime != 1700000000123456790 || got.Size != 43 {
		t.Errorf("PutSource should replace, got %+v", got)
	}
}
