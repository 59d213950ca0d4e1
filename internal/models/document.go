// Package models defines the records, stored documents, answers and errors shared across pachat.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection names. Each typed record is projected into exactly one of these.
const (
	CollectionPages   = "pa_documents"
	CollectionAPIList = "api_list"
	CollectionAPISpec = "api_spec"
	CollectionUML     = "puml"
)

// Collections lists every collection in join order.
var Collections = []string{CollectionPages, CollectionAPIList, CollectionAPISpec, CollectionUML}

// Metadata keys used for filtering and display.
const (
	MetaPANumber    = "pa_number"
	MetaImagePath   = "image_path"
	MetaPDFFilename = "pdf_filename"
	MetaAPIID       = "api_id"
	MetaSourceFile  = "source_file"
	MetaSheetName   = "sheet_name"
	MetaAPISpecInfo = "api_spec_info"
	MetaDBName      = "db_name"
	MetaPNGPath     = "png_path"
)

// IndexedDocument is the unit persisted in a collection.
type IndexedDocument struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"-"`
	Text      string                 `json:"text"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// MetaString returns the metadata value for key as a string ("" when absent or not a string).
func (d *IndexedDocument) MetaString(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[key].(string)
	return s
}

// Where is a conjunction of metadata equality constraints.
type Where map[string]string

// Matches reports whether every constraint holds for metadata.
func (w Where) Matches(metadata map[string]interface{}) bool {
	for k, want := range w {
		got, ok := metadata[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// PageRecord is one page image of a split PDF together with its PA number.
type PageRecord struct {
	PageNumber     int
	Identifier     string
	ImagePath      string
	SourceFilename string
}

// Document projects the page into a fresh IndexedDocument.
func (p PageRecord) Document() *IndexedDocument {
	return &IndexedDocument{
		ID:   uuid.NewString(),
		Text: fmt.Sprintf("PA number: %s", p.Identifier),
		Metadata: map[string]interface{}{
			MetaPANumber:    p.Identifier,
			MetaImagePath:   p.ImagePath,
			MetaPDFFilename: p.SourceFilename,
		},
	}
}

// Field is one key/value pair of a spreadsheet row, kept in source order.
type Field struct {
	Key   string
	Value string
}

// APIListEntry is one row of an API list sheet.
type APIListEntry struct {
	APIID            string
	ScreenIdentifier string
	RawFields        []Field
	SheetName        string
	SourceFile       string
}

// Text renders every field as "key: value", one per line.
func (e APIListEntry) Text() string {
	lines := make([]string, 0, len(e.RawFields))
	for _, f := range e.RawFields {
		lines = append(lines, f.Key+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}

// Document projects the entry into a fresh IndexedDocument.
func (e APIListEntry) Document() *IndexedDocument {
	return &IndexedDocument{
		ID:   uuid.NewString(),
		Text: e.Text(),
		Metadata: map[string]interface{}{
			MetaSourceFile: e.SourceFile,
			MetaSheetName:  e.SheetName,
			MetaAPIID:      e.APIID,
			MetaPANumber:   e.ScreenIdentifier,
		},
	}
}

// APISpecEntry is one API specification block. RawSpec is the serialized JSON object.
type APISpecEntry struct {
	APIID      string
	RawSpec    json.RawMessage
	SheetName  string
	SourceFile string
}

// Document projects the entry into a fresh IndexedDocument.
func (e APISpecEntry) Document() *IndexedDocument {
	return &IndexedDocument{
		ID:   uuid.NewString(),
		Text: "API ID: " + e.APIID,
		Metadata: map[string]interface{}{
			MetaAPIID:       e.APIID,
			MetaSourceFile:  e.SourceFile,
			MetaSheetName:   e.SheetName,
			MetaAPISpecInfo: string(e.RawSpec),
		},
	}
}

// DiagramRecord is a rendered UML diagram. A diagram has one API ID but may reference many tables.
type DiagramRecord struct {
	Identifier       string
	ReferencedTables []string
	ImagePath        string
	SourceFilename   string
}

// Document projects the diagram into a fresh IndexedDocument.
func (r DiagramRecord) Document() *IndexedDocument {
	tables := make([]interface{}, len(r.ReferencedTables))
	for i, t := range r.ReferencedTables {
		tables[i] = t
	}
	return &IndexedDocument{
		ID:   uuid.NewString(),
		Text: "UML Diagram for API ID: " + r.Identifier,
		Metadata: map[string]interface{}{
			MetaAPIID:      r.Identifier,
			MetaDBName:     tables,
			MetaPNGPath:    r.ImagePath,
			MetaSourceFile: r.SourceFilename,
		},
	}
}
