package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/pachat/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// bleveDoc is what gets indexed for each collection document.
type bleveDoc struct {
	Collection string `json:"collection"`
	Text       string `json:"text"`
	Source     string `json:"source"`
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps identifiers like PA001 intact.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", textFieldMapping)
	docMapping.AddFieldMappingsAt("collection", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func docKey(collection, id string) string {
	return collection + "/" + id
}

// Index indexes a document under its collection. Re-indexing the same id replaces it.
func (b *BleveIndex) Index(ctx context.Context, collection string, doc *models.IndexedDocument) error {
	source := doc.MetaString(models.MetaPDFFilename)
	if source == "" {
		source = doc.MetaString(models.MetaSourceFile)
	}
	return b.index.Index(docKey(collection, doc.ID), bleveDoc{
		Collection: collection,
		Text:       doc.Text,
		Source:     source,
	})
}

// Search runs a match (or fuzzy) query over text and source and returns up to limit results.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	fuzziness := 0
	if opts != nil && opts.FuzzyEnabled {
		fuzziness = 1
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query = buildTextQuery(query, fuzziness)
	if opts != nil && opts.Collection != "" {
		cq := bleve.NewTermQuery(opts.Collection)
		cq.SetField("collection")
		q = bleve.NewConjunctionQuery(q, cq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		collection, id, ok := strings.Cut(hit.ID, "/")
		if !ok {
			continue
		}
		out = append(out, &KeywordResult{Collection: collection, ID: id, Score: hit.Score})
	}
	return out, nil
}

// buildTextQuery matches any query term in text or source.
func buildTextQuery(query string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	queries := make([]blevequery.Query, 0, len(terms)*2)
	for _, field := range []string{"text", "source"} {
		if fuzziness == 0 {
			mq := bleve.NewMatchQuery(query)
			mq.SetField(field)
			queries = append(queries, mq)
			continue
		}
		for _, term := range terms {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(field)
			queries = append(queries, fq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, collection, id string) error {
	return b.index.Delete(docKey(collection, id))
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
