// Package resolver answers chat messages by joining the collections on the identifiers
// found in the message.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/internal/models"
)

// Placeholders shown in place of a specification that cannot be displayed.
const (
	SpecParseFailed = "Failed to parse the API specification."
	SpecNotFound    = "The API specification could not be found."
)

// Collections is the read side of the collections.
type Collections interface {
	QueryText(ctx context.Context, name, text string, where models.Where, n int) ([]*models.IndexedDocument, error)
	Search(ctx context.Context, text string, limit int) ([]models.RelatedDocument, error)
}

// Resolver runs join paths A (pages + API list), B (specification) and C (diagram) in order.
// It never writes.
type Resolver struct {
	collections Collections
	cfg         config.ResolverConfig
	logger      *zap.Logger
	fileExists  func(string) bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver reading from collections.
func New(collections Collections, cfg config.ResolverConfig, opts ...Option) *Resolver {
	r := &Resolver{
		collections: collections,
		cfg:         cfg,
		logger:      zap.NewNop(),
		fileExists:  fileExists,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve extracts the keys of text and assembles the answer. An empty bundle means nothing
// matched; errors are reserved for failing reads.
func (r *Resolver) Resolve(ctx context.Context, text string) (*models.AnswerBundle, error) {
	keys := ExtractKeys(text)
	bundle := &models.AnswerBundle{PANumber: keys.PANumber, Filename: keys.Filename, APIID: keys.APIID}
	r.logger.Debug("resolving",
		zap.String("pa_number", keys.PANumber),
		zap.String("filename", keys.Filename),
		zap.String("api_id", keys.APIID))

	if keys.PANumber != "" && keys.Filename != "" {
		if err := r.joinPages(ctx, keys, bundle); err != nil {
			return nil, err
		}
	}
	if bundle.APIID != "" {
		if err := r.joinSpec(ctx, bundle); err != nil {
			return nil, err
		}
		if err := r.joinDiagram(ctx, bundle); err != nil {
			return nil, err
		}
	}

	if keys.Empty() && r.cfg.RelatedLimit > 0 {
		related, err := r.collections.Search(ctx, text, r.cfg.RelatedLimit)
		if err != nil {
			r.logger.Warn("keyword hints failed", zap.Error(err))
		} else {
			bundle.Related = related
		}
	}
	return bundle, nil
}

// joinPages is path A. Both the page query and the API list query must match.
func (r *Resolver) joinPages(ctx context.Context, keys Keys, bundle *models.AnswerBundle) error {
	pages, err := r.collections.QueryText(ctx, models.CollectionPages, keys.PANumber, models.Where{
		models.MetaPANumber:    keys.PANumber,
		models.MetaPDFFilename: keys.Filename,
	}, r.cfg.PageLimit)
	if err != nil {
		return fmt.Errorf("query pages: %w", err)
	}
	rows, err := r.collections.QueryText(ctx, models.CollectionAPIList, keys.PANumber, models.Where{
		models.MetaPANumber: keys.PANumber,
	}, r.cfg.APIListLimit)
	if err != nil {
		return fmt.Errorf("query API list: %w", err)
	}
	if len(pages) == 0 || len(rows) == 0 {
		r.logger.Debug("page join found nothing", zap.Int("pages", len(pages)), zap.Int("api_rows", len(rows)))
		return nil
	}

	for _, p := range pages {
		path := p.MetaString(models.MetaImagePath)
		if !r.fileExists(path) {
			r.logger.Debug("page image missing", zap.String("path", path))
			continue
		}
		bundle.Images = append(bundle.Images, models.Image{
			Path:    path,
			Caption: fmt.Sprintf("%s in %s", keys.PANumber, keys.Filename),
		})
	}
	texts := make([]string, len(rows))
	for i, d := range rows {
		texts[i] = d.Text
	}
	bundle.APIList = strings.Join(texts, "\n")

	// An API ID recovered from the list rows takes precedence over a typed one.
	if id := extractAPIID(bundle.APIList); id != "" {
		if bundle.APIID != "" && bundle.APIID != id {
			r.logger.Info("API ID replaced by API list match", zap.String("typed", bundle.APIID), zap.String("recovered", id))
		}
		bundle.APIID = id
	}
	return nil
}

// joinSpec is path B. Only the first match is used.
func (r *Resolver) joinSpec(ctx context.Context, bundle *models.AnswerBundle) error {
	docs, err := r.collections.QueryText(ctx, models.CollectionAPISpec, bundle.APIID, models.Where{
		models.MetaAPIID: bundle.APIID,
	}, r.cfg.APISpecLimit)
	if err != nil {
		return fmt.Errorf("query API specification: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	raw, ok := docs[0].Metadata[models.MetaAPISpecInfo].(string)
	if !ok {
		bundle.APISpec = SpecNotFound
		return nil
	}
	bundle.APISpec = FormatSpec(raw)
	return nil
}

// FormatSpec pretty-prints a stored specification with a four-space indent, keeping key order.
// Malformed JSON yields SpecParseFailed.
func FormatSpec(raw string) string {
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(strings.TrimSpace(raw)), "", "    "); err != nil {
		return SpecParseFailed
	}
	return out.String()
}

// joinDiagram is path C. It runs whatever path A and B found.
func (r *Resolver) joinDiagram(ctx context.Context, bundle *models.AnswerBundle) error {
	docs, err := r.collections.QueryText(ctx, models.CollectionUML, bundle.APIID, models.Where{
		models.MetaAPIID: bundle.APIID,
	}, r.cfg.DiagramLimit)
	if err != nil {
		return fmt.Errorf("query diagrams: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	path := docs[0].MetaString(models.MetaPNGPath)
	if !r.fileExists(path) {
		r.logger.Debug("diagram image missing", zap.String("path", path))
		return nil
	}
	bundle.Diagram = &models.Image{Path: path, Caption: "UML Diagram for API ID: " + bundle.APIID}
	return nil
}
