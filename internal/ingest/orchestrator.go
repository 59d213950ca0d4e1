// Package ingest runs uploaded files through their conversion pipeline and stores the
// resulting records in the collections.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/internal/convert"
	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/session"
)

// DocumentStore is the write side of the collections.
type DocumentStore interface {
	Upsert(ctx context.Context, name string, docs []*models.IndexedDocument) error
}

// Orchestrator dispatches files to the paged-document, structured-sheet or diagram pipeline.
// Every pipeline is fail-fast: a missing or failing step aborts the file.
type Orchestrator struct {
	runner convert.Runner
	store  DocumentStore
	cfg    config.ConvertConfig
	layout convert.Layout
	logger *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator that runs scripts with runner and writes to store.
func NewOrchestrator(runner convert.Runner, store DocumentStore, cfg config.ConvertConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		store:  store,
		cfg:    cfg,
		layout: convert.NewLayout(cfg),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// KindOf returns the pipeline for a file name, or ErrUnsupportedType.
func KindOf(name string) (models.PipelineKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.PipelinePaged, nil
	case ".xlsx":
		return models.PipelineSheet, nil
	case ".puml":
		return models.PipelineDiagram, nil
	}
	return "", fmt.Errorf("%w: %q (pdf, xlsx and puml are accepted)", models.ErrUnsupportedType, filepath.Ext(name))
}

// Ingest processes the file at path for sess. The report is returned even when err is non-nil
// so callers can show the steps that ran. The file is marked processed only on full success.
func (o *Orchestrator) Ingest(ctx context.Context, sess *session.Session, path string) (*models.IngestReport, error) {
	name := filepath.Base(path)
	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingFile, path)
	}
	if !sess.TryBegin(name) {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicate, name)
	}
	var marked bool
	defer func() { sess.Done(name, marked) }()

	report := &models.IngestReport{File: name, Kind: kind}
	o.logger.Info("ingesting file", zap.String("file", name), zap.String("pipeline", string(kind)))

	switch kind {
	case models.PipelinePaged:
		marked, err = o.ingestPaged(ctx, path, report)
	case models.PipelineSheet:
		marked, err = o.ingestSheet(ctx, path, report)
	case models.PipelineDiagram:
		marked, err = o.ingestDiagram(ctx, path, report)
	}
	if err != nil {
		o.logger.Warn("ingestion failed", zap.String("file", name), zap.Error(err))
		marked = false
		return report, err
	}
	if marked && kind == models.PipelinePaged {
		sess.SetCurrentPDF(name)
	}
	o.logger.Info("ingestion finished", zap.String("file", name), zap.Int("count", report.Count))
	return report, nil
}

// runSteps runs scripts in order and stops at the first failure.
func (o *Orchestrator) runSteps(ctx context.Context, scripts []string, path string, report *models.IngestReport) (*convert.Output, error) {
	var last *convert.Output
	for _, script := range scripts {
		out, err := o.runner.Run(ctx, script, path)
		if err != nil {
			report.Steps = append(report.Steps, models.StepResult{Script: script, OK: false, Output: stepOutput(err)})
			return nil, fmt.Errorf("%s: %w", script, err)
		}
		report.Steps = append(report.Steps, models.StepResult{Script: script, OK: true})
		last = out
	}
	return last, nil
}

func stepOutput(err error) string {
	var toolErr *models.ToolError
	if errors.As(err, &toolErr) {
		if s := strings.TrimSpace(toolErr.Stderr); s != "" {
			return s
		}
		return strings.TrimSpace(toolErr.Stdout)
	}
	return err.Error()
}

func (o *Orchestrator) ingestPaged(ctx context.Context, path string, report *models.IngestReport) (bool, error) {
	if _, err := o.runSteps(ctx, o.cfg.PageScripts, path, report); err != nil {
		return false, err
	}

	paMap, err := convert.ReadPageMap(o.layout.PageMapFile(path))
	if err != nil {
		return false, err
	}
	images, err := convert.ListPageImages(o.layout.PageImageDir(path))
	if err != nil {
		return false, err
	}
	if n, err := convert.PageCount(path); err != nil {
		o.logger.Debug("PDF page count unavailable", zap.String("file", report.File), zap.Error(err))
	} else if n != len(images) {
		o.logger.Warn("page image count differs from PDF page count",
			zap.String("file", report.File), zap.Int("pages", n), zap.Int("images", len(images)))
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("the PDF has %d page(s) but %d page image(s) were produced", n, len(images)))
	}

	records := convert.PageRecords(images, paMap, report.File)
	if len(records) == 0 {
		return false, nil
	}
	docs := make([]*models.IndexedDocument, len(records))
	for i, r := range records {
		docs[i] = r.Document()
	}
	if err := o.store.Upsert(ctx, models.CollectionPages, docs); err != nil {
		return false, err
	}
	report.Count = len(docs)
	return true, nil
}

func (o *Orchestrator) ingestSheet(ctx context.Context, path string, report *models.IngestReport) (bool, error) {
	sheets, err := convert.SheetNames(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	scripts := convert.PlanSheetScripts(sheets, o.cfg.SheetRules)
	if _, err := o.runSteps(ctx, scripts, path, report); err != nil {
		return false, err
	}

	// Both stores are attempted; rows already written stay written if the other fails.
	listErr := o.storeAPIList(ctx, path, report)
	specErr := o.storeAPISpec(ctx, path, report)
	if err := errors.Join(listErr, specErr); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) storeAPIList(ctx context.Context, path string, report *models.IngestReport) error {
	entries, err := convert.ReadAPIList(o.layout.APIListFile(path), path)
	if err != nil {
		return err
	}
	docs := make([]*models.IndexedDocument, len(entries))
	for i, e := range entries {
		docs[i] = e.Document()
	}
	if err := o.store.Upsert(ctx, models.CollectionAPIList, docs); err != nil {
		return err
	}
	report.Count += len(docs)
	return nil
}

func (o *Orchestrator) storeAPISpec(ctx context.Context, path string, report *models.IngestReport) error {
	entries, err := convert.ReadAPISpec(o.layout.APISpecFile(path), path)
	if err != nil {
		return err
	}
	docs := make([]*models.IndexedDocument, len(entries))
	for i, e := range entries {
		docs[i] = e.Document()
	}
	if err := o.store.Upsert(ctx, models.CollectionAPISpec, docs); err != nil {
		return err
	}
	report.Count += len(docs)
	return nil
}

func (o *Orchestrator) ingestDiagram(ctx context.Context, path string, report *models.IngestReport) (bool, error) {
	out, err := o.runSteps(ctx, []string{o.cfg.DiagramScript}, path, report)
	if err != nil {
		return false, err
	}
	diagram, err := convert.ParseDiagramOutput(out.Stdout)
	if err != nil {
		return false, err
	}
	doc := diagram.Record(report.File).Document()
	if err := o.store.Upsert(ctx, models.CollectionUML, []*models.IndexedDocument{doc}); err != nil {
		return false, err
	}
	report.Count = 1
	return true, nil
}

// SaveUpload writes an uploaded file into the upload directory and returns its path.
// Unsupported extensions are rejected before anything is written.
func (o *Orchestrator) SaveUpload(name string, r io.Reader) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if _, err := KindOf(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(o.cfg.UploadDir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(o.cfg.UploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

// IngestDirectory ingests every supported file directly inside dir, in name order.
// Failures are logged and collected; the remaining files are still processed.
func (o *Orchestrator) IngestDirectory(ctx context.Context, sess *session.Session, dir string) ([]*models.IngestReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			if _, err := KindOf(e.Name()); err == nil {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)

	var reports []*models.IngestReport
	var errs []error
	for _, name := range names {
		report, err := o.Ingest(ctx, sess, filepath.Join(dir, name))
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return reports, errors.Join(errs...)
}
