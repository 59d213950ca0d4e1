// Package assistant turns uploads and chat messages into transcript entries.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/session"
)

// Ingester stores uploads and runs them through a pipeline.
type Ingester interface {
	SaveUpload(name string, r io.Reader) (string, error)
	Ingest(ctx context.Context, sess *session.Session, path string) (*models.IngestReport, error)
}

// Answerer resolves a chat message into an answer bundle.
type Answerer interface {
	Resolve(ctx context.Context, text string) (*models.AnswerBundle, error)
}

// Assistant is the application service behind the HTTP and CLI surfaces. Failures never
// escape as panics or exits: each one becomes an assistant message in the transcript.
type Assistant struct {
	ingester Ingester
	answerer Answerer
	logger   *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an assistant.
func New(ingester Ingester, answerer Answerer, opts ...Option) *Assistant {
	a := &Assistant{ingester: ingester, answerer: answerer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Upload saves r as name in the upload directory and ingests it.
func (a *Assistant) Upload(ctx context.Context, sess *session.Session, name string, r io.Reader) (*models.IngestReport, models.Message, error) {
	name = filepath.Base(name)
	path, err := a.ingester.SaveUpload(name, r)
	if err != nil {
		a.logger.Warn("upload rejected", zap.String("session", sess.ID), zap.String("file", name), zap.Error(err))
		return nil, a.reply(sess, IngestMessage(name, nil, err)), err
	}
	return a.IngestPath(ctx, sess, path)
}

// IngestPath ingests a file that is already on disk.
func (a *Assistant) IngestPath(ctx context.Context, sess *session.Session, path string) (*models.IngestReport, models.Message, error) {
	start := time.Now()
	report, err := a.ingester.Ingest(ctx, sess, path)
	msg := a.reply(sess, IngestMessage(filepath.Base(path), report, err))
	if err != nil {
		a.logger.Warn("ingest failed", zap.String("session", sess.ID), zap.String("path", path), zap.Error(err))
		return report, msg, err
	}
	a.logger.Info("ingest succeeded",
		zap.String("session", sess.ID),
		zap.String("file", report.File),
		zap.Int("count", report.Count),
		zap.Duration("took", time.Since(start)))
	return report, msg, nil
}

// Ask records text as a user message and answers it. The returned message is also
// appended to the transcript.
func (a *Assistant) Ask(ctx context.Context, sess *session.Session, text string) (*models.AnswerBundle, models.Message, error) {
	sess.Append(models.Message{Role: models.RoleUser, Content: text})

	bundle, err := a.answerer.Resolve(ctx, text)
	if err != nil {
		a.logger.Warn("resolve failed", zap.String("session", sess.ID), zap.Error(err))
		msg := a.reply(sess, "Could not look up an answer: "+err.Error())
		return nil, msg, err
	}
	msg := a.reply(sess, bundle.Render(), bundle.AllImages()...)
	return bundle, msg, nil
}

func (a *Assistant) reply(sess *session.Session, content string, images ...models.Image) models.Message {
	msg := models.Message{Role: models.RoleAssistant, Content: content, Images: images, Time: time.Now()}
	sess.Append(msg)
	return msg
}

// IngestMessage renders the user-facing outcome of an ingestion, one line per step.
func IngestMessage(name string, report *models.IngestReport, err error) string {
	var sb strings.Builder
	switch {
	case errors.Is(err, models.ErrUnsupportedType):
		return "❌ Unsupported file type. Only pdf, xlsx and puml files can be uploaded."
	case errors.Is(err, models.ErrDuplicate):
		return fmt.Sprintf("ℹ️ %s has already been processed in this session.", name)
	case err != nil:
		fmt.Fprintf(&sb, "🚫 Failed to process %s: %v", name, err)
	case report.Count == 0:
		fmt.Fprintf(&sb, "⚠️ %s was processed but produced no documents.", name)
	default:
		fmt.Fprintf(&sb, "✅ %s processed: %d document(s) stored.", name, report.Count)
	}
	if report != nil {
		for _, step := range report.Steps {
			if step.OK {
				fmt.Fprintf(&sb, "\n✓ %s", step.Script)
				continue
			}
			fmt.Fprintf(&sb, "\n✗ %s", step.Script)
			if step.Output != "" {
				fmt.Fprintf(&sb, ": %s", step.Output)
			}
		}
		for _, w := range report.Warnings {
			fmt.Fprintf(&sb, "\n⚠️ %s", w)
		}
	}
	return sb.String()
}
