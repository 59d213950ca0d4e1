package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/session"
)

// InboxSessionID is the session that receives files dropped into the inbox.
const InboxSessionID = "inbox"

// Ingester ingests a file already on disk.
type Ingester interface {
	IngestPath(ctx context.Context, sess *session.Session, path string) (*models.IngestReport, models.Message, error)
}

// Sessions hands out sessions by id.
type Sessions interface {
	GetOrCreate(id string) *session.Session
}

// Ledger remembers which version of each inbox file was ingested. It outlives the
// process, unlike the inbox session.
type Ledger interface {
	SourceUnchanged(ctx context.Context, path string, info os.FileInfo) (bool, error)
	RecordSource(ctx context.Context, path string, info os.FileInfo) error
}

// IngestInto returns a Handler that ingests each file into the inbox session. Files
// already processed by that session, or recorded in ledger with the same modification
// time and size, are skipped quietly. ledger may be nil.
func IngestInto(ing Ingester, sessions Sessions, ledger Ledger, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			logger.Warn("inbox path invalid", zap.String("path", path), zap.Error(err))
			return
		}
		info, err := os.Stat(abs)
		if err != nil {
			logger.Warn("inbox file unavailable", zap.String("path", abs), zap.Error(err))
			return
		}
		if ledger != nil {
			unchanged, err := ledger.SourceUnchanged(ctx, abs, info)
			if err != nil {
				logger.Warn("inbox ledger lookup failed", zap.String("path", abs), zap.Error(err))
			} else if unchanged {
				logger.Debug("inbox file unchanged since last ingest", zap.String("path", abs))
				return
			}
		}

		sess := sessions.GetOrCreate(InboxSessionID)
		report, _, err := ing.IngestPath(ctx, sess, abs)
		switch {
		case errors.Is(err, models.ErrDuplicate):
			logger.Debug("inbox file already processed", zap.String("path", abs))
		case err != nil:
			logger.Warn("inbox ingest failed", zap.String("path", abs), zap.Error(err))
		default:
			logger.Info("inbox file ingested", zap.String("path", abs), zap.Int("count", report.Count))
			if ledger != nil {
				if err := ledger.RecordSource(ctx, abs, info); err != nil {
					logger.Warn("inbox ledger update failed", zap.String("path", abs), zap.Error(err))
				}
			}
		}
	}
}
