// Package export runs the gloss export pipeline: it finds the books whose
// glossing is complete in a language, keeps those that changed since the last
// export, nests their glosses into the per-language document and publishes it
// to the content store with conditional writes.
package export

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/heartmarshall/gloss-export/internal/config"
	"github.com/heartmarshall/gloss-export/internal/domain"
)

const tracerName = "github.com/heartmarshall/gloss-export/internal/service/export"

type glossRepo interface {
	Languages(ctx context.Context) ([]domain.Language, error)
	CompletedBooks(ctx context.Context) ([]domain.BookKey, error)
	BooksWithPendingEvents(ctx context.Context, candidates []domain.BookKey) ([]domain.BookKey, error)
	PendingEventIDs(ctx context.Context, key domain.BookKey) ([]int64, error)
	PhraseGlosses(ctx context.Context, key domain.BookKey) ([]domain.PhraseGloss, error)
	BookLayouts(ctx context.Context, bookIDs []int) ([]domain.BookLayout, error)
	SettleEvents(ctx context.Context, eventIDs []int64) (int64, error)
}

type contentStore interface {
	List(ctx context.Context) ([]domain.DocumentRef, error)
	Read(ctx context.Context, code string) (domain.Document, domain.Revision, error)
	Write(ctx context.Context, code string, doc domain.Document, expected domain.Revision, message string) (domain.Revision, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service wires the pipeline stages to the database and the content store.
type Service struct {
	log    *slog.Logger
	repo   glossRepo
	store  contentStore
	tx     txManager
	cfg    config.ExportConfig
	syncer *Syncer
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a new export service.
func NewService(log *slog.Logger, repo glossRepo, store contentStore, tx txManager, cfg config.ExportConfig) *Service {
	log = log.With("service", "export")
	return &Service{
		log:    log,
		repo:   repo,
		store:  store,
		tx:     tx,
		cfg:    cfg,
		syncer: NewSyncer(log, store, cfg.MaxConflictRetries, cfg.ConflictBackoff),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}
