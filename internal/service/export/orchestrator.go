package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/gloss-export/internal/domain"
	"github.com/heartmarshall/gloss-export/pkg/ctxutil"
)

// Run executes one export run. The first three stages select the books to
// export and abort the run when they fail. Languages are then exported
// independently, each with at most one successful write: a failing language
// is recorded in the report and does not stop the others.
// The returned error is set only for an aborted run; the report is always
// returned.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	runID := ctxutil.RunIDFromCtx(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = ctxutil.WithRunID(ctx, runID)
	}

	ctx, span := s.tracer.Start(ctx, "export.run", trace.WithAttributes(attribute.String("export.run_id", runID)))
	defer span.End()

	report := &RunReport{RunID: runID, StartedAt: s.now()}
	abort := func(err error) (*RunReport, error) {
		report.Duration = s.now().Sub(report.StartedAt)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	var languages []domain.Language
	if err := s.stage(ctx, report, "list languages", true, func(ctx context.Context) error {
		var err error
		languages, err = s.repo.Languages(ctx)
		if err != nil {
			return fmt.Errorf("list languages: %w", err)
		}
		return nil
	}); err != nil {
		return abort(err)
	}

	var completed []domain.BookKey
	if err := s.stage(ctx, report, "detect completed books", true, func(ctx context.Context) error {
		var err error
		completed, err = s.DetectCompleted(ctx)
		report.Completed = len(completed)
		return err
	}); err != nil {
		return abort(err)
	}

	var changed []domain.BookKey
	if err := s.stage(ctx, report, "track changes", true, func(ctx context.Context) error {
		var err error
		changed, err = s.TrackChanges(ctx, completed)
		report.Changed = len(changed)
		return err
	}); err != nil {
		return abort(err)
	}

	selected := domain.GroupByLanguage(changed)

	// A failed listing only costs extra reads, so it does not abort the run.
	var remote map[string]bool
	_ = s.stage(ctx, report, "list remote documents", false, func(ctx context.Context) error {
		if len(selected) == 0 {
			return nil
		}
		refs, err := s.store.List(ctx)
		if err != nil {
			return fmt.Errorf("list remote documents: %w", err)
		}
		remote = make(map[string]bool, len(refs))
		for _, ref := range refs {
			remote[ref.Language] = true
		}
		return nil
	})

	_ = s.stage(ctx, report, "export languages", false, func(ctx context.Context) error {
		report.Outcomes = make([]LanguageOutcome, len(languages))

		var g errgroup.Group
		g.SetLimit(max(s.cfg.Workers, 1))
		for i, lang := range languages {
			knownAbsent := remote != nil && !remote[lang.Code]
			g.Go(func() error {
				report.Outcomes[i] = s.exportLanguage(ctx, lang, selected[lang.ID], knownAbsent)
				return nil
			})
		}
		_ = g.Wait()

		if report.HasFailures() {
			counts := report.Counts()
			return fmt.Errorf("%d of %d languages failed", len(languages)-counts[StatusSucceeded]-counts[StatusSkipped], len(languages))
		}
		return nil
	})

	report.Duration = s.now().Sub(report.StartedAt)

	counts := report.Counts()
	s.log.InfoContext(ctx, "EXPORT (run finished)",
		slog.String("run_id", runID),
		slog.Int("languages", len(languages)),
		slog.Int("completed_books", report.Completed),
		slog.Int("changed_books", report.Changed),
		slog.Int("succeeded", counts[StatusSucceeded]),
		slog.Int("skipped", counts[StatusSkipped]),
		slog.Int("conflict", counts[StatusConflict]),
		slog.Int("integrity", counts[StatusIntegrity]),
		slog.Int("failed", counts[StatusFailed]),
		slog.Duration("duration", report.Duration),
	)
	if report.HasFailures() {
		span.SetStatus(codes.Error, "some languages failed")
	}
	return report, nil
}

// exportLanguage assembles, builds and publishes the selected books of one
// language, then settles the events captured during assembly.
func (s *Service) exportLanguage(ctx context.Context, lang domain.Language, bookIDs []int, knownAbsent bool) LanguageOutcome {
	start := s.now()
	out := LanguageOutcome{Language: lang.Code, LanguageID: lang.ID, Books: bookIDs}
	log := s.log.With(slog.String("language", lang.Code))

	if len(bookIDs) == 0 {
		out.Status = StatusSkipped
		log.DebugContext(ctx, "EXPORT (nothing to export)")
		return out
	}

	ctx = ctxutil.WithLanguageID(ctx, lang.ID)
	ctx, span := s.tracer.Start(ctx, "export.language", trace.WithAttributes(
		attribute.String("export.language", lang.Code),
		attribute.IntSlice("export.books", bookIDs),
	))
	defer span.End()

	fail := func(err error) LanguageOutcome {
		out.Status = classify(err)
		out.Err = err
		out.Duration = s.now().Sub(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "EXPORT ("+lang.Code+": "+string(out.Status)+")",
			slog.Any("books", bookIDs),
			slog.Int("attempts", out.Attempts),
			slog.String("error", err.Error()),
		)
		return out
	}

	exports := make([]domain.BookExport, 0, len(bookIDs))
	for _, id := range bookIDs {
		be, err := s.Assemble(ctx, domain.BookKey{LanguageID: lang.ID, BookID: id})
		if err != nil {
			return fail(err)
		}
		exports = append(exports, be)
	}

	layouts, err := s.repo.BookLayouts(ctx, bookIDs)
	if err != nil {
		return fail(fmt.Errorf("load book layouts: %w", err))
	}
	layoutByID := make(map[int]domain.BookLayout, len(layouts))
	for _, l := range layouts {
		layoutByID[l.ID] = l
	}

	books := make([]domain.DocBook, 0, len(exports))
	var eventIDs []int64
	for _, be := range exports {
		layout, ok := layoutByID[be.Key.BookID]
		if !ok {
			return fail(&domain.IntegrityError{BookID: be.Key.BookID, Message: "book layout not found"})
		}
		book, err := BuildBook(layout, be.Records)
		if err != nil {
			return fail(err)
		}
		books = append(books, book)
		eventIDs = append(eventIDs, be.EventIDs...)
	}

	res, err := s.syncer.Publish(ctx, lang.Code, books, knownAbsent)
	out.Attempts = res.Attempts
	if err != nil {
		return fail(err)
	}
	out.Status = StatusSucceeded
	out.Revision = res.Revision
	out.Unchanged = res.Unchanged

	if s.cfg.SettleEvents && len(eventIDs) > 0 {
		err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			n, err := s.repo.SettleEvents(ctx, eventIDs)
			out.EventsSettled = n
			return err
		})
		if err != nil {
			out.EventsSettled = 0
			out.SettleErr = err
			log.WarnContext(ctx, "EXPORT (settle events failed)",
				slog.Int("events", len(eventIDs)),
				slog.String("error", err.Error()),
			)
		}
	}

	out.Duration = s.now().Sub(start)
	log.InfoContext(ctx, "EXPORT ("+lang.Code+": "+string(out.Status)+")",
		slog.Any("books", bookIDs),
		slog.String("revision", string(out.Revision)),
		slog.Int("attempts", out.Attempts),
		slog.Bool("unchanged", out.Unchanged),
		slog.Int64("events_settled", out.EventsSettled),
		slog.Duration("duration", out.Duration),
	)
	return out
}

// classify maps a language failure to its report status.
func classify(err error) Status {
	switch {
	case errors.Is(err, domain.ErrIntegrity):
		return StatusIntegrity
	case errors.Is(err, domain.ErrConflict):
		return StatusConflict
	default:
		return StatusFailed
	}
}
