package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// PublishResult describes a finished publish of one language document.
type PublishResult struct {
	Revision domain.Revision
	Attempts int
	// Unchanged is set when the merged document equals the stored one and no
	// write was made.
	Unchanged bool
}

// Syncer publishes book subtrees into a language document with
// read-merge-write cycles. Each write is conditional on the revision of the
// read in the same cycle; a conflicting write starts a new cycle, up to
// maxRetries times.
type Syncer struct {
	log        *slog.Logger
	store      contentStore
	maxRetries int
	delay      time.Duration
	now        func() time.Time
}

// NewSyncer creates a Syncer.
func NewSyncer(log *slog.Logger, store contentStore, maxRetries int, delay time.Duration) *Syncer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Syncer{log: log, store: store, maxRetries: maxRetries, delay: delay, now: time.Now}
}

// Publish replaces the given books in the document of the language and keeps
// every other book as stored. With knownAbsent the first cycle assumes the
// document does not exist and skips the read; a wrong guess surfaces as a
// conflict and is corrected by the next cycle.
// When the retries are exhausted the last *domain.ConflictError is returned.
func (s *Syncer) Publish(ctx context.Context, code string, books []domain.DocBook, knownAbsent bool) (PublishResult, error) {
	var result PublishResult

	op := func() error {
		result.Attempts++

		current, rev := domain.NewDocument(code), domain.Revision("")
		if result.Attempts > 1 || !knownAbsent {
			var err error
			current, rev, err = s.store.Read(ctx, code)
			if err != nil {
				return backoff.Permanent(err)
			}
		}

		merged := current.MergeBooks(books...)
		if rev != "" && sameDocument(current, merged) {
			result.Revision, result.Unchanged = rev, true
			return nil
		}

		next, err := s.store.Write(ctx, code, merged, rev, s.commitMessage(code))
		if errors.Is(err, domain.ErrConflict) {
			s.log.WarnContext(ctx, "EXPORT (conflict)",
				slog.String("language", code),
				slog.String("revision", string(rev)),
				slog.Int("attempt", result.Attempts),
				slog.String("error", err.Error()),
			)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		result.Revision = next
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), uint64(s.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return result, fmt.Errorf("publish %s: %w", code, err)
	}
	return result, nil
}

func (s *Syncer) commitMessage(code string) string {
	return fmt.Sprintf("Update %s glosses at %s", code, s.now().UTC().Format(time.RFC3339))
}

// sameDocument reports whether both documents encode to the same bytes.
func sameDocument(a, b domain.Document) bool {
	ea, err := domain.EncodeDocument(a)
	if err != nil {
		return false
	}
	eb, err := domain.EncodeDocument(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
