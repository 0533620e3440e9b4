// Package services orchestrates ToC status batches and the rebuild of
// chapter rows on the device.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/kobotoc/internal/audit"
	"github.com/mrlokans/kobotoc/internal/database/sync"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/kobo"
	"github.com/mrlokans/kobotoc/internal/tocstatus"
)

// ErrBatchRunning is returned when another batch of the same kind is still
// recorded as running.
var ErrBatchRunning = errors.New("another batch is already running")

// BookSource loads library books by ID.
type BookSource interface {
	Books(ctx context.Context, ids []int) ([]entities.LibraryBook, error)
}

// StatusEvaluator evaluates a batch of books.
type StatusEvaluator interface {
	EvaluateAll(ctx context.Context, books []entities.LibraryBook, progress tocstatus.ProgressFunc) []entities.BookToCStatus
}

// DeviceWriter opens a write session on the device database.
type DeviceWriter interface {
	Update(ctx context.Context, fn func(w *kobo.Writer) error) error
}

// ProgressRecorder tracks a batch run.
type ProgressRecorder interface {
	IsSyncRunning() (bool, error)
	StartSync(totalItems int) error
	RecordItem(outcome sync.Outcome, item string) error
	CompleteSync(succeeded bool, errorMsg string) error
}

// TocServiceDeps are the collaborators of a TocService. Progress, Audit and
// Reports are optional.
type TocServiceDeps struct {
	Library        BookSource
	Evaluator      StatusEvaluator
	Device         DeviceWriter
	CheckProgress  ProgressRecorder
	UpdateProgress ProgressRecorder
	Audit          *audit.Service
	Reports        *audit.Auditor
}

// CheckResult is the outcome of a status batch.
type CheckResult struct {
	Statuses   []entities.BookToCStatus
	ReportFile string
}

// Rebuildable returns the statuses a rebuild would be offered for.
func (r CheckResult) Rebuildable() []entities.BookToCStatus {
	return Rebuildable(r.Statuses)
}

// BookUpdate is one rebuilt book.
type BookUpdate struct {
	Status entities.BookToCStatus
	Result kobo.RebuildResult
}

// BookUpdateError is one book whose rebuild failed. Its prior rows are
// unchanged.
type BookUpdateError struct {
	Status entities.BookToCStatus
	Err    error
}

func (e BookUpdateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Status.Book.Title, e.Err)
}

// UpdateResult is the outcome of an update batch.
type UpdateResult struct {
	Updated []BookUpdate
	Failed  []BookUpdateError
	Skipped int
}

type TocService struct {
	deps TocServiceDeps
}

func NewTocService(deps TocServiceDeps) *TocService {
	return &TocService{deps: deps}
}

// Rebuildable filters statuses down to those that can and should be
// rebuilt.
func Rebuildable(statuses []entities.BookToCStatus) []entities.BookToCStatus {
	var out []entities.BookToCStatus
	for _, s := range statuses {
		if s.NeedsRebuild() {
			out = append(out, s)
		}
	}
	return out
}

// Check evaluates the library books with the given IDs. It returns one
// status per book, in the order the library returns them.
func (s *TocService) Check(ctx context.Context, ids []int) (CheckResult, error) {
	var result CheckResult

	books, err := s.deps.Library.Books(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load library books: %w", err)
	}

	progress := s.deps.CheckProgress
	if err := startBatch(progress, len(books)); err != nil {
		return result, err
	}

	result.Statuses = s.deps.Evaluator.EvaluateAll(ctx, books, func(done, total int, st entities.BookToCStatus) {
		log.Printf("Checked %d/%d: %s", done, total, st.Book.Title)
		outcome := sync.OutcomeSucceeded
		if st.Classification.Terminal() {
			outcome = sync.OutcomeFailed
		}
		recordItem(progress, outcome, st.Book.Title)
	})
	completeBatch(progress, nil)

	if s.deps.Reports != nil {
		filename, err := s.deps.Reports.SaveReport(audit.NewReport(result.Statuses))
		if err != nil {
			log.Printf("Failed to save status report: %v", err)
		}
		result.ReportFile = filename
	}
	if s.deps.Audit != nil {
		s.deps.Audit.LogTocCheck(result.Statuses, result.ReportFile)
	}

	return result, nil
}

// Update rebuilds the chapter rows of every status that needs it, in one
// device write session. A failing book is recorded and the batch continues;
// the returned error is only set when the session itself failed.
func (s *TocService) Update(ctx context.Context, statuses []entities.BookToCStatus) (UpdateResult, error) {
	var result UpdateResult

	candidates := Rebuildable(statuses)
	result.Skipped = len(statuses) - len(candidates)
	if len(candidates) == 0 {
		log.Printf("No books need their chapters rebuilt")
		return result, nil
	}

	progress := s.deps.UpdateProgress
	if err := startBatch(progress, len(candidates)); err != nil {
		return result, err
	}

	err := s.deps.Device.Update(ctx, func(w *kobo.Writer) error {
		for _, st := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := w.Rebuild(ctx, kobo.PlanFromStatus(st))
			if s.deps.Audit != nil {
				s.deps.Audit.LogTocRebuild(st, res.Chapters, res.ManifestEntries, err)
			}
			if err != nil {
				log.Printf("Failed to rebuild chapters for %q: %v", st.Book.Title, err)
				result.Failed = append(result.Failed, BookUpdateError{Status: st, Err: err})
				recordItem(progress, sync.OutcomeFailed, st.Book.Title)
				continue
			}
			result.Updated = append(result.Updated, BookUpdate{Status: st, Result: res})
			recordItem(progress, sync.OutcomeSucceeded, st.Book.Title)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("device update failed: %w", err)
	}

	completeBatch(progress, err)
	if s.deps.Audit != nil {
		s.deps.Audit.LogTocUpdate(len(candidates), len(result.Updated), err)
	}

	return result, err
}

// Cleanup removes audit events and status reports older than retention.
func (s *TocService) Cleanup(retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if s.deps.Audit != nil {
		deleted, err := s.deps.Audit.DeleteOldEvents(retention)
		if err != nil {
			return fmt.Errorf("failed to delete old audit events: %w", err)
		}
		if deleted > 0 {
			log.Printf("Deleted %d old audit events", deleted)
		}
	}
	if s.deps.Reports != nil {
		removed, err := s.deps.Reports.DeleteOldReports(time.Now().Add(-retention))
		if err != nil {
			return fmt.Errorf("failed to delete old reports: %w", err)
		}
		if removed > 0 {
			log.Printf("Deleted %d old status reports", removed)
		}
	}
	return nil
}

func startBatch(p ProgressRecorder, total int) error {
	if p == nil {
		return nil
	}
	running, err := p.IsSyncRunning()
	if err != nil {
		return fmt.Errorf("failed to check batch progress: %w", err)
	}
	if running {
		return ErrBatchRunning
	}
	if err := p.StartSync(total); err != nil {
		return fmt.Errorf("failed to start batch progress: %w", err)
	}
	return nil
}

func recordItem(p ProgressRecorder, outcome sync.Outcome, item string) {
	if p == nil {
		return
	}
	if err := p.RecordItem(outcome, item); err != nil {
		log.Printf("Failed to record progress for %q: %v", item, err)
	}
}

func completeBatch(p ProgressRecorder, batchErr error) {
	if p == nil {
		return
	}
	msg := ""
	if batchErr != nil {
		msg = batchErr.Error()
	}
	if err := p.CompleteSync(batchErr == nil, msg); err != nil {
		log.Printf("Failed to complete batch progress: %v", err)
	}
}
