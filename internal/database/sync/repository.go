// Package sync records the progress of ToC batch runs.
//
// # Usage
//
//	repo := sync.NewRepository(db, entities.SyncTypeToCStatus)
//	err := repo.StartSync(len(books))
//	err = repo.RecordItem(sync.OutcomeSucceeded, book.Title)
//	err = repo.CompleteSync(true, "")
package sync

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/kobotoc/internal/entities"
)

// staleAfter is how long a running sync may go without an update before it
// is considered interrupted.
const staleAfter = 10 * time.Minute

// Outcome is the result of processing one item of a batch.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

// Repository handles all sync progress database operations for one sync
// type.
type Repository struct {
	db       *gorm.DB
	syncType entities.SyncType
}

// NewRepository creates a sync repository for a specific sync type.
func NewRepository(db *gorm.DB, syncType entities.SyncType) *Repository {
	return &Repository{db: db, syncType: syncType}
}

// GetSyncProgress retrieves the sync progress for the configured sync type.
func (r *Repository) GetSyncProgress() (*entities.SyncProgress, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// StartSync creates or resets the progress record.
func (r *Repository) StartSync(totalItems int) error {
	now := time.Now()
	progress := entities.SyncProgress{
		SyncType:   r.syncType,
		Status:     entities.SyncStatusRunning,
		TotalItems: totalItems,
		StartedAt:  now,
		UpdatedAt:  now,
	}

	var existing entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.Create(&progress).Error
	case err != nil:
		return err
	}

	progress.ID = existing.ID
	return r.db.Save(&progress).Error
}

// RecordItem counts one processed item and remembers it as the current one.
func (r *Repository) RecordItem(outcome Outcome, item string) error {
	column := "succeeded"
	switch outcome {
	case OutcomeFailed:
		column = "failed"
	case OutcomeSkipped:
		column = "skipped"
	}

	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(map[string]any{
			"processed":    gorm.Expr("processed + 1"),
			column:         gorm.Expr(column + " + 1"),
			"current_item": item,
			"updated_at":   time.Now(),
		}).Error
}

// CompleteSync marks the sync as completed or failed.
func (r *Repository) CompleteSync(succeeded bool, errorMsg string) error {
	now := time.Now()
	status := entities.SyncStatusCompleted
	if !succeeded {
		status = entities.SyncStatusFailed
	}

	updates := map[string]any{
		"status":       status,
		"current_item": "",
		"updated_at":   now,
		"completed_at": now,
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(updates).Error
}

// IsSyncRunning reports whether a sync of this type is in progress. A
// running sync that has not been updated recently is marked failed.
func (r *Repository) IsSyncRunning() (bool, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ? AND status = ?", r.syncType, entities.SyncStatusRunning).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if progress.UpdatedAt.Before(time.Now().Add(-staleAfter)) {
		_ = r.CompleteSync(false, "sync was interrupted")
		return false, nil
	}

	return true, nil
}
