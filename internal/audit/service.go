package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/kobotoc/internal/database/audit"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event. Failures are logged and otherwise
// ignored so that auditing never fails a batch.
func (s *Service) Log(event *entities.AuditEvent) {
	if err := s.repo.LogEvent(event); err != nil {
		log.Printf("Failed to log audit event: %v", err)
	}
}

// LogTocCheck records one status batch.
func (s *Service) LogTocCheck(statuses []entities.BookToCStatus, reportFile string) {
	summary := make(map[entities.TocClassification]int)
	rebuildable := 0
	for _, st := range statuses {
		summary[st.Classification]++
		if st.NeedsRebuild() {
			rebuildable++
		}
	}

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventTocCheck,
		Action:      "toc_status",
		Description: fmt.Sprintf("Checked %d books, %d can be rebuilt", len(statuses), rebuildable),
		EntityType:  "batch",
		Metadata: marshalMetadata(map[string]any{
			"summary":     summary,
			"report_file": reportFile,
		}),
		Status: entities.AuditStatusSuccess,
	}

	s.Log(event)
}

// LogTocRebuild records the rebuild of one book.
func (s *Service) LogTocRebuild(status entities.BookToCStatus, chapters, manifestEntries int, err error) {
	bookID := uint(status.Book.ID)
	event := &entities.AuditEvent{
		EventType:     entities.AuditEventTocUpdate,
		Action:        "toc_rebuild",
		Description:   fmt.Sprintf("Rebuilt %d chapter rows for %q", chapters, status.Book.Title),
		EntityType:    "book",
		EntityID:      &bookID,
		BookContentID: status.BookContentID,
		Metadata: marshalMetadata(map[string]any{
			"chapters":         chapters,
			"manifest_entries": manifestEntries,
			"sub_format":       status.SubFormat,
		}),
		Status: entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Description = fmt.Sprintf("Failed to rebuild chapters for %q", status.Book.Title)
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.Log(event)
}

// LogTocUpdate records the outcome of a whole update batch.
func (s *Service) LogTocUpdate(requested, updated int, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventTocUpdate,
		Action:      "toc_update",
		Description: fmt.Sprintf("Updated %d of %d books", updated, requested),
		EntityType:  "batch",
		Status:      entities.AuditStatusSuccess,
	}

	switch {
	case err != nil:
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	case updated < requested:
		event.Status = entities.AuditStatusPartial
	}

	s.Log(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(eventType, limit, offset)
}

// GetBookHistory returns the events recorded for one device book.
func (s *Service) GetBookHistory(bookContentID string) ([]entities.AuditEvent, error) {
	return s.repo.GetBookHistory(bookContentID)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

func marshalMetadata(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
