package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/kobotoc/internal/entities"
)

// Report is the JSON document written for one status batch.
type Report struct {
	ID          string                             `json:"id"`
	GeneratedAt time.Time                          `json:"generated_at"`
	Summary     map[entities.TocClassification]int `json:"summary"`
	Books       []entities.BookToCStatus           `json:"books"`
}

// NewReport summarizes a batch of statuses by classification.
func NewReport(statuses []entities.BookToCStatus) Report {
	summary := make(map[entities.TocClassification]int)
	for _, s := range statuses {
		summary[s.Classification]++
	}
	return Report{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Books:       statuses,
	}
}

type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveReport writes the report to {AuditDir}/{report ID}.json and returns
// the filename.
func (a *Auditor) SaveReport(r Report) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return a.save(r.ID, r)
}

func (a *Auditor) save(id string, data any) (string, error) {
	if err := os.MkdirAll(a.AuditDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}

	filename := id + ".json"
	target := filepath.Join(a.AuditDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	if err := os.WriteFile(target, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}

	log.Printf("Saved audit file: %s", target)
	return filename, nil
}

// DeleteOldReports removes report files last modified before olderThan.
// A missing audit directory is not an error.
func (a *Auditor) DeleteOldReports(olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(a.AuditDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list audit directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return removed, err
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(a.AuditDir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
