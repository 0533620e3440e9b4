package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobotoc/internal/entities"
)

func sampleStatuses() []entities.BookToCStatus {
	return []entities.BookToCStatus{
		{Book: entities.LibraryBook{ID: 1, Title: "One"}, Classification: entities.TocOK},
		{Book: entities.LibraryBook{ID: 2, Title: "Two"}, Classification: entities.TocNeedsDatabaseRebuild},
		{Book: entities.LibraryBook{ID: 3, Title: "Three"}, Classification: entities.TocNeedsDatabaseRebuild},
	}
}

func TestAuditor_SaveReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	auditor := NewAuditor(dir)

	report := NewReport(sampleStatuses())
	assert.Equal(t, 2, report.Summary[entities.TocNeedsDatabaseRebuild])
	assert.Equal(t, 1, report.Summary[entities.TocOK])

	filename, err := auditor.SaveReport(report)
	require.NoError(t, err)
	assert.Equal(t, report.ID+".json", filename)

	content, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	var saved Report
	require.NoError(t, json.Unmarshal(content, &saved))
	assert.Equal(t, report.ID, saved.ID)
	require.Len(t, saved.Books, 3)
	assert.Equal(t, "Two", saved.Books[1].Book.Title)
	assert.Equal(t, entities.TocNeedsDatabaseRebuild, saved.Books[1].Classification)
}

func TestAuditor_SaveReport_UniqueNames(t *testing.T) {
	auditor := NewAuditor(t.TempDir())

	filename1, err := auditor.SaveReport(NewReport(nil))
	require.NoError(t, err)
	filename2, err := auditor.SaveReport(Report{})
	require.NoError(t, err)

	assert.NotEqual(t, filename1, filename2)
	assert.Contains(t, filename2, ".json")
}

func TestAuditor_DeleteOldReports(t *testing.T) {
	dir := t.TempDir()
	auditor := NewAuditor(dir)

	oldFile, err := auditor.SaveReport(NewReport(nil))
	require.NoError(t, err)
	newFile, err := auditor.SaveReport(NewReport(nil))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldFile), past, past))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), past, past))

	removed, err := auditor.DeleteOldReports(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, filepath.Join(dir, oldFile))
	assert.FileExists(t, filepath.Join(dir, newFile))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestAuditor_DeleteOldReports_MissingDir(t *testing.T) {
	auditor := NewAuditor(filepath.Join(t.TempDir(), "none"))

	removed, err := auditor.DeleteOldReports(time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
