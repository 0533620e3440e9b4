package kobo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobotoc/internal/contentid"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/testutil"
)

const (
	epubID  = "file:///mnt/onboard/Author/Book.epub"
	kepubID = "file:///mnt/onboard/Author/Book.kepub.epub"
)

type contentRow struct {
	ContentID   string
	ContentType string
	MimeType    string
	Title       string
	Location    sql.NullString
	VolumeIndex int
	UserID      string
	FileOffset  int
	FileSize    int
	Depth       int
	Bookmarked  sql.NullString
}

func newDevice(t *testing.T) string {
	t.Helper()
	return testutil.CreateKoboDatabase(t, t.TempDir())
}

func openStore(t *testing.T, dbPath string) *Store {
	t.Helper()
	s, err := OpenStore(StoreConfig{DBPath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func epubChapters(paths ...string) []entities.ChapterDescriptor {
	out := make([]entities.ChapterDescriptor, len(paths))
	for i, p := range paths {
		href, frag, _ := contentid.SplitChapterPath(entities.SubFormatEPUB, p)
		out[i] = entities.ChapterDescriptor{Index: i, Title: "Chapter " + p, Path: p, Href: href, Fragment: frag, Depth: 1}
	}
	return out
}

func rebuild(t *testing.T, s *Store, plan RebuildPlan) (RebuildResult, error) {
	t.Helper()
	var result RebuildResult
	var rebuildErr error
	err := s.Update(context.Background(), func(w *Writer) error {
		result, rebuildErr = w.Rebuild(context.Background(), plan)
		return nil
	})
	require.NoError(t, err)
	return result, rebuildErr
}

func bookRows(t *testing.T, dbPath, bookID string) []contentRow {
	t.Helper()
	db := testutil.OpenSQLite(t, dbPath)
	defer db.Close()

	rows, err := db.Query(`SELECT ContentID, ContentType, MimeType, IFNULL(Title, ''), adobe_location,
		VolumeIndex, IFNULL(___UserID, ''), IFNULL(___FileOffset, 0), IFNULL(___FileSize, 0), IFNULL(Depth, 0), ChapterIDBookmarked
		FROM content WHERE BookID = ? ORDER BY CAST(ContentType AS INTEGER), VolumeIndex`, bookID)
	require.NoError(t, err)
	defer rows.Close()

	var out []contentRow
	for rows.Next() {
		var r contentRow
		require.NoError(t, rows.Scan(&r.ContentID, &r.ContentType, &r.MimeType, &r.Title, &r.Location,
			&r.VolumeIndex, &r.UserID, &r.FileOffset, &r.FileSize, &r.Depth, &r.Bookmarked))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func shortcovers(t *testing.T, dbPath, bookID string) []string {
	t.Helper()
	db := testutil.OpenSQLite(t, dbPath)
	defer db.Close()

	rows, err := db.Query(`SELECT shortcoverId FROM volume_shortcovers WHERE volumeId = ? ORDER BY VolumeIndex`, bookID)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		out = append(out, id)
	}
	return out
}
