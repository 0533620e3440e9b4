package kobo

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/testutil"
)

func TestRebuild_ReplacesStaleRows(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: epubID, Title: "Book"})
	for i, p := range []string{"a.xhtml", "b.xhtml", "c.xhtml", "d.xhtml"} {
		testutil.InsertKoboRow(t, dbPath, epubID+"#("+strconv.Itoa(i)+")"+p, "9", epubID, p, i, 1)
	}
	s := openStore(t, dbPath)

	result, err := rebuild(t, s, RebuildPlan{
		BookContentID: epubID,
		BookTitle:     "Book",
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("a.xhtml", "b.xhtml", "c.xhtml"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chapters)

	rows := bookRows(t, dbPath, epubID)
	require.Len(t, rows, 3)
	assert.Equal(t, epubID+"#(0)a.xhtml", rows[0].ContentID)
	assert.Equal(t, epubID+"#(2)c.xhtml", rows[2].ContentID)
	assert.Equal(t, "9", rows[1].ContentType)
	assert.Equal(t, "application/epub+zip", rows[1].MimeType)
	assert.Equal(t, "adobe_user", rows[1].UserID)
	assert.Equal(t, "b.xhtml", rows[1].Location.String)
	assert.Equal(t, "Chapter b.xhtml", rows[1].Title)

	assert.Equal(t, []string{epubID + "#(0)a.xhtml", epubID + "#(1)b.xhtml", epubID + "#(2)c.xhtml"}, shortcovers(t, dbPath, epubID))

	book, err := s.Book(context.Background(), epubID)
	require.NoError(t, err)
	assert.Equal(t, 3, book.NumShortcovers)

	chapters, err := s.DatabaseChapters(context.Background(), epubID, entities.SubFormatEPUB)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xhtml", "b.xhtml", "c.xhtml"}, []string{chapters[0].Path, chapters[1].Path, chapters[2].Path})
}

func TestRebuild_IsRepeatable(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: epubID, Title: "Book"})
	s := openStore(t, dbPath)

	plan := RebuildPlan{
		BookContentID: epubID,
		BookTitle:     "Book",
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("a.xhtml", "a.xhtml#s2", "b.xhtml", "c.xhtml", "d.xhtml"),
	}

	_, err := rebuild(t, s, plan)
	require.NoError(t, err)
	first := bookRows(t, dbPath, epubID)

	_, err = rebuild(t, s, plan)
	require.NoError(t, err)
	assert.Equal(t, first, bookRows(t, dbPath, epubID))
	assert.Len(t, shortcovers(t, dbPath, epubID), 5)
}

func TestRebuild_KEPUB(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: kepubID, Title: "Book", MimeType: "application/x-kobo-epub+zip"})
	s := openStore(t, dbPath)

	_, err := rebuild(t, s, RebuildPlan{
		BookContentID: kepubID,
		BookTitle:     "Book",
		SubFormat:     entities.SubFormatKEPUB,
		OPFDir:        "OEBPS",
		Chapters: []entities.ChapterDescriptor{
			{Title: "One", Path: "Text/a.xhtml-1", Href: "Text/a.xhtml", Depth: 1},
			{Title: "One B", Path: "Text/a.xhtml#p2-2", Href: "Text/a.xhtml", Fragment: "p2", Depth: 2},
		},
		Manifest: []entities.ManifestEntry{
			{Index: 0, Path: "Text/a.xhtml", Size: 100},
			{Index: 1, Path: "Text/b.xhtml", Size: 300},
			{Index: 2, Path: "Text/c.xhtml", Size: 600},
		},
	})
	require.NoError(t, err)

	rows := bookRows(t, dbPath, kepubID)
	require.Len(t, rows, 5)

	manifest, chapters := rows[:3], rows[3:]
	assert.Equal(t, "/mnt/onboard/Author/Book.kepub.epub!OEBPS!Text/a.xhtml-1", chapters[0].ContentID)
	assert.Equal(t, "/mnt/onboard/Author/Book.kepub.epub!OEBPS!Text/a.xhtml#p2-2", chapters[1].ContentID)
	assert.Equal(t, "899", chapters[1].ContentType)
	assert.Equal(t, "application/x-kobo-epub+zip", chapters[1].MimeType)
	assert.Equal(t, "/mnt/onboard/Author/Book.kepub.epub!OEBPS!Text/a.xhtml", chapters[1].Bookmarked.String)
	assert.False(t, chapters[1].Location.Valid)
	assert.Equal(t, 2, chapters[1].Depth)

	assert.Equal(t, "/mnt/onboard/Author/Book.kepub.epub!OEBPS!Text/c.xhtml", manifest[2].ContentID)
	assert.Equal(t, "application/xhtml+xml", manifest[2].MimeType)
	assert.Equal(t, "Text/c.xhtml", manifest[2].Title)
	assert.Equal(t, []int{0, 10, 40}, []int{manifest[0].FileOffset, manifest[1].FileOffset, manifest[2].FileOffset})
	assert.Equal(t, []int{10, 30, 60}, []int{manifest[0].FileSize, manifest[1].FileSize, manifest[2].FileSize})

	// only manifest rows get shortcover links
	assert.Len(t, shortcovers(t, dbPath, kepubID), 3)

	book, err := s.Book(context.Background(), kepubID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.NumShortcovers)

	dbChapters, err := s.DatabaseChapters(context.Background(), kepubID, entities.SubFormatKEPUB)
	require.NoError(t, err)
	require.Len(t, dbChapters, 2)
	assert.Equal(t, "Text/a.xhtml#p2-2", dbChapters[1].Path)
	assert.Equal(t, "p2", dbChapters[1].Fragment)

	dbManifest, err := s.DatabaseManifest(context.Background(), kepubID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Text/a.xhtml", "Text/b.xhtml", "Text/c.xhtml"},
		[]string{dbManifest[0].Path, dbManifest[1].Path, dbManifest[2].Path})
}

func TestRebuild_KEPUBDuplicateEntries(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: kepubID, Title: "Book", MimeType: "application/x-kobo-epub+zip"})
	s := openStore(t, dbPath)

	// Cover and Title Page point at the same file with no fragment, so they
	// map to one device row.
	result, err := rebuild(t, s, RebuildPlan{
		BookContentID: kepubID,
		BookTitle:     "Book",
		SubFormat:     entities.SubFormatKEPUB,
		OPFDir:        "OEBPS",
		Chapters: []entities.ChapterDescriptor{
			{Title: "Cover", Path: "a.xhtml-1", Href: "a.xhtml", Depth: 1},
			{Title: "Title Page", Path: "a.xhtml-1", Href: "a.xhtml", Depth: 1},
			{Title: "Chapter", Path: "b.xhtml-1", Href: "b.xhtml", Depth: 1},
		},
		Manifest: []entities.ManifestEntry{
			{Index: 0, Path: "a.xhtml", Size: 100},
			{Index: 1, Path: "b.xhtml", Size: 300},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chapters)
	assert.Equal(t, 1, result.DuplicatesSkipped)

	rows := bookRows(t, dbPath, kepubID)
	require.Len(t, rows, 4)
	chapters := rows[2:]
	assert.Equal(t, "Cover", chapters[0].Title)
	assert.Equal(t, "Chapter", chapters[1].Title)
	assert.Equal(t, []int{0, 1}, []int{chapters[0].VolumeIndex, chapters[1].VolumeIndex})

	book, err := s.Book(context.Background(), kepubID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.NumShortcovers)

	dbChapters, err := s.DatabaseChapters(context.Background(), kepubID, entities.SubFormatKEPUB)
	require.NoError(t, err)
	assert.Len(t, dbChapters, book.NumShortcovers)
}

func TestRebuild_KeepsRowsOfOtherBooks(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: epubID, Title: "Book"})
	s := openStore(t, dbPath)

	other := "file:///mnt/onboard/Author/Other.epub"
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: other, Title: "Other"})
	testutil.InsertKoboRow(t, dbPath, other+"#(0)OEBPS/a.xhtml", "9", other, "Other One", 0, 1)
	// misattached row already holding the first new ID
	testutil.InsertKoboRow(t, dbPath, epubID+"#(0)OEBPS/a.xhtml", "9", other, "Stray", 1, 1)

	_, err := rebuild(t, s, RebuildPlan{
		BookContentID: epubID,
		BookTitle:     "Book",
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("OEBPS/a.xhtml", "OEBPS/b.xhtml"),
	})
	require.NoError(t, err)

	assert.Len(t, bookRows(t, dbPath, epubID), 2)
	rows := bookRows(t, dbPath, other)
	require.Len(t, rows, 1)
	assert.Equal(t, "Other One", rows[0].Title)
}

func TestRebuild_RemovesStaleFinishSentinel(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: epubID, Title: "Book"})
	stale := epubID + "#(7)OEBPS/finish.xhtml"
	testutil.InsertKoboRow(t, dbPath, stale, "9", "orphaned", "The End", 7, 1)
	s := openStore(t, dbPath)

	result, err := rebuild(t, s, RebuildPlan{
		BookContentID: epubID,
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("OEBPS/a.xhtml", "OEBPS/finish.xhtml"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SentinelsRemoved)
	assert.Empty(t, bookRows(t, dbPath, "orphaned"))
	assert.Len(t, bookRows(t, dbPath, epubID), 2)
}

func TestRebuild_CarriesBookmarkForward(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{
		ContentID:  epubID,
		Title:      "Book",
		ReadStatus: 1,
		Bookmark:   epubID + "#(2)c.xhtml#frag",
	})
	s := openStore(t, dbPath)

	result, err := rebuild(t, s, RebuildPlan{
		BookContentID: epubID,
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("a.xhtml", "c.xhtml"),
		CarryForward:  &entities.Bookmark{OrderIndex: 1, Path: "c.xhtml", Fragment: "frag"},
	})
	require.NoError(t, err)
	assert.True(t, result.BookmarkWritten)

	loc, err := s.ReadingLocation(context.Background(), epubID, entities.SubFormatEPUB)
	require.NoError(t, err)
	assert.Equal(t, "(1)c.xhtml#frag", loc)
}

func TestRebuild_FailureLeavesRowsUntouched(t *testing.T) {
	dbPath := newDevice(t)
	testutil.InsertKoboBook(t, dbPath, testutil.KoboBook{ContentID: epubID, Title: "Book"})
	testutil.InsertKoboRow(t, dbPath, epubID+"#(0)old.xhtml", "9", epubID, "Old", 0, 1)

	db := testutil.OpenSQLite(t, dbPath)
	_, err := db.Exec(`DROP TABLE volume_shortcovers`)
	require.NoError(t, err)
	db.Close()

	s := openStore(t, dbPath)
	_, err = rebuild(t, s, RebuildPlan{
		BookContentID: epubID,
		SubFormat:     entities.SubFormatEPUB,
		Chapters:      epubChapters("a.xhtml"),
	})
	require.Error(t, err)

	rows := bookRows(t, dbPath, epubID)
	require.Len(t, rows, 1)
	assert.Equal(t, epubID+"#(0)old.xhtml", rows[0].ContentID)
}

func TestRebuild_Rejects(t *testing.T) {
	dbPath := newDevice(t)
	s := openStore(t, dbPath)

	_, err := rebuild(t, s, RebuildPlan{BookContentID: epubID, SubFormat: entities.SubFormatEPUB})
	assert.ErrorIs(t, err, ErrNothingToWrite)

	_, err = rebuild(t, s, RebuildPlan{BookContentID: epubID, SubFormat: entities.SubFormatEPUB, Chapters: epubChapters("a.xhtml")})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestPlanFromStatus(t *testing.T) {
	s := entities.BookToCStatus{
		Book:               entities.LibraryBook{ID: 3, Title: "Book"},
		BookContentID:      kepubID,
		SubFormat:          entities.SubFormatKEPUB,
		DeviceOPFDir:       "OEBPS",
		DeviceFileChapters: epubChapters("a.xhtml"),
		DeviceFileManifest: []entities.ManifestEntry{{Path: "a.xhtml", Size: 1}},
	}

	plan := PlanFromStatus(s)
	assert.Equal(t, kepubID, plan.BookContentID)
	assert.Equal(t, "Book", plan.BookTitle)
	assert.Equal(t, "OEBPS", plan.OPFDir)
	assert.Len(t, plan.Chapters, 1)
	assert.Len(t, plan.Manifest, 1)
	assert.Nil(t, plan.CarryForward)
}
