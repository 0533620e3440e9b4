package tocstatus

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobotoc/internal/calibre"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/kobo"
	"github.com/mrlokans/kobotoc/internal/testutil"
)

type device struct {
	mount  string
	dbPath string
}

func newDevice(t *testing.T) device {
	t.Helper()
	mount := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mount, ".kobo"), 0755))
	return device{mount: mount, dbPath: testutil.CreateKoboDatabase(t, filepath.Join(mount, ".kobo"))}
}

func newLibrary(t *testing.T, f testutil.EPUBFixture, format string) string {
	t.Helper()
	root := t.TempDir()
	testutil.CreateCalibreLibrary(t, root)
	testutil.InsertCalibreBook(t, root, testutil.CalibreBook{
		ID:      1,
		Title:   "Book",
		Authors: []string{"Author"},
		Path:    "Author/Book (1)",
		Formats: map[string]string{format: "Book - Author"},
	})
	testutil.WriteEPUB(t, filepath.Join(root, "Author", "Book (1)"), "Book - Author."+format, f)
	return root
}

func evaluator(t *testing.T, d device, libRoot string) (*Evaluator, *kobo.Store) {
	t.Helper()

	store, err := kobo.OpenStore(kobo.StoreConfig{DBPath: d.dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	lib, err := calibre.OpenLibrary(libRoot)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	return NewEvaluator(kobo.NewLocator(store, d.mount), lib, store, EPUBOpener, Options{AllowEPUBForKEPUB: true}), store
}

func rebuild(t *testing.T, store *kobo.Store, s entities.BookToCStatus) {
	t.Helper()
	require.True(t, s.NeedsRebuild())
	err := store.Update(context.Background(), func(w *kobo.Writer) error {
		_, err := w.Rebuild(context.Background(), kobo.PlanFromStatus(s))
		return err
	})
	require.NoError(t, err)
}

func TestReconcile_EPUB(t *testing.T) {
	ctx := context.Background()
	epubFile := testutil.Chapters("One", "Two", "Three")

	d := newDevice(t)
	libRoot := newLibrary(t, epubFile, "epub")
	testutil.WriteEPUB(t, filepath.Join(d.mount, "Author"), "Book.epub", epubFile)
	testutil.InsertKoboBook(t, d.dbPath, testutil.KoboBook{ContentID: bookID, Title: "Book", Author: "Author", ReadStatus: 1, Bookmark: bookID + "#(3)OEBPS/Text/ch3.xhtml"})
	for i, name := range []string{"ch1", "extra", "ch2", "ch3"} {
		testutil.InsertKoboRow(t, d.dbPath, bookID+"#("+strconv.Itoa(i)+")OEBPS/Text/"+name+".xhtml", "9", bookID, name, i, 1)
	}

	e, store := evaluator(t, d, libRoot)
	s := e.Evaluate(ctx, entities.LibraryBook{ID: 1, Title: "Book", Authors: "Author"})

	assert.Equal(t, entities.TocNeedsDatabaseRebuild, s.Classification)
	assert.True(t, s.FileMatchesLibrary)
	assert.False(t, s.DBMatchesFile)
	assert.Equal(t, entities.MismatchCount, s.DBMismatch.Field)
	require.NotNil(t, s.CarryForward)
	assert.Equal(t, 2, s.CarryForward.OrderIndex)

	rebuild(t, store, s)

	again := e.Evaluate(ctx, s.Book)
	assert.True(t, again.DBMatchesFile)
	assert.True(t, again.OverallGood)
	assert.Len(t, again.DeviceDBChapters, 3)
	assert.Equal(t, "(2)OEBPS/Text/ch3.xhtml", again.ReadingLocation)

	book, err := store.Book(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 3, book.NumShortcovers)
}

func TestReconcile_UndecodableRowIsRebuilt(t *testing.T) {
	ctx := context.Background()
	epubFile := testutil.Chapters("One", "Two")

	d := newDevice(t)
	libRoot := newLibrary(t, epubFile, "epub")
	testutil.WriteEPUB(t, filepath.Join(d.mount, "Author"), "Book.epub", epubFile)
	testutil.InsertKoboBook(t, d.dbPath, testutil.KoboBook{ContentID: bookID, Title: "Book", Author: "Author"})
	testutil.InsertKoboRow(t, d.dbPath, bookID+"#(0)OEBPS/Text/ch1.xhtml", "9", bookID, "ch1", 0, 1)
	testutil.InsertKoboRow(t, d.dbPath, "leftover-from-old-firmware", "9", bookID, "ch2", 1, 1)

	e, store := evaluator(t, d, libRoot)
	s := e.Evaluate(ctx, entities.LibraryBook{ID: 1, Title: "Book", Authors: "Author"})

	assert.Equal(t, entities.TocNeedsDatabaseRebuild, s.Classification)
	assert.True(t, s.CanRebuild)
	require.Len(t, s.DeviceDBChapters, 2)
	assert.Equal(t, "leftover-from-old-firmware", s.DeviceDBChapters[1].Path)

	rebuild(t, store, s)

	again := e.Evaluate(ctx, s.Book)
	assert.Equal(t, entities.TocOK, again.Classification)
	assert.Len(t, again.DeviceDBChapters, 2)
}

func TestReconcile_KEPUBFromLibraryEPUB(t *testing.T) {
	ctx := context.Background()
	epubFile := testutil.Chapters("One", "Two")

	d := newDevice(t)
	libRoot := newLibrary(t, epubFile, "epub")
	testutil.WriteEPUB(t, filepath.Join(d.mount, "Author"), "Book.kepub.epub", epubFile)
	testutil.InsertKoboBook(t, d.dbPath, testutil.KoboBook{ContentID: kepubID, Title: "Book", MimeType: "application/x-kobo-epub+zip"})
	testutil.InsertKoboRow(t, d.dbPath, "/mnt/onboard/Author/Book.kepub.epub!OEBPS!Text/ch1.xhtml-1", "899", kepubID, "One", 0, 1)

	e, store := evaluator(t, d, libRoot)
	s := e.Evaluate(ctx, entities.LibraryBook{ID: 1, Title: "Book"})

	assert.Equal(t, "EPUB", s.LibraryFormat)
	assert.Equal(t, entities.SubFormatKEPUB, s.SubFormat)
	assert.Equal(t, []string{"Text/ch1.xhtml-1", "Text/ch2.xhtml-1"}, []string{s.DeviceFileChapters[0].Path, s.DeviceFileChapters[1].Path})
	assert.Equal(t, entities.TocNeedsDatabaseRebuild, s.Classification)

	rebuild(t, store, s)

	again := e.Evaluate(ctx, s.Book)
	assert.Equal(t, entities.TocOK, again.Classification)
	assert.Len(t, again.DeviceDBManifest, 2)
}

func TestReconcile_MissingAndDRM(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t)

	locked := testutil.Chapters("One")
	locked.DRM = true
	libRoot := newLibrary(t, testutil.Chapters("One"), "epub")
	testutil.WriteEPUB(t, filepath.Join(d.mount, "Author"), "Book.epub", locked)
	testutil.InsertKoboBook(t, d.dbPath, testutil.KoboBook{ContentID: bookID, Title: "Book"})
	testutil.InsertKoboRow(t, d.dbPath, bookID+"#(0)OEBPS/Text/ch1.xhtml", "9", bookID, "One", 0, 1)

	e, _ := evaluator(t, d, libRoot)

	s := e.Evaluate(ctx, entities.LibraryBook{ID: 1, Title: "Book"})
	assert.Equal(t, entities.TocDeviceDRM, s.Classification)
	assert.False(t, s.CanRebuild)

	missing := e.Evaluate(ctx, entities.LibraryBook{ID: 2, Title: "Not There"})
	assert.Equal(t, entities.TocMissingOnDevice, missing.Classification)
	assert.False(t, missing.CanRebuild)
}
