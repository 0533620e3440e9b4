package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// KoboSchema is the subset of the device content store used by the ToC
// reconciliation.
const KoboSchema = `
CREATE TABLE content (
	ContentID TEXT NOT NULL PRIMARY KEY,
	ContentType TEXT NOT NULL,
	MimeType TEXT NOT NULL,
	BookID TEXT,
	BookTitle TEXT,
	Title TEXT,
	Attribution TEXT,
	adobe_location TEXT,
	IsEncrypted BOOL,
	FirstTimeReading BOOL,
	ParagraphBookmarked INTEGER,
	BookmarkWordOffset INTEGER,
	VolumeIndex INTEGER,
	___NumPages INTEGER,
	ReadStatus INTEGER DEFAULT 0,
	___UserID TEXT,
	___FileOffset INTEGER,
	___FileSize INTEGER,
	___PercentRead INTEGER,
	Depth INTEGER,
	ChapterIDBookmarked TEXT,
	NumShortcovers INTEGER
);
CREATE TABLE volume_shortcovers (
	volumeId TEXT NOT NULL,
	shortcoverId TEXT NOT NULL,
	VolumeIndex INTEGER,
	PRIMARY KEY (volumeId, shortcoverId)
);
`

// KoboBook is a book row to seed.
type KoboBook struct {
	ContentID  string
	Title      string
	Author     string
	MimeType   string
	ReadStatus int
	Bookmark   string
}

// CreateKoboDatabase creates an empty device database in dir and returns
// its path.
func CreateKoboDatabase(t testing.TB, dir string) string {
	t.Helper()

	p := filepath.Join(dir, "KoboReader.sqlite")
	db := OpenSQLite(t, p)
	defer db.Close()

	if _, err := db.Exec(KoboSchema); err != nil {
		t.Fatalf("create kobo schema: %v", err)
	}
	return p
}

// OpenSQLite opens a SQLite database file for fixture setup or assertions.
func OpenSQLite(t testing.TB, p string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	return db
}

// InsertKoboBook seeds a ContentType 6 book row.
func InsertKoboBook(t testing.TB, dbPath string, b KoboBook) {
	t.Helper()

	if b.MimeType == "" {
		b.MimeType = "application/epub+zip"
	}
	var bookmark any
	if b.Bookmark != "" {
		bookmark = b.Bookmark
	}

	db := OpenSQLite(t, dbPath)
	defer db.Close()

	_, err := db.Exec(`INSERT INTO content
		(ContentID, ContentType, MimeType, BookID, BookTitle, Title, Attribution, ReadStatus, ChapterIDBookmarked, NumShortcovers)
		VALUES (?, 6, ?, NULL, NULL, ?, ?, ?, ?, 0)`,
		b.ContentID, b.MimeType, b.Title, b.Author, b.ReadStatus, bookmark)
	if err != nil {
		t.Fatalf("insert kobo book: %v", err)
	}
}

// InsertKoboRow seeds one synthetic chapter or manifest row.
func InsertKoboRow(t testing.TB, dbPath, contentID, contentType, bookID, title string, volumeIndex, depth int) {
	t.Helper()

	db := OpenSQLite(t, dbPath)
	defer db.Close()

	_, err := db.Exec(`INSERT INTO content
		(ContentID, ContentType, MimeType, BookID, BookTitle, Title, VolumeIndex, Depth)
		VALUES (?, ?, 'application/epub+zip', ?, '', ?, ?, ?)`,
		contentID, contentType, bookID, title, volumeIndex, depth)
	if err != nil {
		t.Fatalf("insert kobo row: %v", err)
	}
}
