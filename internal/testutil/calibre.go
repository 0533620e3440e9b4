package testutil

import (
	"path/filepath"
	"testing"
)

// CalibreSchema is the subset of a calibre metadata.db the library
// locator reads.
const CalibreSchema = `
CREATE TABLE books (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL DEFAULT 'Unknown',
	sort TEXT,
	path TEXT NOT NULL DEFAULT ''
);
CREATE TABLE authors (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE books_authors_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	author INTEGER NOT NULL,
	UNIQUE(book, author)
);
CREATE TABLE data (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	format TEXT NOT NULL,
	uncompressed_size INTEGER NOT NULL,
	name TEXT NOT NULL,
	UNIQUE(book, format)
);
`

// CalibreBook is a library book to seed. Formats maps an upper-case format
// to the file name without extension.
type CalibreBook struct {
	ID      int
	Title   string
	Authors []string
	Path    string
	Formats map[string]string
}

// CreateCalibreLibrary creates an empty metadata.db in root.
func CreateCalibreLibrary(t testing.TB, root string) string {
	t.Helper()

	p := filepath.Join(root, "metadata.db")
	db := OpenSQLite(t, p)
	defer db.Close()

	if _, err := db.Exec(CalibreSchema); err != nil {
		t.Fatalf("create calibre schema: %v", err)
	}
	return p
}

// InsertCalibreBook seeds a book with its authors and format rows.
func InsertCalibreBook(t testing.TB, root string, b CalibreBook) {
	t.Helper()

	db := OpenSQLite(t, filepath.Join(root, "metadata.db"))
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO books (id, title, sort, path) VALUES (?, ?, ?, ?)`, b.ID, b.Title, b.Title, b.Path); err != nil {
		t.Fatalf("insert calibre book: %v", err)
	}
	for _, name := range b.Authors {
		if _, err := db.Exec(`INSERT OR IGNORE INTO authors (name) VALUES (?)`, name); err != nil {
			t.Fatalf("insert calibre author: %v", err)
		}
		if _, err := db.Exec(`INSERT INTO books_authors_link (book, author) SELECT ?, id FROM authors WHERE name = ?`, b.ID, name); err != nil {
			t.Fatalf("link calibre author: %v", err)
		}
	}
	for format, name := range b.Formats {
		if _, err := db.Exec(`INSERT INTO data (book, format, uncompressed_size, name) VALUES (?, ?, 0, ?)`, b.ID, format, name); err != nil {
			t.Fatalf("insert calibre format: %v", err)
		}
	}
}
