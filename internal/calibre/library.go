// Package calibre locates book formats in a calibre library by reading its
// metadata.db.
package calibre

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mrlokans/kobotoc/internal/entities"
)

var ErrBookNotFound = errors.New("book not found in library")

// MetadataFile is the library database file name.
const MetadataFile = "metadata.db"

type Library struct {
	root string
	db   *sql.DB
}

// OpenLibrary opens the library rooted at root read-only.
func OpenLibrary(root string) (*Library, error) {
	dbPath := filepath.Join(root, MetadataFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("library database not found at %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}
	return &Library{root: root, db: db}, nil
}

func (l *Library) Close() error {
	return l.db.Close()
}

// Books returns the books with the given IDs in ID order, or every book
// when ids is empty. Unknown IDs are reported with ErrBookNotFound.
func (l *Library) Books(ctx context.Context, ids []int) ([]entities.LibraryBook, error) {
	query := `SELECT id, title FROM books`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []entities.LibraryBook
	for rows.Next() {
		var b entities.LibraryBook
		if err := rows.Scan(&b.ID, &b.Title); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 && len(books) != len(ids) {
		found := make(map[int]bool, len(books))
		for _, b := range books {
			found[b.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("%w: %d", ErrBookNotFound, id)
			}
		}
	}

	for i := range books {
		authors, err := l.authors(ctx, books[i].ID)
		if err != nil {
			return nil, err
		}
		books[i].Authors = strings.Join(authors, " & ")
	}

	return books, nil
}

func (l *Library) authors(ctx context.Context, bookID int) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT a.name FROM authors a
		JOIN books_authors_link bal ON bal.author = a.id
		WHERE bal.book = ?
		ORDER BY bal.id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query authors for book %d: %w", bookID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Formats returns the upper-case formats stored for a book.
func (l *Library) Formats(ctx context.Context, bookID int) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT UPPER(format) FROM data WHERE book = ? ORDER BY format`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query formats for book %d: %w", bookID, err)
	}
	defer rows.Close()

	var formats []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, rows.Err()
}

// FormatPath returns the file of one format of a book. It reports false
// when the book has no such format or the file is missing.
func (l *Library) FormatPath(ctx context.Context, bookID int, format string) (string, bool, error) {
	var dir, name string
	err := l.db.QueryRowContext(ctx, `SELECT b.path, d.name FROM books b
		JOIN data d ON d.book = b.id
		WHERE b.id = ? AND UPPER(d.format) = ?`,
		bookID, strings.ToUpper(format)).Scan(&dir, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s for book %d: %w", format, bookID, err)
	}

	p := filepath.Join(l.root, filepath.FromSlash(dir), name+"."+strings.ToLower(format))
	if _, err := os.Stat(p); err != nil {
		return "", false, nil
	}
	return p, true, nil
}
