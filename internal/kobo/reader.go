package kobo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mrlokans/kobotoc/internal/contentid"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// Content row categories.
const (
	ContentTypeBook         = 6
	ContentTypeChapter      = 9
	ContentTypeKepubChapter = 899
)

// DeviceBook is a ContentType 6 row.
type DeviceBook struct {
	ContentID      string
	Title          string
	Attribution    string
	MimeType       string
	ReadStatus     int
	Bookmarked     string
	NumShortcovers int
}

const bookColumns = `ContentID, IFNULL(Title, ''), IFNULL(Attribution, ''), IFNULL(MimeType, ''),
	IFNULL(ReadStatus, 0), IFNULL(ChapterIDBookmarked, ''), IFNULL(NumShortcovers, 0)`

func scanBook(row interface{ Scan(...any) error }) (DeviceBook, error) {
	var b DeviceBook
	err := row.Scan(&b.ContentID, &b.Title, &b.Attribution, &b.MimeType, &b.ReadStatus, &b.Bookmarked, &b.NumShortcovers)
	return b, err
}

// Book returns the book row with the given content ID.
func (s *Store) Book(ctx context.Context, contentID string) (DeviceBook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM content WHERE ContentID = ? AND ContentType = ?`,
		contentID, ContentTypeBook)

	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceBook{}, fmt.Errorf("%w: %s", ErrBookNotFound, contentID)
	}
	if err != nil {
		return DeviceBook{}, fmt.Errorf("failed to read book %s: %w", contentID, err)
	}
	return b, nil
}

// BooksByTitle returns sideloaded book rows with an exact title match.
func (s *Store) BooksByTitle(ctx context.Context, title string) ([]DeviceBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM content
		WHERE ContentType = ? AND Title = ? AND ContentID LIKE 'file://%'
		ORDER BY ContentID`,
		ContentTypeBook, title)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []DeviceBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// DatabaseChapters returns the chapter rows stored for a book, ordered by
// VolumeIndex. KEPUB chapters live in ContentType 899 rows, EPUB chapters
// in ContentType 9 rows. Only query failures are returned as errors.
func (s *Store) DatabaseChapters(ctx context.Context, bookID string, f entities.SubFormat) ([]entities.ChapterDescriptor, error) {
	contentType := ContentTypeChapter
	if f == entities.SubFormatKEPUB {
		contentType = ContentTypeKepubChapter
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ContentID, IFNULL(Title, ''), IFNULL(Depth, 0) FROM content
		WHERE BookID = ? AND ContentType = ?
		ORDER BY VolumeIndex`,
		bookID, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters for %s: %w", bookID, err)
	}
	defer rows.Close()

	chapters := []entities.ChapterDescriptor{}
	for rows.Next() {
		var id, title string
		var depth int
		if err := rows.Scan(&id, &title, &depth); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}

		// A row whose ID does not follow the book's grammar is kept under
		// its raw ID. It can never match a file chapter, so the book still
		// reads as rebuildable.
		href, fragment, p := id, "", id
		if decoded, err := contentid.DecodeChapterPath(f, bookID, id); err != nil {
			log.Printf("Keeping undecodable chapter row %s: %v", id, err)
		} else {
			p = decoded
			var pathDepth int
			href, fragment, pathDepth = contentid.SplitChapterPath(f, p)
			if pathDepth > 0 {
				depth = pathDepth
			}
		}

		chapters = append(chapters, entities.ChapterDescriptor{
			Index:    len(chapters),
			Title:    title,
			Path:     p,
			Href:     href,
			Fragment: fragment,
			Depth:    depth,
		})
	}
	return chapters, rows.Err()
}

// DatabaseManifest returns the KEPUB manifest rows stored for a book in
// VolumeIndex order. Size holds the stored ___FileSize percentage.
func (s *Store) DatabaseManifest(ctx context.Context, bookID string) ([]entities.ManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ContentID, IFNULL(___FileSize, 0) FROM content
		WHERE BookID = ? AND ContentType = ?
		ORDER BY VolumeIndex`,
		bookID, ContentTypeChapter)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest for %s: %w", bookID, err)
	}
	defer rows.Close()

	entries := []entities.ManifestEntry{}
	for rows.Next() {
		var id string
		var size int64
		if err := rows.Scan(&id, &size); err != nil {
			return nil, fmt.Errorf("failed to scan manifest entry: %w", err)
		}

		p, err := contentid.DecodeChapterPath(entities.SubFormatKEPUB, bookID, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entities.ManifestEntry{Index: len(entries), Path: p, Size: size})
	}
	return entries, rows.Err()
}

// ReadingLocation returns the raw bookmark for a book, or "" when there is
// none to carry forward. Only EPUB books that are currently being read
// (ReadStatus 1) have a bookmark of the ({index}){path} shape.
func (s *Store) ReadingLocation(ctx context.Context, bookID string, f entities.SubFormat) (string, error) {
	if f != entities.SubFormatEPUB {
		return "", nil
	}

	b, err := s.Book(ctx, bookID)
	if err != nil {
		return "", err
	}
	if b.ReadStatus != 1 || strings.TrimSpace(b.Bookmarked) == "" {
		return "", nil
	}
	return contentid.BookmarkFromStored(bookID, b.Bookmarked), nil
}
