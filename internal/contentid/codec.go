// Package contentid encodes and decodes the identifiers a Kobo device uses
// for synthetic chapter and manifest rows, and the reading-location bookmark
// stored against a book.
//
// Grammars:
//
//	EPUB chapter:   {bookId}#({orderIndex}){path}[#{fragment}]
//	KEPUB chapter:  {bookId}!{opfDir}!{path}[#{fragment}]-{depth}
//	KEPUB manifest: {bookIdSansScheme}!{opfDir}!{path}
//	bookmark:       ({orderIndex}){path}[#{fragment}]
package contentid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mrlokans/kobotoc/internal/entities"
)

// FileScheme prefixes content IDs of sideloaded books.
const FileScheme = "file://"

var (
	ErrBookmarkAbsent      = errors.New("bookmark is absent")
	ErrBookmarkUnparseable = errors.New("bookmark is not parseable")
	ErrMalformedContentID  = errors.New("malformed chapter content id")
)

var (
	bookmarkPattern    = regexp.MustCompile(`^\((\d+)\)([^#]+)(?:#(.*))?$`)
	depthSuffixPattern = regexp.MustCompile(`^(.*)-(\d+)$`)
)

// StripScheme removes the file:// prefix when present.
func StripScheme(id string) string {
	return strings.TrimPrefix(id, FileScheme)
}

// ChapterPath builds the comparison path of a chapter for the sub-format.
func ChapterPath(f entities.SubFormat, href, fragment string, depth int) string {
	p := href
	if fragment != "" {
		p = p + "#" + fragment
	}
	if f == entities.SubFormatKEPUB {
		p = fmt.Sprintf("%s-%d", p, depth)
	}
	return p
}

// EncodeChapterID returns the content ID of a chapter row.
func EncodeChapterID(f entities.SubFormat, bookID, opfDir string, c entities.ChapterDescriptor) string {
	switch f {
	case entities.SubFormatKEPUB:
		return fmt.Sprintf("%s!%s!%s", bookID, opfDir, ChapterPath(f, c.Href, c.Fragment, c.Depth))
	default:
		return fmt.Sprintf("%s#(%d)%s", bookID, c.Index, ChapterPath(f, c.Href, c.Fragment, c.Depth))
	}
}

// EncodeManifestID returns the content ID of a KEPUB manifest row.
func EncodeManifestID(bookID, opfDir, path string) string {
	return fmt.Sprintf("%s!%s!%s", StripScheme(bookID), opfDir, path)
}

// DecodeChapterPath extracts the comparison path from a stored chapter row ID.
func DecodeChapterPath(f entities.SubFormat, bookID, contentID string) (string, error) {
	if f == entities.SubFormatKEPUB {
		first := strings.Index(contentID, "!")
		if first < 0 {
			return "", fmt.Errorf("%w: %q", ErrMalformedContentID, contentID)
		}
		second := strings.Index(contentID[first+1:], "!")
		if second < 0 {
			return "", fmt.Errorf("%w: %q", ErrMalformedContentID, contentID)
		}
		return contentID[first+second+2:], nil
	}

	rest, ok := strings.CutPrefix(contentID, bookID)
	if !ok || !strings.HasPrefix(rest, "#(") {
		return "", fmt.Errorf("%w: %q", ErrMalformedContentID, contentID)
	}
	closing := strings.Index(rest, ")")
	if closing < 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedContentID, contentID)
	}
	return rest[closing+1:], nil
}

// SplitChapterPath breaks a comparison path back into href, fragment and
// depth. Depth is 0 for EPUB paths.
func SplitChapterPath(f entities.SubFormat, p string) (href, fragment string, depth int) {
	if f == entities.SubFormatKEPUB {
		if m := depthSuffixPattern.FindStringSubmatch(p); m != nil {
			p = m[1]
			depth, _ = strconv.Atoi(m[2])
		}
	}
	href, fragment, _ = strings.Cut(p, "#")
	return href, fragment, depth
}

// KepubBookmarkTarget returns the value stored in ChapterIDBookmarked for a
// KEPUB chapter row: the row ID without its fragment and depth suffix.
func KepubBookmarkTarget(chapterID string) string {
	id := chapterID
	if m := depthSuffixPattern.FindStringSubmatch(id); m != nil {
		id = m[1]
	}
	if i := strings.LastIndex(id, "#"); i >= 0 {
		id = id[:i]
	}
	return id
}

// DecodeBookmark parses ({orderIndex}){path}[#{fragment}].
func DecodeBookmark(raw string) (entities.Bookmark, error) {
	if raw == "" {
		return entities.Bookmark{}, ErrBookmarkAbsent
	}
	m := bookmarkPattern.FindStringSubmatch(raw)
	if m == nil {
		return entities.Bookmark{}, fmt.Errorf("%w: %q", ErrBookmarkUnparseable, raw)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return entities.Bookmark{}, fmt.Errorf("%w: %q", ErrBookmarkUnparseable, raw)
	}
	return entities.Bookmark{OrderIndex: idx, Path: m[2], Fragment: m[3]}, nil
}

// EncodeBookmark is the inverse of DecodeBookmark.
func EncodeBookmark(b entities.Bookmark) string {
	s := fmt.Sprintf("(%d)%s", b.OrderIndex, b.Path)
	if b.Fragment != "" {
		s += "#" + b.Fragment
	}
	return s
}

// RemapBookmark moves a bookmark from one chapter list to another. The
// chapter at the bookmark's index in oldChapters is looked up by path in
// newChapters; false means the position could not be preserved.
func RemapBookmark(b entities.Bookmark, oldChapters, newChapters []entities.ChapterDescriptor) (entities.Bookmark, bool) {
	if b.OrderIndex < 0 || b.OrderIndex >= len(oldChapters) {
		return entities.Bookmark{}, false
	}
	oldPath := oldChapters[b.OrderIndex].Path
	for i, c := range newChapters {
		if c.Path != oldPath {
			continue
		}
		p, _, _ := strings.Cut(c.Path, "#")
		return entities.Bookmark{OrderIndex: i, Path: p, Fragment: b.Fragment}, true
	}
	return entities.Bookmark{}, false
}

// StoredBookmark is the ChapterIDBookmarked value written to a book row.
func StoredBookmark(bookID string, b entities.Bookmark) string {
	return bookID + "#" + EncodeBookmark(b)
}

// BookmarkFromStored strips the book ID and its one-character separator from
// a stored ChapterIDBookmarked value.
func BookmarkFromStored(bookID, stored string) string {
	if rest, ok := strings.CutPrefix(stored, bookID); ok && rest != "" {
		return rest[1:]
	}
	return stored
}
