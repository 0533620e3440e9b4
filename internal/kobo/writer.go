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
	"github.com/mrlokans/kobotoc/internal/toc"
)

const (
	mimeEPUB  = "application/epub+zip"
	mimeKEPUB = "application/x-kobo-epub+zip"
	mimeXHTML = "application/xhtml+xml"

	adobeUserID = "adobe_user"
)

const insertContentQuery = `INSERT INTO content
	(ContentID, ContentType, MimeType, BookID, BookTitle, Title, Attribution, adobe_location,
	IsEncrypted, FirstTimeReading, ParagraphBookmarked, BookmarkWordOffset, VolumeIndex, ___NumPages,
	ReadStatus, ___UserID, ___FileOffset, ___FileSize, ___PercentRead,
	Depth, ChapterIDBookmarked)
	VALUES (?, ?, ?, ?, ?, ?, NULL, ?,
	'false', 'true', 0, 0, ?, -1,
	0, ?, ?, ?, 0,
	?, ?)`

const insertShortcoverQuery = `INSERT INTO volume_shortcovers (volumeId, shortcoverId, VolumeIndex) VALUES (?, ?, ?)`

// RebuildPlan is everything needed to regenerate one book's rows. Chapters
// and Manifest come from the device copy of the book.
type RebuildPlan struct {
	BookContentID string
	BookTitle     string
	SubFormat     entities.SubFormat
	OPFDir        string
	Chapters      []entities.ChapterDescriptor
	Manifest      []entities.ManifestEntry
	CarryForward  *entities.Bookmark
}

// PlanFromStatus builds a rebuild plan from an evaluated status.
func PlanFromStatus(s entities.BookToCStatus) RebuildPlan {
	return RebuildPlan{
		BookContentID: s.BookContentID,
		BookTitle:     s.Book.Title,
		SubFormat:     s.SubFormat,
		OPFDir:        s.DeviceOPFDir,
		Chapters:      s.DeviceFileChapters,
		Manifest:      s.DeviceFileManifest,
		CarryForward:  s.CarryForward,
	}
}

// RebuildResult counts the rows written for one book. DuplicatesSkipped
// counts chapters whose row ID repeated an earlier chapter of the plan.
type RebuildResult struct {
	Chapters          int
	ManifestEntries   int
	SentinelsRemoved  int
	DuplicatesSkipped int
	BookmarkWritten   bool
}

// Writer rewrites chapter rows. It is only available inside Store.Update.
type Writer struct {
	db *sql.DB
}

// Rebuild replaces every synthetic row of one book in a single
// transaction. On error nothing of the book's prior state is changed.
func (w *Writer) Rebuild(ctx context.Context, plan RebuildPlan) (RebuildResult, error) {
	var result RebuildResult
	if len(plan.Chapters) == 0 {
		return result, fmt.Errorf("%s: %w", plan.BookContentID, ErrNothingToWrite)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction for %s: %w", plan.BookContentID, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM content WHERE ContentID = ? AND ContentType = ?`,
		plan.BookContentID, ContentTypeBook).Scan(&exists)
	if err != nil {
		return result, fmt.Errorf("failed to look up %s: %w", plan.BookContentID, err)
	}
	if exists == 0 {
		return result, fmt.Errorf("%w: %s", ErrBookNotFound, plan.BookContentID)
	}

	if err := removeAllRows(ctx, tx, plan.BookContentID); err != nil {
		return result, err
	}

	rows := plannedChapters(plan)
	result.DuplicatesSkipped = len(plan.Chapters) - len(rows)
	for _, r := range rows {
		if err := removeForeignRow(ctx, tx, plan.BookContentID, r.id); err != nil {
			return result, err
		}
	}

	for _, r := range rows {
		removed, err := writeChapter(ctx, tx, plan, r.ch, r.id)
		if err != nil {
			return result, err
		}
		result.SentinelsRemoved += removed
		result.Chapters++
	}

	if plan.SubFormat.TracksSize() {
		n, err := writeManifest(ctx, tx, plan)
		if err != nil {
			return result, err
		}
		result.ManifestEntries = n
	}

	if _, err := tx.ExecContext(ctx, `UPDATE content SET NumShortcovers = ? WHERE ContentID = ?`,
		result.Chapters, plan.BookContentID); err != nil {
		return result, fmt.Errorf("failed to update chapter count for %s: %w", plan.BookContentID, err)
	}

	if plan.CarryForward != nil {
		stored := contentid.StoredBookmark(plan.BookContentID, *plan.CarryForward)
		if _, err := tx.ExecContext(ctx, `UPDATE content SET ChapterIDBookmarked = ? WHERE ContentID = ?`,
			stored, plan.BookContentID); err != nil {
			return result, fmt.Errorf("failed to write bookmark for %s: %w", plan.BookContentID, err)
		}
		result.BookmarkWritten = true
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit %s: %w", plan.BookContentID, err)
	}

	log.Printf("Rebuilt %d chapter rows and %d manifest rows for %s", result.Chapters, result.ManifestEntries, plan.BookContentID)
	return result, nil
}

func removeAllRows(ctx context.Context, tx *sql.Tx, bookID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content WHERE BookID = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete chapter rows for %s: %w", bookID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM volume_shortcovers WHERE volumeId = ?`, bookID); err != nil {
		return fmt.Errorf("failed to delete shortcovers for %s: %w", bookID, err)
	}
	return nil
}

// removeForeignRow deletes a row of another book that holds contentID.
// Rows of the book itself were already removed.
func removeForeignRow(ctx context.Context, tx *sql.Tx, bookID, contentID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content WHERE ContentID = ? AND IFNULL(BookID, '') != ?`,
		contentID, bookID); err != nil {
		return fmt.Errorf("failed to delete row %s: %w", contentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM volume_shortcovers WHERE shortcoverId = ? AND volumeId != ?`,
		contentID, bookID); err != nil {
		return fmt.Errorf("failed to delete shortcover %s: %w", contentID, err)
	}
	return nil
}

type plannedChapter struct {
	id string
	ch entities.ChapterDescriptor
}

// plannedChapters assigns volume indexes and row IDs. A chapter whose ID
// repeats an earlier one is dropped, so the number of rows written always
// equals the number of chapters returned.
func plannedChapters(plan RebuildPlan) []plannedChapter {
	seen := make(map[string]bool, len(plan.Chapters))
	out := make([]plannedChapter, 0, len(plan.Chapters))
	for _, ch := range plan.Chapters {
		ch.Index = len(out)
		id := chapterRowID(plan, ch)
		if seen[id] {
			log.Printf("Skipping chapter %q of %s: row %s already written", ch.Title, plan.BookContentID, id)
			continue
		}
		seen[id] = true
		out = append(out, plannedChapter{id: id, ch: ch})
	}
	return out
}

// chapterRowID is the content ID of a chapter row. KEPUB rows are keyed
// without the file:// scheme.
func chapterRowID(plan RebuildPlan, ch entities.ChapterDescriptor) string {
	if plan.SubFormat == entities.SubFormatKEPUB {
		return contentid.EncodeChapterID(plan.SubFormat, contentid.StripScheme(plan.BookContentID), plan.OPFDir, ch)
	}
	return contentid.EncodeChapterID(plan.SubFormat, plan.BookContentID, plan.OPFDir, ch)
}

// removeStaleSentinel deletes an end-of-book marker row left under a
// different content ID. Rows of the book itself were already removed, so
// only rows attached elsewhere are considered.
func removeStaleSentinel(ctx context.Context, tx *sql.Tx, plan RebuildPlan, ch entities.ChapterDescriptor, id string) (int, error) {
	rule, ok := sentinelFor(FinishSentinels, ch.Href)
	if !ok {
		return 0, nil
	}

	prefix := plan.BookContentID
	if plan.SubFormat == entities.SubFormatKEPUB {
		prefix = contentid.StripScheme(prefix)
	}
	pattern := escapeLike(prefix) + "%" + escapeLike(ch.Href) + "%"

	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT ContentID FROM content WHERE ContentID LIKE ? ESCAPE '\' AND IFNULL(BookID, '') != ? LIMIT 1`,
		pattern, plan.BookContentID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s chapter for %s: %w", rule.Name, plan.BookContentID, err)
	}
	if existing == id {
		return 0, nil
	}

	log.Printf("Removing stale %s chapter %s", rule.Name, existing)
	if err := removeForeignRow(ctx, tx, plan.BookContentID, existing); err != nil {
		return 0, err
	}
	return 1, nil
}

func writeChapter(ctx context.Context, tx *sql.Tx, plan RebuildPlan, ch entities.ChapterDescriptor, id string) (int, error) {
	removed, err := removeStaleSentinel(ctx, tx, plan, ch, id)
	if err != nil {
		return 0, err
	}

	var (
		contentType = ContentTypeChapter
		mimeType    = mimeEPUB
		userID      = adobeUserID
		location    any
		bookmarked  any
	)
	if plan.SubFormat == entities.SubFormatKEPUB {
		contentType = ContentTypeKepubChapter
		mimeType = mimeKEPUB
		userID = ""
		bookmarked = contentid.KepubBookmarkTarget(id)
	} else {
		location = ch.Path
	}

	_, err = tx.ExecContext(ctx, insertContentQuery,
		id, contentType, mimeType, plan.BookContentID, plan.BookTitle, ch.Title, location,
		ch.Index,
		userID, 0, 0,
		ch.Depth, bookmarked)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chapter %s: %w", id, err)
	}

	if plan.SubFormat == entities.SubFormatEPUB {
		if _, err := tx.ExecContext(ctx, insertShortcoverQuery, plan.BookContentID, id, ch.Index); err != nil {
			return 0, fmt.Errorf("failed to insert shortcover %s: %w", id, err)
		}
	}

	return removed, nil
}

// writeManifest inserts the manifest rows and returns how many were
// written. Repeated spine paths are written once.
func writeManifest(ctx context.Context, tx *sql.Tx, plan RebuildPlan) (int, error) {
	progress := toc.ManifestProgress(plan.Manifest)

	seen := make(map[string]bool, len(plan.Manifest))
	written := 0
	for i, entry := range plan.Manifest {
		id := contentid.EncodeManifestID(plan.BookContentID, plan.OPFDir, entry.Path)
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := removeForeignRow(ctx, tx, plan.BookContentID, id); err != nil {
			return written, err
		}

		_, err := tx.ExecContext(ctx, insertContentQuery,
			id, ContentTypeChapter, mimeXHTML, plan.BookContentID, plan.BookTitle, entry.Path, nil,
			written,
			"", int(progress[i].Offset), int(progress[i].Size),
			0, nil)
		if err != nil {
			return written, fmt.Errorf("failed to insert manifest entry %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, insertShortcoverQuery, plan.BookContentID, id, written); err != nil {
			return written, fmt.Errorf("failed to insert shortcover %s: %w", id, err)
		}
		written++
	}
	return written, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
