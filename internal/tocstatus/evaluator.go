// Package tocstatus compares the chapter lists of a book's library file,
// its on-device file and the device database, and classifies the result.
package tocstatus

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/kobotoc/internal/contentid"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/kobo"
	"github.com/mrlokans/kobotoc/internal/toc"
)

// Options tunes an Evaluator.
type Options struct {
	// AllowEPUBForKEPUB lets a library EPUB stand in for a KEPUB on the
	// device.
	AllowEPUBForKEPUB bool
	// Classify overrides kobo.ClassifySubFormat.
	Classify Classifier
}

type Evaluator struct {
	locator DeviceLocator
	library LibraryFormats
	device  DeviceDatabase
	opener  ContainerOpener
	opts    Options
}

func NewEvaluator(locator DeviceLocator, library LibraryFormats, device DeviceDatabase, opener ContainerOpener, opts Options) *Evaluator {
	if opts.Classify == nil {
		opts.Classify = kobo.ClassifySubFormat
	}
	if opener == nil {
		opener = EPUBOpener
	}
	return &Evaluator{
		locator: locator,
		library: library,
		device:  device,
		opener:  opener,
		opts:    opts,
	}
}

// ProgressFunc is called after each book of a batch.
type ProgressFunc func(done, total int, status entities.BookToCStatus)

// EvaluateAll evaluates books one at a time and always returns one status
// per book, in input order.
func (e *Evaluator) EvaluateAll(ctx context.Context, books []entities.LibraryBook, progress ProgressFunc) []entities.BookToCStatus {
	statuses := make([]entities.BookToCStatus, 0, len(books))
	for i, book := range books {
		s := e.Evaluate(ctx, book)
		statuses = append(statuses, s)
		if progress != nil {
			progress(i+1, len(books), s)
		}
	}
	return statuses
}

// Evaluate builds the status of one book. Failures are reported through
// the classification, never as an error.
func (e *Evaluator) Evaluate(ctx context.Context, book entities.LibraryBook) entities.BookToCStatus {
	s := entities.BookToCStatus{Book: book}
	e.evaluate(ctx, &s)
	log.Printf("ToC status for %q (%d): %s", book.Title, book.ID, s.Classification)
	return s
}

func (e *Evaluator) evaluate(ctx context.Context, s *entities.BookToCStatus) {
	file, found, err := e.locator.Locate(ctx, s.Book)
	if err != nil {
		classify(s, entities.TocUnreadable, fmt.Sprintf("locating device copy: %v", err))
		return
	}
	s.BookContentID = file.ContentID
	if !found {
		classify(s, entities.TocMissingOnDevice, "")
		return
	}
	s.DevicePath = file.Path

	format, ok := e.opts.Classify(file.Path)
	if !ok {
		classify(s, entities.TocUnsupportedFormat, file.Path)
		return
	}
	s.SubFormat = format

	libraryPath, err := e.libraryFile(ctx, s)
	if err != nil {
		classify(s, entities.TocUnreadable, fmt.Sprintf("locating library format: %v", err))
		return
	}
	if libraryPath == "" {
		classify(s, entities.TocNoLibraryFormat, "")
		return
	}

	lib, err := extract(e.opener, libraryPath, format)
	if err != nil {
		classifyContainerError(s, entities.TocLibraryDRM, err)
		return
	}
	s.LibraryChapters = lib.chapters
	s.LibraryManifest = lib.manifest

	dev, err := extract(e.opener, file.Path, format)
	if err != nil {
		classifyContainerError(s, entities.TocDeviceDRM, err)
		return
	}
	s.DeviceFileChapters = dev.chapters
	s.DeviceFileManifest = dev.manifest
	s.DeviceOPFDir = dev.opfDir

	s.DeviceDBChapters, err = e.device.DatabaseChapters(ctx, file.ContentID, format)
	if err != nil {
		classify(s, entities.TocUnreadable, fmt.Sprintf("reading device chapters: %v", err))
		return
	}
	if format.TracksSize() {
		s.DeviceDBManifest, err = e.device.DatabaseManifest(ctx, file.ContentID)
		if err != nil {
			classify(s, entities.TocUnreadable, fmt.Sprintf("reading device manifest: %v", err))
			return
		}
	}

	e.carryForward(ctx, s)
	compare(s)
}

// libraryFile returns the library file to compare against, or "" when the
// library has no usable format.
func (e *Evaluator) libraryFile(ctx context.Context, s *entities.BookToCStatus) (string, error) {
	for _, format := range e.libraryFormats(s.SubFormat) {
		p, ok, err := e.library.FormatPath(ctx, s.Book.ID, format)
		if err != nil {
			return "", err
		}
		if ok {
			s.LibraryFormat = format
			return p, nil
		}
	}
	return "", nil
}

func (e *Evaluator) libraryFormats(f entities.SubFormat) []string {
	if f == entities.SubFormatKEPUB {
		if e.opts.AllowEPUBForKEPUB {
			return []string{"KEPUB", "EPUB"}
		}
		return []string{"KEPUB"}
	}
	return []string{"EPUB"}
}

func (e *Evaluator) carryForward(ctx context.Context, s *entities.BookToCStatus) {
	raw, err := e.device.ReadingLocation(ctx, s.BookContentID, s.SubFormat)
	if err != nil {
		s.BookmarkError = err.Error()
		return
	}
	if raw == "" {
		return
	}
	s.ReadingLocation = raw

	b, err := contentid.DecodeBookmark(raw)
	if err != nil {
		s.BookmarkError = err.Error()
		log.Printf("Reading location of %s not carried forward: %v", s.BookContentID, err)
		return
	}

	remapped, ok := contentid.RemapBookmark(b, s.DeviceDBChapters, s.LibraryChapters)
	if !ok {
		log.Printf("Reading location %q of %s has no matching chapter", raw, s.BookContentID)
		return
	}
	s.CarryForward = &remapped
}

func compare(s *entities.BookToCStatus) {
	s.FileMismatch = toc.CompareChapters(s.LibraryChapters, s.DeviceFileChapters)
	s.DBMismatch = toc.CompareChapters(s.DeviceFileChapters, s.DeviceDBChapters)
	if s.SubFormat.TracksSize() {
		if s.FileMismatch == nil {
			s.FileMismatch = toc.CompareManifests(s.LibraryManifest, s.DeviceFileManifest)
		}
		if s.DBMismatch == nil {
			s.DBMismatch = toc.CompareManifests(s.DeviceFileManifest, s.DeviceDBManifest)
		}
	}

	s.FileMatchesLibrary = s.FileMismatch == nil
	s.DBMatchesFile = s.DBMismatch == nil
	s.OverallGood = s.FileMatchesLibrary && s.DBMatchesFile
	s.CanRebuild = len(s.DeviceDBChapters) > 0 && !s.DBMatchesFile

	switch {
	case len(s.DeviceDBChapters) == 0:
		s.Classification = entities.TocNotImported
	case !s.FileMatchesLibrary:
		s.Classification = entities.TocNeedsFileUpdate
	case !s.DBMatchesFile:
		s.Classification = entities.TocNeedsDatabaseRebuild
	default:
		s.Classification = entities.TocOK
	}
}

func classify(s *entities.BookToCStatus, c entities.TocClassification, detail string) {
	s.Classification = c
	s.Detail = detail
	s.CanRebuild = false
	s.OverallGood = false
}

func classifyContainerError(s *entities.BookToCStatus, drm entities.TocClassification, err error) {
	if errors.Is(err, entities.ErrContainerDRM) {
		classify(s, drm, err.Error())
		return
	}
	classify(s, entities.TocUnreadable, err.Error())
}
