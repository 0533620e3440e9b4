package entities

// TocClassification is the outcome of evaluating one book.
type TocClassification string

const (
	TocMissingOnDevice      TocClassification = "missing_on_device"
	TocUnsupportedFormat    TocClassification = "unsupported_format"
	TocNoLibraryFormat      TocClassification = "no_library_format"
	TocLibraryDRM           TocClassification = "library_drm"
	TocDeviceDRM            TocClassification = "device_drm"
	TocUnreadable           TocClassification = "unreadable"
	TocNotImported          TocClassification = "not_imported"
	TocNeedsFileUpdate      TocClassification = "needs_file_update"
	TocNeedsDatabaseRebuild TocClassification = "needs_database_rebuild"
	TocOK                   TocClassification = "ok"
)

// Precedence orders classifications when more than one applies; lower wins.
func (c TocClassification) Precedence() int {
	switch c {
	case TocMissingOnDevice:
		return 0
	case TocUnsupportedFormat:
		return 1
	case TocNoLibraryFormat:
		return 2
	case TocLibraryDRM, TocDeviceDRM:
		return 3
	case TocUnreadable:
		return 4
	case TocNotImported:
		return 5
	case TocNeedsFileUpdate:
		return 6
	case TocNeedsDatabaseRebuild:
		return 7
	default:
		return 8
	}
}

// Terminal reports whether evaluation stopped before comparing chapters.
func (c TocClassification) Terminal() bool {
	return c.Precedence() <= TocUnreadable.Precedence()
}

func (c TocClassification) Comment() string {
	switch c {
	case TocMissingOnDevice:
		return "eBook is not on Kobo eReader"
	case TocUnsupportedFormat:
		return "eBook on Kobo eReader is not supported format"
	case TocNoLibraryFormat:
		return "No suitable format in library for book"
	case TocLibraryDRM:
		return "eBook in library has DRM"
	case TocDeviceDRM:
		return "eBook on Kobo eReader has DRM"
	case TocUnreadable:
		return "eBook could not be read"
	case TocNotImported:
		return "Book needs to be imported on the device"
	case TocNeedsFileUpdate:
		return "Book needs to be updated on Kobo eReader"
	case TocNeedsDatabaseRebuild:
		return "Chapters need to be updated in Kobo eReader database"
	case TocOK:
		return "Chapters match in all places"
	default:
		return string(c)
	}
}

func (c TocClassification) Icon() string {
	switch c {
	case TocOK:
		return "ok.png"
	case TocNeedsFileUpdate, TocNeedsDatabaseRebuild:
		return "toc.png"
	default:
		return "window-close.png"
	}
}

// BookToCStatus is the per-book result of a ToC evaluation. It is built once
// per evaluation and passed by value into the writer.
type BookToCStatus struct {
	Book          LibraryBook `json:"book"`
	BookContentID string      `json:"book_content_id,omitempty"`
	DevicePath    string      `json:"device_path,omitempty"`
	SubFormat     SubFormat   `json:"sub_format,omitempty"`
	LibraryFormat string      `json:"library_format,omitempty"`
	DeviceOPFDir  string      `json:"device_opf_dir,omitempty"`

	LibraryChapters    []ChapterDescriptor `json:"library_chapters"`
	DeviceFileChapters []ChapterDescriptor `json:"device_file_chapters"`
	DeviceDBChapters   []ChapterDescriptor `json:"device_db_chapters"`

	LibraryManifest    []ManifestEntry `json:"library_manifest,omitempty"`
	DeviceFileManifest []ManifestEntry `json:"device_file_manifest,omitempty"`
	DeviceDBManifest   []ManifestEntry `json:"device_db_manifest,omitempty"`

	FileMatchesLibrary bool `json:"file_matches_library"`
	DBMatchesFile      bool `json:"db_matches_file"`
	CanRebuild         bool `json:"can_rebuild"`
	OverallGood        bool `json:"overall_good"`

	FileMismatch *Mismatch `json:"file_mismatch,omitempty"`
	DBMismatch   *Mismatch `json:"db_mismatch,omitempty"`

	// ReadingLocation is the raw stored bookmark, BookmarkError is set when
	// it was present but could not be decoded.
	ReadingLocation string    `json:"reading_location,omitempty"`
	BookmarkError   string    `json:"bookmark_error,omitempty"`
	CarryForward    *Bookmark `json:"carry_forward,omitempty"`

	Classification TocClassification `json:"classification"`
	Detail         string            `json:"detail,omitempty"`
}

func (s BookToCStatus) Comment() string {
	return s.Classification.Comment()
}

func (s BookToCStatus) Icon() string {
	return s.Classification.Icon()
}

// NeedsRebuild reports whether the status should be offered for a database
// rebuild.
func (s BookToCStatus) NeedsRebuild() bool {
	return s.CanRebuild && !s.OverallGood && len(s.DeviceFileChapters) > 0
}
