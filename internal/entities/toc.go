package entities

import (
	"errors"
	"fmt"
)

// ErrContainerDRM is returned by container loaders when the book content is
// encrypted. It is terminal for the book being processed.
var ErrContainerDRM = errors.New("container is DRM protected")

// SubFormat identifies which of the two device container variants a book
// uses. The variants have different content ID grammars.
type SubFormat string

const (
	// SubFormatEPUB is the position-bearing variant. Chapter IDs carry the
	// order index: {bookId}#({index}){path}.
	SubFormatEPUB SubFormat = "EPUB"
	// SubFormatKEPUB is the size-tracking variant. Chapter IDs carry the
	// OPF directory and a depth suffix, and spine entries are stored as
	// separate manifest rows with byte-derived progress.
	SubFormatKEPUB SubFormat = "KEPUB"
)

// TracksSize reports whether the sub-format keeps per-spine manifest rows.
func (f SubFormat) TracksSize() bool {
	return f == SubFormatKEPUB
}

// TocNode is one node of a container's nested table of contents.
// Dest is the container-absolute name of the target document and is empty
// for navigation-only headings.
type TocNode struct {
	Title    string
	Dest     string
	Fragment string
	Children []*TocNode
}

// ChapterDescriptor is one flattened ToC entry. Index is the dense,
// zero-based sequence position within its list.
//
// Path is the comparison key: for EPUB it is the destination with an
// optional "#fragment"; for KEPUB it is the OPF-relative href with an
// optional "#fragment" and a "-{depth}" suffix.
type ChapterDescriptor struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Href     string `json:"href,omitempty"`
	Fragment string `json:"fragment,omitempty"`
	Depth    int    `json:"depth"`
}

// ManifestEntry is one spine entry of a KEPUB container.
type ManifestEntry struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

// MismatchField names what differed between two positional lists.
type MismatchField string

const (
	MismatchCount MismatchField = "count"
	MismatchPath  MismatchField = "path"
	MismatchTitle MismatchField = "title"
)

// Mismatch describes the first positional difference between two lists.
// Index is -1 for count mismatches.
type Mismatch struct {
	List  string        `json:"list"` // "chapters" or "manifest"
	Field MismatchField `json:"field"`
	Index int           `json:"index"`
	Left  string        `json:"left"`
	Right string        `json:"right"`
}

func (m Mismatch) String() string {
	if m.Field == MismatchCount {
		return fmt.Sprintf("%s count %s != %s", m.List, m.Left, m.Right)
	}
	return fmt.Sprintf("%s %s at %d: %q != %q", m.List, m.Field, m.Index, m.Left, m.Right)
}

// LibraryBook is the minimal library-side identity of a book.
type LibraryBook struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Authors string `json:"authors"`
}

// Bookmark is a decoded reading location: ({OrderIndex}){Path}[#{Fragment}].
type Bookmark struct {
	OrderIndex int    `json:"order_index"`
	Path       string `json:"path"`
	Fragment   string `json:"fragment,omitempty"`
}
