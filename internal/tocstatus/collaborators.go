package tocstatus

import (
	"context"

	"github.com/mrlokans/kobotoc/internal/calibre"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/epub"
	"github.com/mrlokans/kobotoc/internal/kobo"
	"github.com/mrlokans/kobotoc/internal/toc"
)

// DeviceLocator finds the on-device copy of a library book.
type DeviceLocator interface {
	Locate(ctx context.Context, book entities.LibraryBook) (kobo.DeviceFile, bool, error)
}

// LibraryFormats resolves a library book format to a file.
type LibraryFormats interface {
	FormatPath(ctx context.Context, bookID int, format string) (string, bool, error)
}

// DeviceDatabase reads the chapter rows and bookmark stored on the device.
type DeviceDatabase interface {
	DatabaseChapters(ctx context.Context, bookID string, f entities.SubFormat) ([]entities.ChapterDescriptor, error)
	DatabaseManifest(ctx context.Context, bookID string) ([]entities.ManifestEntry, error)
	ReadingLocation(ctx context.Context, bookID string, f entities.SubFormat) (string, error)
}

// ContainerOpener opens an e-book file.
type ContainerOpener interface {
	Open(path string) (toc.Container, error)
}

// OpenerFunc adapts a function to ContainerOpener.
type OpenerFunc func(path string) (toc.Container, error)

func (f OpenerFunc) Open(path string) (toc.Container, error) {
	return f(path)
}

// EPUBOpener opens containers with the epub package.
var EPUBOpener = OpenerFunc(func(path string) (toc.Container, error) {
	b, err := epub.Open(path)
	if err != nil {
		return nil, err
	}
	return b, nil
})

// Classifier detects the sub-format of an on-device file.
type Classifier func(path string) (entities.SubFormat, bool)

var (
	_ DeviceLocator  = (*kobo.Locator)(nil)
	_ LibraryFormats = (*calibre.Library)(nil)
	_ DeviceDatabase = (*kobo.Store)(nil)
)
