package kobo

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mrlokans/kobotoc/internal/contentid"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// OnboardPrefix is where the device mounts its user storage.
const OnboardPrefix = contentid.FileScheme + "/mnt/onboard/"

// ContentIDFromPath maps a file under the mount point to its content ID.
func ContentIDFromPath(mount, p string) (string, bool) {
	rel, err := filepath.Rel(mount, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return OnboardPrefix + filepath.ToSlash(rel), true
}

// PathFromContentID maps a sideloaded book's content ID to a file under
// the mount point.
func PathFromContentID(mount, contentID string) (string, bool) {
	rel, ok := strings.CutPrefix(contentID, OnboardPrefix)
	if !ok || rel == "" {
		return "", false
	}
	rel = path.Clean("/" + rel)[1:]
	return filepath.Join(mount, filepath.FromSlash(rel)), true
}

// ClassifySubFormat detects the container variant from a path or content ID.
// Any ID mentioning .kepub.epub is KEPUB, which covers chapter IDs that
// carry the book path as a prefix.
func ClassifySubFormat(p string) (entities.SubFormat, bool) {
	lower := strings.ToLower(p)
	switch {
	case strings.Contains(lower, ".kepub.epub"):
		return entities.SubFormatKEPUB, true
	case strings.HasSuffix(lower, ".epub"):
		return entities.SubFormatEPUB, true
	default:
		return "", false
	}
}

// DeviceFile is a library book found on the device.
type DeviceFile struct {
	ContentID string
	Path      string
}

// Locator finds library books among the device's book rows.
type Locator struct {
	store *Store
	mount string
}

func NewLocator(store *Store, mount string) *Locator {
	return &Locator{store: store, mount: mount}
}

// Locate matches by title. When the library knows the authors, a row whose
// attribution equals them wins; a lone title match is still accepted, but
// several rows none of which match are treated as not on the device. It
// reports false when no row matches or the matched file is missing from
// the mount.
func (l *Locator) Locate(ctx context.Context, book entities.LibraryBook) (DeviceFile, bool, error) {
	candidates, err := l.store.BooksByTitle(ctx, book.Title)
	if err != nil {
		return DeviceFile{}, false, err
	}
	chosen, ok := pickCandidate(candidates, book.Authors)
	if !ok {
		return DeviceFile{}, false, nil
	}

	p, ok := PathFromContentID(l.mount, chosen.ContentID)
	if !ok {
		return DeviceFile{}, false, nil
	}
	if _, err := os.Stat(p); err != nil {
		return DeviceFile{ContentID: chosen.ContentID}, false, nil
	}
	return DeviceFile{ContentID: chosen.ContentID, Path: p}, true, nil
}

func pickCandidate(candidates []DeviceBook, authors string) (DeviceBook, bool) {
	if len(candidates) == 0 {
		return DeviceBook{}, false
	}
	if authors == "" {
		return candidates[0], true
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Attribution, authors) {
			return c, true
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return DeviceBook{}, false
}
