// Package epub opens EPUB and KEPUB containers and exposes the parts the
// ToC reconciliation needs: spine order, href resolution, the nested table
// of contents and per-document sizes.
package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/mrlokans/kobotoc/internal/entities"
)

var ErrInvalidArchive = errors.New("epub: invalid or corrupted archive")

// Book is an open container. Close releases the underlying file.
type Book struct {
	zr      *zip.ReadCloser
	files   map[string]*zip.File
	opfName string
	opfDir  string
	pkg     *packageDocument
	toc     *entities.TocNode
}

// Open opens the container at filePath. DRM-protected containers fail with
// ErrDRMProtected.
func Open(filePath string) (*Book, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArchive, filePath)
	}

	b := &Book{zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		b.files[f.Name] = f
	}

	if err := b.init(); err != nil {
		zr.Close()
		return nil, err
	}
	return b, nil
}

func (b *Book) init() error {
	if err := checkForDRM(b.files); err != nil {
		return err
	}

	opfName, err := parseContainer(b.files)
	if err != nil {
		return err
	}

	pkg, err := parseOPF(b.files, opfName)
	if err != nil {
		return err
	}

	b.opfName = opfName
	b.opfDir = opfDirOf(opfName)
	b.pkg = pkg
	b.toc = b.parseTOC()
	return nil
}

func opfDirOf(opfName string) string {
	for i := len(opfName) - 1; i >= 0; i-- {
		if opfName[i] == '/' {
			return opfName[:i]
		}
	}
	return ""
}

// Close closes the container file.
func (b *Book) Close() error {
	if b.zr != nil {
		return b.zr.Close()
	}
	return nil
}

// OPFName is the container name of the package document.
func (b *Book) OPFName() string {
	return b.opfName
}

// OPFDir is the directory part of OPFName, empty at the container root.
func (b *Book) OPFDir() string {
	return b.opfDir
}

// SpineNames returns container names of spine documents in reading order.
func (b *Book) SpineNames() []string {
	names := make([]string, 0, len(b.pkg.Spine))
	for _, id := range b.pkg.Spine {
		names = append(names, b.pkg.Manifest[id].Name)
	}
	return names
}

// NameToHref returns name as an href relative to the package document.
func (b *Book) NameToHref(name string) string {
	return nameToHref(b.opfDir, name)
}

// TOC returns the root of the table of contents. The root itself carries
// no destination.
func (b *Book) TOC() *entities.TocNode {
	return b.toc
}

// FileSize returns the uncompressed size of name, or 0 when absent.
func (b *Book) FileSize(name string) int64 {
	if f, ok := b.files[name]; ok {
		return int64(f.UncompressedSize64)
	}
	return 0
}

func (b *Book) readName(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, fmt.Errorf("epub: %s not found in container", name)
	}
	return readZipFile(f)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
