// Package testutil builds on-disk fixtures shared by package tests: small
// EPUB containers and Kobo device databases.
package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
)

// NavPoint is one ToC entry of a fixture. Href is relative to the OPF
// directory and may include a fragment; an empty Href makes a heading
// without a destination.
type NavPoint struct {
	Title    string
	Href     string
	Children []NavPoint
}

// Document is a spine entry. Href is relative to the OPF directory.
type Document struct {
	ID   string
	Href string
	Size int // body padding in bytes
}

// EPUBFixture describes a container to write.
type EPUBFixture struct {
	OPFPath   string // defaults to OEBPS/content.opf
	Documents []Document
	Nav       []NavPoint
	UseNCX    bool // write an EPUB 2 NCX instead of an EPUB 3 nav document
	DRM       bool
}

// Chapters returns a fixture with one document and one top-level ToC entry
// per title, named ch1.xhtml, ch2.xhtml...
func Chapters(titles ...string) EPUBFixture {
	f := EPUBFixture{}
	for i, title := range titles {
		href := fmt.Sprintf("Text/ch%d.xhtml", i+1)
		f.Documents = append(f.Documents, Document{ID: fmt.Sprintf("ch%d", i+1), Href: href, Size: 100 * (i + 1)})
		f.Nav = append(f.Nav, NavPoint{Title: title, Href: href})
	}
	return f
}

// WriteEPUB writes the fixture to dir/name and returns its path.
func WriteEPUB(t testing.TB, dir, name string, f EPUBFixture) string {
	t.Helper()

	if f.OPFPath == "" {
		f.OPFPath = "OEBPS/content.opf"
	}
	opfDir := path.Dir(f.OPFPath)
	if opfDir == "." {
		opfDir = ""
	}
	inOPFDir := func(href string) string {
		if opfDir == "" {
			return href
		}
		return opfDir + "/" + href
	}

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	out, err := os.Create(p)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	write := func(name, content string) {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("zip mimetype: %v", err)
	}
	mw.Write([]byte("application/epub+zip"))

	write("META-INF/container.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, f.OPFPath))

	if f.DRM {
		write("META-INF/rights.xml", `<?xml version="1.0"?><rights xmlns="http://ns.adobe.com/adept"/>`)
	}

	var manifest, spine strings.Builder
	for _, d := range f.Documents {
		fmt.Fprintf(&manifest, "    <item id=%q href=%q media-type=\"application/xhtml+xml\"/>\n", d.ID, d.Href)
		fmt.Fprintf(&spine, "    <itemref idref=%q/>\n", d.ID)
		write(inOPFDir(d.Href), document(d))
	}

	version, spineAttr := "3.0", ""
	if f.UseNCX {
		version, spineAttr = "2.0", ` toc="ncx"`
		manifest.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
		write(inOPFDir("toc.ncx"), ncx(f.Nav))
	} else {
		manifest.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
		write(inOPFDir("nav.xhtml"), navDocument(f.Nav))
	}

	write(f.OPFPath, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="%s">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Fixture</dc:title></metadata>
  <manifest>
%s  </manifest>
  <spine%s>
%s  </spine>
</package>`, version, manifest.String(), spineAttr, spine.String()))

	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return p
}

func document(d Document) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>%s</title></head>
<body><p>%s</p></body></html>`, d.ID, strings.Repeat("x", d.Size))
}

func navDocument(points []NavPoint) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc"><h1>Contents</h1>
`)
	writeNavList(&b, points)
	b.WriteString("</nav>\n</body></html>")
	return b.String()
}

func writeNavList(b *strings.Builder, points []NavPoint) {
	b.WriteString("<ol>\n")
	for _, p := range points {
		b.WriteString("<li>")
		if p.Href != "" {
			fmt.Fprintf(b, "<a href=%q>%s</a>", p.Href, p.Title)
		} else {
			fmt.Fprintf(b, "<span>%s</span>", p.Title)
		}
		if len(p.Children) > 0 {
			b.WriteString("\n")
			writeNavList(b, p.Children)
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n")
}

func ncx(points []NavPoint) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
<docTitle><text>Fixture</text></docTitle>
<navMap>
`)
	order := 0
	writeNavPoints(&b, points, &order)
	b.WriteString("</navMap>\n</ncx>")
	return b.String()
}

func writeNavPoints(b *strings.Builder, points []NavPoint, order *int) {
	for _, p := range points {
		*order++
		fmt.Fprintf(b, "<navPoint id=\"np%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel>", *order, *order, p.Title)
		if p.Href != "" {
			fmt.Fprintf(b, "<content src=%q/>", p.Href)
		}
		b.WriteString("\n")
		writeNavPoints(b, p.Children, order)
		b.WriteString("</navPoint>\n")
	}
}
