package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNoOPF      = errors.New("epub: missing package document (OPF)")
	ErrInvalidOPF = errors.New("epub: invalid package document")
)

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// manifestItem is an OPF manifest entry with its href resolved to a
// container name.
type manifestItem struct {
	ID         string
	Name       string
	MediaType  string
	Properties []string
}

func (m manifestItem) hasProperty(p string) bool {
	for _, prop := range m.Properties {
		if prop == p {
			return true
		}
	}
	return false
}

type packageDocument struct {
	Version  string
	Manifest map[string]manifestItem
	Spine    []string // manifest IDs in reading order
	NCXID    string
}

func parseOPF(files map[string]*zip.File, opfName string) (*packageDocument, error) {
	f, ok := files[opfName]
	if !ok {
		return nil, ErrNoOPF
	}

	data, err := readZipFile(f)
	if err != nil {
		return nil, err
	}

	var opf opfPackage
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, ErrInvalidOPF
	}

	base := path.Dir(opfName)
	pkg := &packageDocument{
		Version:  opf.Version,
		Manifest: make(map[string]manifestItem, len(opf.Manifest.Items)),
		NCXID:    opf.Spine.Toc,
	}
	for _, item := range opf.Manifest.Items {
		pkg.Manifest[item.ID] = manifestItem{
			ID:         item.ID,
			Name:       hrefToName(base, item.Href),
			MediaType:  item.MediaType,
			Properties: strings.Fields(item.Properties),
		}
	}
	for _, ref := range opf.Spine.ItemRefs {
		if _, ok := pkg.Manifest[ref.IDRef]; ok {
			pkg.Spine = append(pkg.Spine, ref.IDRef)
		}
	}

	return pkg, nil
}

// hrefToName resolves an href found in a document located in baseDir to a
// container-absolute name. The fragment, if any, is dropped.
func hrefToName(baseDir, href string) string {
	href, _, _ = strings.Cut(href, "#")
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if baseDir == "." || baseDir == "" {
		return path.Clean(href)
	}
	return path.Join(baseDir, href)
}

// nameToHref returns the href of name relative to baseDir, URL-quoted the
// way package documents reference their content.
func nameToHref(baseDir, name string) string {
	rel := relativePath(baseDir, name)
	return (&url.URL{Path: rel}).EscapedPath()
}

func relativePath(baseDir, name string) string {
	if baseDir == "" || baseDir == "." {
		return name
	}
	base := strings.Split(strings.Trim(baseDir, "/"), "/")
	target := strings.Split(strings.Trim(name, "/"), "/")

	common := 0
	for common < len(base) && common < len(target)-1 && base[common] == target[common] {
		common++
	}

	parts := make([]string, 0, len(base)-common+len(target)-common)
	for i := common; i < len(base); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, target[common:]...)
	return strings.Join(parts, "/")
}
