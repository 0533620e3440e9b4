package epub

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mrlokans/kobotoc/internal/entities"
)

type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	Title   string        `xml:"docTitle>text"`
	Points  []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseTOC reads the EPUB 3 nav document when present and falls back to
// the EPUB 2 NCX. A book with neither yields an empty root.
func (b *Book) parseTOC() *entities.TocNode {
	if item, ok := b.findNav(); ok {
		if data, err := b.readName(item.Name); err == nil {
			if root, err := parseNavXHTML(data, path.Dir(item.Name)); err == nil && len(root.Children) > 0 {
				return root
			}
		}
	}

	if item, ok := b.findNCX(); ok {
		if data, err := b.readName(item.Name); err == nil {
			if root, err := parseNCX(data, path.Dir(item.Name)); err == nil {
				return root
			}
		}
	}

	return &entities.TocNode{}
}

func (b *Book) findNav() (manifestItem, bool) {
	for _, item := range b.pkg.Manifest {
		if item.hasProperty("nav") {
			return item, true
		}
	}
	return manifestItem{}, false
}

func (b *Book) findNCX() (manifestItem, bool) {
	if item, ok := b.pkg.Manifest[b.pkg.NCXID]; ok {
		return item, true
	}
	for _, item := range b.pkg.Manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return manifestItem{}, false
}

func parseNavXHTML(content []byte, baseDir string) (*entities.TocNode, error) {
	node, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(node)

	var nav *goquery.Selection
	doc.Find("nav").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, key := range []string{"epub:type", "type", "role"} {
			if v, ok := s.Attr(key); ok && strings.Contains(v, "toc") {
				nav = s
				return false
			}
		}
		return true
	})
	if nav == nil {
		nav = doc.Find("nav").First()
	}

	root := &entities.TocNode{}
	if nav.Length() == 0 {
		return root, nil
	}
	root.Children = parseNavList(nav.Find("ol").First(), baseDir)
	return root, nil
}

func parseNavList(ol *goquery.Selection, baseDir string) []*entities.TocNode {
	var nodes []*entities.TocNode
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		n := &entities.TocNode{}
		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			n.Title = cleanTitle(a.Text())
			if href, ok := a.Attr("href"); ok && href != "" {
				n.Dest, n.Fragment = resolveDest(baseDir, href)
			}
		} else {
			n.Title = cleanTitle(li.ChildrenFiltered("span").First().Text())
		}
		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			n.Children = parseNavList(sub, baseDir)
		}
		if n.Title != "" || n.Dest != "" || len(n.Children) > 0 {
			nodes = append(nodes, n)
		}
	})
	return nodes
}

func parseNCX(content []byte, baseDir string) (*entities.TocNode, error) {
	var ncx ncxDocument
	if err := xml.Unmarshal(content, &ncx); err != nil {
		return nil, err
	}
	return &entities.TocNode{
		Title:    strings.TrimSpace(ncx.Title),
		Children: convertNavPoints(ncx.Points, baseDir),
	}, nil
}

func convertNavPoints(points []ncxNavPoint, baseDir string) []*entities.TocNode {
	nodes := make([]*entities.TocNode, 0, len(points))
	for _, p := range points {
		n := &entities.TocNode{
			Title:    cleanTitle(p.Label),
			Children: convertNavPoints(p.Children, baseDir),
		}
		if p.Content.Src != "" {
			n.Dest, n.Fragment = resolveDest(baseDir, p.Content.Src)
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func resolveDest(baseDir, href string) (string, string) {
	_, frag, _ := strings.Cut(href, "#")
	return hrefToName(baseDir, href), frag
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
