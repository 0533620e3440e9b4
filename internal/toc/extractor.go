// Package toc flattens container outlines into ordered chapter lists,
// lists KEPUB manifests, and compares lists positionally.
package toc

import (
	"github.com/mrlokans/kobotoc/internal/contentid"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// Container is the view of an opened e-book the extractors need.
// epub.Book implements it.
type Container interface {
	OPFName() string
	OPFDir() string
	SpineNames() []string
	NameToHref(name string) string
	TOC() *entities.TocNode
	FileSize(name string) int64
	Close() error
}

// Flatten walks the outline depth-first in pre-order. Direct children of
// root have depth 1. Nodes without a destination emit nothing but their
// children are still visited one level deeper. KEPUB entries whose path
// repeats an earlier entry share its device row and are dropped.
func Flatten(root *entities.TocNode, f entities.SubFormat, c Container) []entities.ChapterDescriptor {
	chapters := []entities.ChapterDescriptor{}
	if root == nil {
		return chapters
	}

	seen := map[string]bool{}
	var walk func(nodes []*entities.TocNode, depth int)
	walk = func(nodes []*entities.TocNode, depth int) {
		for _, n := range nodes {
			if n.Dest != "" {
				href := n.Dest
				if f == entities.SubFormatKEPUB {
					href = c.NameToHref(n.Dest)
				}
				p := contentid.ChapterPath(f, href, n.Fragment, depth)
				if f == entities.SubFormatKEPUB && seen[p] {
					walk(n.Children, depth+1)
					continue
				}
				seen[p] = true
				chapters = append(chapters, entities.ChapterDescriptor{
					Index:    len(chapters),
					Title:    n.Title,
					Path:     p,
					Href:     href,
					Fragment: n.Fragment,
					Depth:    depth,
				})
			}
			walk(n.Children, depth+1)
		}
	}
	walk(root.Children, 1)

	return chapters
}

// ListManifest returns spine entries in spine order with their sizes.
// Paths are relative to the package document.
func ListManifest(c Container) []entities.ManifestEntry {
	names := c.SpineNames()
	entries := make([]entities.ManifestEntry, 0, len(names))
	for i, name := range names {
		entries = append(entries, entities.ManifestEntry{
			Index: i,
			Path:  c.NameToHref(name),
			Size:  c.FileSize(name),
		})
	}
	return entries
}
