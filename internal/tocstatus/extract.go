package tocstatus

import (
	"fmt"

	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/toc"
)

type extraction struct {
	chapters []entities.ChapterDescriptor
	manifest []entities.ManifestEntry
	opfDir   string
}

// extract opens one container, reads what the comparison needs and closes
// it before returning.
func extract(opener ContainerOpener, path string, f entities.SubFormat) (extraction, error) {
	c, err := opener.Open(path)
	if err != nil {
		return extraction{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer c.Close()

	x := extraction{
		chapters: toc.Flatten(c.TOC(), f, c),
		opfDir:   c.OPFDir(),
	}
	if f.TracksSize() {
		x.manifest = toc.ListManifest(c)
	}
	return x, nil
}
