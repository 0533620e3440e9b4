package toc

import "github.com/mrlokans/kobotoc/internal/entities"

// EntryProgress is the share of the book before and within one manifest
// entry, in percent.
type EntryProgress struct {
	Offset     float64
	Size       float64
	Cumulative float64
}

// ManifestProgress computes per-entry percentages from byte sizes.
// Cumulative values never decrease and the last one is exactly 100.
func ManifestProgress(entries []entities.ManifestEntry) []EntryProgress {
	out := make([]EntryProgress, len(entries))
	if len(entries) == 0 {
		return out
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	var before int64
	for i, e := range entries {
		if total <= 0 {
			out[i] = EntryProgress{}
			continue
		}
		through := before + e.Size
		out[i] = EntryProgress{
			Offset:     float64(before) * 100 / float64(total),
			Size:       float64(e.Size) * 100 / float64(total),
			Cumulative: float64(through) * 100 / float64(total),
		}
		before = through
	}
	out[len(out)-1].Cumulative = 100

	return out
}
