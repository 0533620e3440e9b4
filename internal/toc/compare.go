package toc

import (
	"strconv"

	"github.com/mrlokans/kobotoc/internal/entities"
)

// CompareChapters returns the first positional difference between two
// chapter lists, or nil when they are equal by count, path and title.
func CompareChapters(left, right []entities.ChapterDescriptor) *entities.Mismatch {
	if len(left) != len(right) {
		return &entities.Mismatch{
			List:  "chapters",
			Field: entities.MismatchCount,
			Index: -1,
			Left:  strconv.Itoa(len(left)),
			Right: strconv.Itoa(len(right)),
		}
	}
	for i := range left {
		if left[i].Path != right[i].Path {
			return &entities.Mismatch{List: "chapters", Field: entities.MismatchPath, Index: i, Left: left[i].Path, Right: right[i].Path}
		}
		if left[i].Title != right[i].Title {
			return &entities.Mismatch{List: "chapters", Field: entities.MismatchTitle, Index: i, Left: left[i].Title, Right: right[i].Title}
		}
	}
	return nil
}

// CompareManifests compares spine lists by count and path. Sizes are not
// compared since the device database stores percentages.
func CompareManifests(left, right []entities.ManifestEntry) *entities.Mismatch {
	if len(left) != len(right) {
		return &entities.Mismatch{
			List:  "manifest",
			Field: entities.MismatchCount,
			Index: -1,
			Left:  strconv.Itoa(len(left)),
			Right: strconv.Itoa(len(right)),
		}
	}
	for i := range left {
		if left[i].Path != right[i].Path {
			return &entities.Mismatch{List: "manifest", Field: entities.MismatchPath, Index: i, Left: left[i].Path, Right: right[i].Path}
		}
	}
	return nil
}
