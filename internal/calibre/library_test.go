package calibre

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobotoc/internal/testutil"
)

func newLibrary(t *testing.T) (string, *Library) {
	t.Helper()

	root := t.TempDir()
	testutil.CreateCalibreLibrary(t, root)
	testutil.InsertCalibreBook(t, root, testutil.CalibreBook{
		ID:      1,
		Title:   "First",
		Authors: []string{"Jane Doe", "John Roe"},
		Path:    "Jane Doe/First (1)",
		Formats: map[string]string{"EPUB": "First - Jane Doe", "KEPUB": "First - Jane Doe"},
	})
	testutil.InsertCalibreBook(t, root, testutil.CalibreBook{
		ID:      2,
		Title:   "Second",
		Authors: []string{"Jane Doe"},
		Path:    "Jane Doe/Second (2)",
		Formats: map[string]string{"PDF": "Second - Jane Doe"},
	})

	dir := filepath.Join(root, "Jane Doe", "First (1)")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "First - Jane Doe.epub"), []byte("x"), 0644))

	lib, err := OpenLibrary(root)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return root, lib
}

func TestBooks(t *testing.T) {
	_, lib := newLibrary(t)
	ctx := context.Background()

	all, err := lib.Books(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "First", all[0].Title)
	assert.Equal(t, "Jane Doe & John Roe", all[0].Authors)

	some, err := lib.Books(ctx, []int{2})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "Second", some[0].Title)

	_, err = lib.Books(ctx, []int{1, 99})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestFormats(t *testing.T) {
	_, lib := newLibrary(t)

	formats, err := lib.Formats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"EPUB", "KEPUB"}, formats)
}

func TestFormatPath(t *testing.T) {
	root, lib := newLibrary(t)
	ctx := context.Background()

	p, ok, err := lib.FormatPath(ctx, 1, "epub")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "Jane Doe", "First (1)", "First - Jane Doe.epub"), p)

	// recorded but not on disk
	_, ok, err = lib.FormatPath(ctx, 1, "KEPUB")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = lib.FormatPath(ctx, 2, "EPUB")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenLibrary_Missing(t *testing.T) {
	_, err := OpenLibrary(t.TempDir())
	assert.Error(t, err)
}
