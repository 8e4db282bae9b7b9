package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/htmlharvest/internal/crawler"
)

func writeRun(t *testing.T, root string, pages int) {
	t.Helper()
	store, err := crawler.NewRunStore(root, nil)
	require.NoError(t, err)
	for i := 1; i <= pages; i++ {
		store.MarkRequested()
		_, err := store.SavePage(i, "https://example.ru/"+string(rune('a'+i-1)), "<html>страница</html>")
		require.NoError(t, err)
	}
	require.NoError(t, store.Finalize())
}

func TestBuildPackagesPagesAndManifest(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, 3)
	require.NoError(t, os.WriteFile(filepath.Join(root, crawler.PagesDirName, "notes.txt"), []byte("x"), 0o600))

	path, err := Build(root, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, FileName), path)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		require.Equal(t, zip.Deflate, f.Method)
	}
	require.Equal(t, []string{
		"pages/000001.html",
		"pages/000002.html",
		"pages/000003.html",
		"index.txt",
	}, names)

	rc, err := zr.File[3].Open()
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	manifest, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "000001\thttps://example.ru/a\n000002\thttps://example.ru/b\n000003\thttps://example.ru/c\n", string(manifest))
}

func TestBuildEmptyRun(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, 0)

	path, err := Build(root, nil)
	require.NoError(t, err)
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	require.Len(t, zr.File, 1)
	require.Equal(t, "index.txt", zr.File[0].Name)
}

func TestBuildRequiresRunLayout(t *testing.T) {
	root := t.TempDir()
	_, err := Build(root, nil)
	require.ErrorIs(t, err, ErrMissingPages)

	require.NoError(t, os.MkdirAll(filepath.Join(root, crawler.PagesDirName), 0o750))
	_, err = Build(root, nil)
	require.ErrorIs(t, err, ErrMissingManifest)
	require.NoFileExists(t, filepath.Join(root, FileName))
}
