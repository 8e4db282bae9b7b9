// Package archive packages the output of a harvest run into a zip file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/crawler"
)

// FileName is the archive written into the run directory.
const FileName = "pages.zip"

// Sentinel errors for an incomplete run directory.
var (
	ErrMissingPages    = errors.New("pages directory not found")
	ErrMissingManifest = errors.New("manifest not found")
)

// Build writes <outDir>/pages.zip holding every pages/*.html file in name
// order under "pages/" followed by index.txt. It returns the archive path.
func Build(outDir string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pagesDir := filepath.Join(outDir, crawler.PagesDirName)
	manifest := filepath.Join(outDir, crawler.ManifestName)

	if info, err := os.Stat(pagesDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrMissingPages, pagesDir)
	}
	if _, err := os.Stat(manifest); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingManifest, manifest)
	}

	pages, err := filepath.Glob(filepath.Join(pagesDir, "*.html"))
	if err != nil {
		return "", fmt.Errorf("list pages: %w", err)
	}
	sort.Strings(pages)

	target := filepath.Join(outDir, FileName)
	tmp, err := os.CreateTemp(outDir, ".pages-zip-*")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	zw := zip.NewWriter(tmp)
	for _, p := range pages {
		if err := addFile(zw, p, "pages/"+filepath.Base(p)); err != nil {
			_ = tmp.Close()
			return "", err
		}
	}
	if err := addFile(zw, manifest, crawler.ManifestName); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("move archive into place: %w", err)
	}

	logger.Info("Archive created", zap.String("path", target), zap.Int("pages", len(pages)))
	return target, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", path, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
