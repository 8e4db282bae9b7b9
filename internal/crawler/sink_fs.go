package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Output layout of a run directory.
const (
	PagesDirName    = "pages"
	ManifestName    = "index.txt"
	ErrorLogName    = "errors.log"
	SummaryName     = "summary.json"
	pageNameFormat  = "%06d.html"
	manifestFormat  = "%06d\t%s\n"
	errorLineFormat = "%s\t%s\t%s\n"
)

var pageFileName = regexp.MustCompile(`^\d{6}\.html$`)

var lineSanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// RunStore owns every output of a run: page files, the manifest, the error
// log and the counters. Manifest and error log are opened in append mode
// and each entry is a single write, so a crash leaves a valid prefix.
type RunStore struct {
	root     string
	pagesDir string
	logger   *zap.Logger

	mu        sync.Mutex
	manifest  *os.File
	errorLog  *os.File
	stats     RunStats
	finalized bool
}

// NewRunStore prepares root for a fresh run: it creates the directories,
// truncates the manifest and error log, and removes the summary and page
// files left by a previous run.
func NewRunStore(root string, logger *zap.Logger) (*RunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pagesDir := filepath.Join(root, PagesDirName)
	if err := os.MkdirAll(pagesDir, 0o750); err != nil {
		return nil, fmt.Errorf("create pages dir %s: %w", pagesDir, err)
	}
	if err := removeStalePages(pagesDir); err != nil {
		return nil, err
	}
	summary := filepath.Join(root, SummaryName)
	if err := os.Remove(summary); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale summary %s: %w", summary, err)
	}
	manifest, err := openTruncatedAppend(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, err
	}
	errorLog, err := openTruncatedAppend(filepath.Join(root, ErrorLogName))
	if err != nil {
		_ = manifest.Close()
		return nil, err
	}
	return &RunStore{
		root:     root,
		pagesDir: pagesDir,
		logger:   logger,
		manifest: manifest,
		errorLog: errorLog,
	}, nil
}

func openTruncatedAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func removeStalePages(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read pages dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !pageFileName.MatchString(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove stale page %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Root returns the run directory.
func (s *RunStore) Root() string { return s.root }

// MarkRequested counts one URL taken from the input list.
func (s *RunStore) MarkRequested() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requested++
}

// SavePage writes the page body to pages/NNNNNN.html, appends the manifest
// line and counts the save. seq must be exactly one past the saved count.
func (s *RunStore) SavePage(seq int, finalURL, html string) (SavedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return SavedPage{}, ErrStoreFinalized
	}
	if seq != s.stats.Saved+1 {
		return SavedPage{}, fmt.Errorf("%w: got %d, want %d", ErrSequenceOutOfOrder, seq, s.stats.Saved+1)
	}
	target := filepath.Join(s.pagesDir, fmt.Sprintf(pageNameFormat, seq))
	if err := writeFileAtomic(target, []byte(html)); err != nil {
		return SavedPage{}, err
	}
	if _, err := fmt.Fprintf(s.manifest, manifestFormat, seq, lineSanitizer.Replace(finalURL)); err != nil {
		return SavedPage{}, fmt.Errorf("append manifest: %w", err)
	}
	s.stats.Saved++
	return SavedPage{Seq: seq, FinalURL: finalURL, Path: target}, nil
}

// LogSkip appends a SKIP line to the error log and counts it.
func (s *RunStore) LogSkip(rawURL, reason string) error {
	return s.logDecision("SKIP", rawURL, reason, func(st *RunStats) { st.Skipped++ })
}

// LogFail appends a FAIL line to the error log and counts it.
func (s *RunStore) LogFail(rawURL, reason string) error {
	return s.logDecision("FAIL", rawURL, reason, func(st *RunStats) { st.Failed++ })
}

func (s *RunStore) logDecision(tag, rawURL, reason string, count func(*RunStats)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrStoreFinalized
	}
	line := fmt.Sprintf(errorLineFormat, tag, lineSanitizer.Replace(reason), lineSanitizer.Replace(rawURL))
	if _, err := s.errorLog.WriteString(line); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	count(&s.stats)
	return nil
}

// Stats returns a snapshot of the counters.
func (s *RunStore) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Finalize writes summary.json and closes the append-only files. Calling
// it again is a no-op.
func (s *RunStore) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil
	}
	s.finalized = true

	payload, err := json.MarshalIndent(s.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	payload = append(payload, '\n')
	summaryErr := writeFileAtomic(filepath.Join(s.root, SummaryName), payload)

	for _, f := range []*os.File{s.manifest, s.errorLog} {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("Failed to close run file", zap.String("path", f.Name()), zap.Error(cerr))
		}
	}
	return summaryErr
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".harvest-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
