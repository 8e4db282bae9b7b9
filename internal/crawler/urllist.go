package crawler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadURLList returns the trimmed, non-empty lines of path in file order.
// Lines starting with '#' are comments. Duplicates are kept; the engine
// reports them as duplicate_url.
func ReadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list %s: %w", path, err)
	}
	return urls, nil
}

// WriteURLList writes urls one per line with a trailing newline, creating
// parent directories as needed.
func WriteURLList(path string, urls []string) error {
	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(b.String()))
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
