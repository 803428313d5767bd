// ABOUTME: Plaintext subscription list file, one feed URL per line
// ABOUTME: Blank lines and # comments are skipped on load; saves replace the file atomically

package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// URLFile is the on-disk subscription list.
type URLFile struct {
	Path string
}

// NewURLFile returns a URLFile for path.
func NewURLFile(path string) *URLFile {
	return &URLFile{Path: path}
}

// Load returns the URLs in file order. A missing file is an empty list.
func (f *URLFile) Load() ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

// SaveURLs rewrites the file with one URL per line. Comments in the
// previous file are not preserved.
func (f *URLFile) SaveURLs(urls []string) error {
	var buf bytes.Buffer
	for _, url := range urls {
		buf.WriteString(url)
		buf.WriteByte('\n')
	}
	if err := atomicWrite(f.Path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("save url file: %w", err)
	}
	return nil
}
