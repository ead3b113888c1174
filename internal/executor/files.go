package executor

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxReadBytes = 2_000_000

var (
	ErrAbsolutePath  = errors.New("absolute paths disabled; set executor.allow_absolute_paths")
	ErrPathTraversal = errors.New("path traversal rejected ('..')")
)

type ReadResult struct {
	Path      string `json:"path"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
}

type WriteResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// Files reads and writes files under Root.
type Files struct {
	Enabled       bool
	Root          string
	AllowAbsolute bool
}

// Resolve validates path and returns it joined to Root when relative.
func (f *Files) Resolve(path string) (string, error) {
	if !f.Enabled {
		return "", ErrDangerousDisabled
	}
	if filepath.IsAbs(path) && !f.AllowAbsolute {
		return "", ErrAbsolutePath
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return "", ErrPathTraversal
		}
	}
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(f.Root, clean)
	}
	return clean, nil
}

func (f *Files) Read(path string) (ReadResult, error) {
	p, err := f.Resolve(path)
	if err != nil {
		return ReadResult{}, err
	}
	// #nosec G304 -- path validated by Resolve.
	fh, err := os.Open(p)
	if err != nil {
		return ReadResult{}, err
	}
	defer fh.Close()

	data, err := io.ReadAll(io.LimitReader(fh, maxReadBytes+1))
	if err != nil {
		return ReadResult{}, err
	}
	res := ReadResult{Path: p}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		res.Truncated = true
	}
	res.Content = strings.ToValidUTF8(string(data), "")
	return res, nil
}

func (f *Files) Write(path, content string) (WriteResult, error) {
	p, err := f.Resolve(path)
	if err != nil {
		return WriteResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return WriteResult{}, err
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Path: p, Bytes: len(content)}, nil
}
