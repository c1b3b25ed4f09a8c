// Package intake resolves document content references to bytes. The content
// ref stored on a document is a path relative to the intake root.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"paraph/pkg/platform/sentinel"
)

// Filesystem serves document content from a directory tree.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root}
}

// Open resolves contentRef under the intake root. Refs that escape the root
// are treated as unknown rather than revealing anything about the host.
func (f *Filesystem) Open(_ context.Context, contentRef string) (io.ReadCloser, string, error) {
	if contentRef == "" {
		return nil, "", fmt.Errorf("empty content ref: %w", sentinel.ErrNotFound)
	}

	cleaned := filepath.Clean(filepath.FromSlash(contentRef))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return nil, "", fmt.Errorf("content ref %q: %w", contentRef, sentinel.ErrNotFound)
	}

	file, err := os.Open(filepath.Join(f.root, cleaned))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("content ref %q: %w", contentRef, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open content: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(cleaned))
	return file, mimeType, nil
}
