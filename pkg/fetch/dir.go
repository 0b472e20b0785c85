package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DirProvider fetches files from a local directory tree
type DirProvider struct {
	root   string
	policy Policy
}

// NewDirProvider creates a provider rooted at dir
func NewDirProvider(dir string, policy Policy) *DirProvider {
	return &DirProvider{root: dir, policy: policy}
}

// Fetch walks the directory and returns every admitted text file.
// Unreadable files are skipped, not fatal: the rest of the tree still loads.
func (p *DirProvider) Fetch(ctx context.Context) ([]File, error) {
	abs, err := filepath.Abs(p.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	var files []File
	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("Walk error, skipping entry", "path", path, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		if !p.policy.Admits(path, info.Size()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Failed to read file, skipping", "path", path, "error", err)
			return nil
		}
		if isBinaryContent(content) {
			slog.Debug("Skipping binary file", "path", path)
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			rel = path
		}
		files = append(files, File{
			Name:    filepath.Base(path),
			Path:    rel,
			Content: string(content),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory walk failed: %w", err)
	}

	return files, nil
}
