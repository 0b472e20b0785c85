// Package fetch acquires source files for a pipeline, either from a
// repository host API or a local directory.
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// File is one fetched source document
type File struct {
	Name    string
	Path    string
	Content string
	Size    int64
}

// Provider enumerates and fetches source files
type Provider interface {
	Fetch(ctx context.Context) ([]File, error)
}

// Policy filters files by extension before content is fetched.
// Deny wins over Allow; an empty Allow list admits everything not denied.
type Policy struct {
	Allow       []string // extensions with leading dot, e.g. ".go", ".md"
	Deny        []string
	MaxFileSize int64 // bytes; 0 means no limit
}

// DefaultPolicy skips the usual binary and lock-file suspects
func DefaultPolicy() Policy {
	return Policy{
		Deny: []string{
			".png", ".jpg", ".jpeg", ".gif", ".ico", ".pdf", ".zip",
			".tar", ".gz", ".exe", ".so", ".dylib", ".bin", ".lock",
		},
		MaxFileSize: 1 << 20,
	}
}

// Admits reports whether a file at path with the given size passes the policy
func (p Policy) Admits(path string, size int64) bool {
	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		slog.Debug("Skipping oversized file", "path", path, "size", size)
		return false
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, d := range p.Deny {
		if ext == d {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, a := range p.Allow {
		if ext == a {
			return true
		}
	}
	return false
}

// isBinaryContent sniffs the first 512 bytes for a binary content type
func isBinaryContent(data []byte) bool {
	n := min(len(data), 512)
	contentType := http.DetectContentType(data[:n])

	if strings.HasPrefix(contentType, "application/") {
		// Allow text-based application formats
		allowed := []string{"json", "xml", "javascript", "x-sh", "x-perl", "x-python"}
		for _, a := range allowed {
			if strings.Contains(contentType, a) {
				return false
			}
		}
		return true
	}
	return !strings.HasPrefix(contentType, "text/")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
