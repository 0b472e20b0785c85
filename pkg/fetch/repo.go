package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"
)

// RepoConfig describes one repository to fetch from a host API
type RepoConfig struct {
	BaseURL string // host API root, e.g. "https://api.github.com"
	Owner   string
	Repo    string
	Ref     string // branch or commit; defaults to "main"
	Token   string // optional bearer token
	Timeout time.Duration
}

// RepoProvider fetches a repository tree from a GitHub-style host API:
// one call enumerates the tree under a ref, then each admitted leaf is
// fetched individually for raw content.
type RepoProvider struct {
	cfg        RepoConfig
	policy     Policy
	httpClient *http.Client
}

// NewRepoProvider creates a repository fetch provider
func NewRepoProvider(cfg RepoConfig, policy Policy) *RepoProvider {
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &RepoProvider{
		cfg:        cfg,
		policy:     policy,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// treeResponse is the host's recursive tree listing
type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"` // "blob" or "tree"
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// Fetch enumerates the tree and downloads every admitted blob.
// A failed leaf fetch is recorded and skipped; the batch continues.
func (p *RepoProvider) Fetch(ctx context.Context) ([]File, error) {
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		p.cfg.BaseURL, p.cfg.Owner, p.cfg.Repo, url.PathEscape(p.cfg.Ref))

	var tree treeResponse
	if err := p.getJSON(ctx, treeURL, &tree); err != nil {
		return nil, fmt.Errorf("failed to list repository tree: %w", err)
	}
	if tree.Truncated {
		slog.Warn("Repository tree truncated by host", "repo", p.cfg.Repo)
	}

	var files []File
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if !p.policy.Admits(entry.Path, entry.Size) {
			continue
		}

		content, err := p.fetchRaw(ctx, entry.Path)
		if err != nil {
			slog.Warn("Failed to fetch file, skipping", "path", entry.Path, "error", err)
			continue
		}
		if isBinaryContent(content) {
			continue
		}

		files = append(files, File{
			Name:    path.Base(entry.Path),
			Path:    entry.Path,
			Content: string(content),
			Size:    entry.Size,
		})
	}

	slog.Info("Repository fetch complete", "repo", p.cfg.Repo, "ref", p.cfg.Ref, "files", len(files))
	return files, nil
}

// fetchRaw downloads one leaf's raw content
func (p *RepoProvider) fetchRaw(ctx context.Context, filePath string) ([]byte, error) {
	rawURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		p.cfg.BaseURL, p.cfg.Owner, p.cfg.Repo, filePath, url.QueryEscape(p.cfg.Ref))

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *RepoProvider) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
