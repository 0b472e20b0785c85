package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wouteroostervld/ragweaver/pkg/fetch"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
)

// Normalizer turns raw file content into clean text. An error marks
// that one file as a parse failure without stopping the batch.
type Normalizer func(f fetch.File) (string, error)

// DefaultNormalizer strips a UTF-8 byte order mark, converts CRLF line
// endings and rejects content that is not valid UTF-8.
func DefaultNormalizer(f fetch.File) (string, error) {
	content := strings.TrimPrefix(f.Content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !utf8.ValidString(content) {
		return "", errors.New("content is not valid UTF-8")
	}
	return content, nil
}

// ParseStage normalizes upstream files. Files that fail to parse are
// recorded individually and the rest of the batch continues.
type ParseStage struct {
	Base
	res       *resolver.Resolver
	normalize Normalizer
}

func NewParseStage(id string, store graph.Store, res *resolver.Resolver, normalize Normalizer, opts Options) *ParseStage {
	if normalize == nil {
		normalize = DefaultNormalizer
	}
	return &ParseStage{Base: newBase(id, store, opts), res: res, normalize: normalize}
}

func (s *ParseStage) Ready() bool {
	_, err := s.res.Resolve(s.id, resolver.KindFiles)
	return err == nil
}

func (s *ParseStage) Run(ctx context.Context) error {
	payload, err := s.res.Resolve(s.id, resolver.KindFiles)
	if err != nil {
		return fmt.Errorf("parse stage %s: %w", s.id, err)
	}

	parsed := make([]fetch.File, 0, len(payload.Files))
	var failures []ParseFailure
	for _, f := range payload.Files {
		content, err := s.normalize(f)
		if err != nil {
			s.log.Warn("Skipping unparseable file", "file", f.Path, "error", err)
			failures = append(failures, ParseFailure{File: f.Path, Reason: err.Error()})
			continue
		}
		f.Content = content
		f.Size = int64(len(content))
		parsed = append(parsed, f)
	}

	s.log.Info("Parsed files", "ok", len(parsed), "failed", len(failures))
	s.commit.Queue(map[string]any{
		"files":         parsed,
		"parseFailures": failures,
	})
	return nil
}
