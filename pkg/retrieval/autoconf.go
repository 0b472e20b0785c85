package retrieval

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/wouteroostervld/ragweaver/pkg/corpus"
)

// AutoTuning holds the corpus-composition heuristics applied by
// AutoConfigure. The cut points are empirical policy; override per
// pipeline rather than treating them as contract.
type AutoTuning struct {
	CodeFraction   float64 // corpus counts as code-heavy above this share
	CodeTopK       int
	CodeThreshold  float64
	ProseTopK      int
	ProseThreshold float64
	SmallCorpus    int // chunk count below which the floor threshold applies
}

// DefaultAutoTuning returns the stock heuristics: code wants fewer,
// looser matches; prose wants more, tighter ones.
func DefaultAutoTuning() AutoTuning {
	return AutoTuning{
		CodeFraction:   0.5,
		CodeTopK:       3,
		CodeThreshold:  0.35,
		ProseTopK:      8,
		ProseThreshold: 0.55,
		SmallCorpus:    10,
	}
}

var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".rs": true,
	".rb": true, ".sh": true, ".sql": true, ".yaml": true, ".yml": true,
	".json": true, ".toml": true,
}

// AutoConfigure inspects corpus composition and adjusts the engine's
// top-K and threshold defaults. It backs off entirely when the caller
// has already overridden the factory defaults.
func (e *Engine) AutoConfigure(files []corpus.VectorizedFile, tuning AutoTuning) {
	if e.config.TopK != DefaultTopK || e.config.SimilarityThreshold != DefaultThreshold {
		slog.Debug("Retrieval config overridden by caller, skipping auto-configuration")
		return
	}
	if len(files) == 0 {
		return
	}

	codeFiles := 0
	totalChunks := 0
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.SourceFile))
		if codeExtensions[ext] {
			codeFiles++
		}
		totalChunks += len(f.Chunks)
	}
	codeShare := float64(codeFiles) / float64(len(files))

	if codeShare > tuning.CodeFraction {
		e.config.TopK = tuning.CodeTopK
		e.config.SimilarityThreshold = tuning.CodeThreshold
	} else {
		e.config.TopK = tuning.ProseTopK
		e.config.SimilarityThreshold = tuning.ProseThreshold
	}

	// Tiny corpora get the floor threshold so sparse matches still land
	if totalChunks < tuning.SmallCorpus {
		e.config.SimilarityThreshold = e.config.AdaptiveFloor
	}

	slog.Info("Auto-configured retrieval",
		"code_share", codeShare,
		"chunks", totalChunks,
		"top_k", e.config.TopK,
		"threshold", e.config.SimilarityThreshold)
}
