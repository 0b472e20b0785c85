package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OverridesFilename is the pipeline-local config file searched for by
// walking up from the working directory.
const OverridesFilename = ".ragweaver.yaml"

// DefaultProfile returns the settings a fresh profile starts from
func DefaultProfile() *Profile {
	return &Profile{
		Endpoint:            "https://api.openai.com/v1",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDim:        1536,
		ChatModel:           "gpt-4o-mini",
		ChunkSize:           512,
		Overlap:             64,
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxFileSize:         1 << 20,
	}
}

func loadGlobalWithFS(path string, fs FileSystem) (*GlobalConfig, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.ActiveProfile == "" {
		return nil, fmt.Errorf("active_profile not specified in config")
	}
	if _, ok := config.Profiles[config.ActiveProfile]; !ok {
		return nil, fmt.Errorf("active profile %s not found in config", config.ActiveProfile)
	}
	return &config, nil
}

// findOverridesWithFS walks up from startDir to find the nearest
// overrides file. Returns empty string when none exists.
func findOverridesWithFS(startDir string, fs FileSystem) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		path := filepath.Join(currentDir, OverridesFilename)
		if _, err := fs.Stat(path); err == nil {
			return path, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return "", nil
}

func loadOverridesWithFS(path string, fs FileSystem) (*Overrides, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse overrides: %w", err)
	}
	return &overrides, nil
}

// Merge combines the global active profile with optional local
// overrides. Overrides may retune chunking, retrieval and filtering;
// credentials and models always come from the profile.
func Merge(global *GlobalConfig, overrides *Overrides) (*Settings, error) {
	profile, ok := global.Profiles[global.ActiveProfile]
	if !ok {
		return nil, fmt.Errorf("active profile %s not found", global.ActiveProfile)
	}

	defaults := DefaultProfile()
	settings := &Settings{
		Endpoint:            orString(profile.Endpoint, defaults.Endpoint),
		APIKey:              profile.APIKey,
		EmbeddingModel:      orString(profile.EmbeddingModel, defaults.EmbeddingModel),
		EmbeddingDim:        orInt(profile.EmbeddingDim, defaults.EmbeddingDim),
		ChatModel:           orString(profile.ChatModel, defaults.ChatModel),
		ChunkSize:           orInt(profile.ChunkSize, defaults.ChunkSize),
		Overlap:             orInt(profile.Overlap, defaults.Overlap),
		TopK:                orInt(profile.TopK, defaults.TopK),
		SimilarityThreshold: orFloat(profile.SimilarityThreshold, defaults.SimilarityThreshold),
		AutoTune:            profile.AutoTune,
		Allow:               append([]string{}, profile.Allow...),
		Deny:                append([]string{}, profile.Deny...),
		MaxFileSize:         profile.MaxFileSize,
		CorpusPath:          profile.CorpusPath,
		ProfileName:         global.ActiveProfile,
	}
	if settings.MaxFileSize <= 0 {
		settings.MaxFileSize = defaults.MaxFileSize
	}

	if overrides != nil {
		settings.ChunkSize = orInt(overrides.ChunkSize, settings.ChunkSize)
		settings.Overlap = orInt(overrides.Overlap, settings.Overlap)
		settings.TopK = orInt(overrides.TopK, settings.TopK)
		settings.SimilarityThreshold = orFloat(overrides.SimilarityThreshold, settings.SimilarityThreshold)
		// Filter lists extend, they never replace
		settings.Allow = append(settings.Allow, overrides.Allow...)
		settings.Deny = append(settings.Deny, overrides.Deny...)
	}
	return settings, nil
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
