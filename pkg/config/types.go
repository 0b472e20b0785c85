package config

// GlobalConfig represents the main configuration file at
// ~/.ragweaver/config.yaml
type GlobalConfig struct {
	Version       string              `yaml:"version"`
	ActiveProfile string              `yaml:"active_profile"`
	Profiles      map[string]*Profile `yaml:"profiles"`
}

// Profile is one named set of provider and pipeline settings
type Profile struct {
	// LLM provider
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`

	// Models
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDim   int    `yaml:"embedding_dim,omitempty"`
	ChatModel      string `yaml:"chat_model"`

	// Chunking
	ChunkSize int `yaml:"chunk_size,omitempty"`
	Overlap   int `yaml:"overlap,omitempty"`

	// Retrieval
	TopK                int     `yaml:"top_k,omitempty"`
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`
	AutoTune            bool    `yaml:"auto_tune,omitempty"`

	// Source filtering
	Allow       []string `yaml:"allow,omitempty"` // extensions, e.g. ".go"
	Deny        []string `yaml:"deny,omitempty"`
	MaxFileSize int64    `yaml:"max_file_size,omitempty"`

	// Corpus persistence; empty keeps the corpus in memory
	CorpusPath string `yaml:"corpus_path,omitempty"`
}

// Overrides is a pipeline-local .ragweaver.yaml. Only tuning and
// filtering knobs may be overridden; provider credentials always come
// from the global profile.
type Overrides struct {
	ChunkSize           int      `yaml:"chunk_size,omitempty"`
	Overlap             int      `yaml:"overlap,omitempty"`
	TopK                int      `yaml:"top_k,omitempty"`
	SimilarityThreshold float64  `yaml:"similarity_threshold,omitempty"`
	Allow               []string `yaml:"allow,omitempty"`
	Deny                []string `yaml:"deny,omitempty"`
}

// Settings is the merged runtime configuration
type Settings struct {
	Endpoint            string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDim        int
	ChatModel           string
	ChunkSize           int
	Overlap             int
	TopK                int
	SimilarityThreshold float64
	AutoTune            bool
	Allow               []string
	Deny                []string
	MaxFileSize         int64
	CorpusPath          string

	// Metadata for tracking
	ProfileName   string
	OverridesPath string
}
