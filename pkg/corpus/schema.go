package corpus

// Schema version for migration tracking
const SchemaVersion = "1.0.0"

// DDL statements for database initialization
const (
	EnableWALMode = `PRAGMA journal_mode=WAL;`

	EnableForeignKeys = `PRAGMA foreign_keys=ON;`

	// Meta table stores configuration and version info
	CreateMetaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	// Vector virtual table for similarity search.
	// Dimension must be specified at creation time; cosine distance
	// suits text embeddings.
	CreateVecCorpusTableTemplate = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_corpus USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    source_stage TEXT,
    source_file TEXT,
    chunk_index INTEGER,
    content TEXT,
    embedding FLOAT[%d] distance_metric=cosine
);`

	// Plain fallback table for environments without the sqlite-vec
	// extension (tests). Same columns, no similarity search.
	CreatePlainCorpusTable = `
CREATE TABLE IF NOT EXISTS vec_corpus (
    chunk_id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_stage TEXT,
    source_file TEXT,
    chunk_index INTEGER,
    content TEXT,
    embedding BLOB
);`
)

// Meta keys
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyCreatedAt     = "created_at"
	MetaKeyEmbeddingDim  = "embedding_dim"
)
