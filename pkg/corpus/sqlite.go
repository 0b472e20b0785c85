package corpus

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wouteroostervld/ragweaver/pkg/chunker"
)

// SQLiteStore persists the corpus in a sqlite-vec backed database so it
// survives pipeline re-runs and supports native similarity search.
type SQLiteStore struct {
	conn         *sql.DB
	path         string
	embeddingDim int
	plainTable   bool
}

// SQLiteConfig holds database configuration
type SQLiteConfig struct {
	Path         string // database file path
	EmbeddingDim int    // dimension of stored vectors
	SkipVecTable bool   // use a plain table instead of vec0 (testing without sqlite-vec)
}

// OpenSQLite opens or creates a corpus database
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbeddingDim)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbExists := false
	if _, err := os.Stat(cfg.Path); err == nil {
		dbExists = true
	}

	if !cfg.SkipVecTable {
		sqlite_vec.Auto()
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		conn:         conn,
		path:         cfg.Path,
		embeddingDim: cfg.EmbeddingDim,
		plainTable:   cfg.SkipVecTable,
	}

	if err := store.initSchema(dbExists); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(dbExists bool) error {
	if _, err := s.conn.Exec(EnableWALMode); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec(EnableForeignKeys); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schemas := []string{CreateMetaTable}
	if s.plainTable {
		schemas = append(schemas, CreatePlainCorpusTable)
	} else {
		schemas = append(schemas, fmt.Sprintf(CreateVecCorpusTableTemplate, s.embeddingDim))
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, schema := range schemas {
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if !dbExists {
		now := time.Now().UTC().Format(time.RFC3339)
		metaInserts := map[string]string{
			MetaKeySchemaVersion: SchemaVersion,
			MetaKeyCreatedAt:     now,
			MetaKeyEmbeddingDim:  strconv.Itoa(s.embeddingDim),
		}
		for key, value := range metaInserts {
			if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
				return fmt.Errorf("failed to insert meta %s: %w", key, err)
			}
		}
	} else {
		var storedDim string
		err := tx.QueryRow("SELECT value FROM meta WHERE key = ?", MetaKeyEmbeddingDim).Scan(&storedDim)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read embedding dimension: %w", err)
		}
		if err == nil && storedDim != strconv.Itoa(s.embeddingDim) {
			return fmt.Errorf("embedding dimension mismatch: database has %s, config has %d", storedDim, s.embeddingDim)
		}
	}

	return tx.Commit()
}

// Put replaces the stage's prior rows with the given files
func (s *SQLiteStore) Put(sourceStage string, files []VectorizedFile) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM vec_corpus WHERE source_stage = ?", sourceStage); err != nil {
		return fmt.Errorf("failed to clear prior contribution: %w", err)
	}

	for _, file := range files {
		for _, ec := range file.Chunks {
			if ec.Embedding.Dimensions != s.embeddingDim {
				return fmt.Errorf("embedding dimension mismatch: expected %d, got %d",
					s.embeddingDim, ec.Embedding.Dimensions)
			}

			embBytes, err := serializeFloat32(ec.Embedding.Values)
			if err != nil {
				return fmt.Errorf("failed to serialize embedding: %w", err)
			}

			_, err = tx.Exec(`
				INSERT INTO vec_corpus (source_stage, source_file, chunk_index, content, embedding)
				VALUES (?, ?, ?, ?, ?)
			`, sourceStage, file.SourceFile, ec.Chunk.Index, ec.Chunk.Content, embBytes)
			if err != nil {
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
	}

	return tx.Commit()
}

// All reloads the entire corpus as vectorized files
func (s *SQLiteStore) All() ([]VectorizedFile, error) {
	rows, err := s.conn.Query(`
		SELECT source_stage, source_file, chunk_index, content, embedding
		FROM vec_corpus
		ORDER BY source_stage, source_file, chunk_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query corpus: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string]*VectorizedFile)
	var order []string
	for rows.Next() {
		var stage, file, content string
		var index int
		var embBytes []byte
		if err := rows.Scan(&stage, &file, &index, &content, &embBytes); err != nil {
			return nil, fmt.Errorf("failed to scan corpus row: %w", err)
		}

		values, err := deserializeFloat32(embBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
		}

		key := stage + "\x00" + file
		vf, ok := grouped[key]
		if !ok {
			vf = &VectorizedFile{SourceFile: file}
			grouped[key] = vf
			order = append(order, key)
		}
		vf.Chunks = append(vf.Chunks, EmbeddedChunk{
			Chunk: chunker.Chunk{
				Content:  content,
				Index:    index,
				Metadata: map[string]string{"source": file},
			},
			Embedding: NewEmbedding(values),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corpus: %w", err)
	}

	sort.Strings(order)
	files := make([]VectorizedFile, 0, len(order))
	for _, key := range order {
		files = append(files, *grouped[key])
	}
	return files, nil
}

// CountChunks returns the total number of stored chunks
func (s *SQLiteStore) CountChunks() (int64, error) {
	var n int64
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM vec_corpus").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// SimilarChunk is one native similarity search hit
type SimilarChunk struct {
	SourceFile string
	Content    string
	ChunkIndex int
	Distance   float64 // cosine distance, lower is more similar
}

// SearchSimilar runs a native vector search against the vec0 table.
// Unsupported when the store was opened with SkipVecTable.
func (s *SQLiteStore) SearchSimilar(queryEmbedding []float32, limit int) ([]SimilarChunk, error) {
	if s.plainTable {
		return nil, fmt.Errorf("similarity search requires the sqlite-vec table")
	}
	if len(queryEmbedding) != s.embeddingDim {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d",
			s.embeddingDim, len(queryEmbedding))
	}
	if limit <= 0 {
		limit = 10
	}

	queryBytes, err := serializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := s.conn.Query(`
		SELECT source_file, content, chunk_index, distance
		FROM vec_corpus
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, queryBytes, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var hits []SimilarChunk
	for rows.Next() {
		var h SimilarChunk
		if err := rows.Scan(&h.SourceFile, &h.Content, &h.ChunkIndex, &h.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close releases the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path
func (s *SQLiteStore) Path() string { return s.path }

// StoredEmbeddingDim reads the dimension recorded in an existing corpus
// database, so callers can reopen it without knowing the dimension up
// front.
func StoredEmbeddingDim(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("corpus database not found: %w", err)
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	var stored string
	if err := conn.QueryRow("SELECT value FROM meta WHERE key = ?", MetaKeyEmbeddingDim).Scan(&stored); err != nil {
		return 0, fmt.Errorf("failed to read embedding dimension: %w", err)
	}
	return strconv.Atoi(stored)
}

// serializeFloat32 packs a vector into sqlite-vec's little-endian format
func serializeFloat32(values []float32) ([]byte, error) {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// deserializeFloat32 unpacks a stored embedding blob
func deserializeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(data))
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return values, nil
}
