package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/transactions"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Document is one text to index under an id
type Document struct {
	ID      string
	Content string
}

// Hit is one search result. Smaller distance means more relevant.
type Hit struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// CacheStats reports embedding cache usage
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Index is a sqlite-vec backed semantic index
type Index struct {
	db        *sql.DB
	owned     bool
	embedder  Embedder
	dimension int
	logger    zerolog.Logger
	mu        sync.Mutex
	stats     CacheStats
}

// Config holds index configuration. DB takes precedence over DBPath and is
// left open on Close.
type Config struct {
	DBPath   string
	DB       *sql.DB
	Embedder Embedder
	Logger   zerolog.Logger
}

// Open opens (or creates) the index tables
func Open(cfg Config) (*Index, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Embedder.Dimension() <= 0 {
		return nil, errors.New("embedder dimension must be positive")
	}

	db := cfg.DB
	owned := false
	if db == nil {
		if cfg.DBPath == "" {
			return nil, errors.New("database path is required")
		}
		var err error
		db, err = sql.Open("sqlite3", transactions.DSN(cfg.DBPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		owned = true
	}

	idx := &Index{
		db:        db,
		owned:     owned,
		embedder:  cfg.Embedder,
		dimension: cfg.Embedder.Dimension(),
		logger:    cfg.Logger,
	}

	if err := idx.initSchema(); err != nil {
		if owned {
			db.Close()
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS index_documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS document_vectors USING vec0(
			doc_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, idx.dimension)

	if _, err := idx.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Add embeds and stores documents. Re-adding an id replaces its vector.
func (idx *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "index.add", attribute.Int("documents", len(docs)))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	for _, d := range docs {
		if d.ID == "" {
			err = errors.New("document id cannot be empty")
			return err
		}
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	var vectors [][]float32
	vectors, err = idx.embedCached(ctx, contents)
	if err != nil {
		return err
	}

	var tx *sql.Tx
	tx, err = idx.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for i, d := range docs {
		var blob []byte
		blob, err = sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			err = fmt.Errorf("failed to serialize embedding: %w", err)
			return err
		}

		if _, err = tx.ExecContext(ctx, "DELETE FROM document_vectors WHERE doc_id = ?", d.ID); err != nil {
			err = fmt.Errorf("failed to replace vector for %s: %w", d.ID, err)
			return err
		}
		if _, err = tx.ExecContext(ctx, "INSERT INTO document_vectors (doc_id, embedding) VALUES (?, ?)", d.ID, blob); err != nil {
			err = fmt.Errorf("failed to store vector for %s: %w", d.ID, err)
			return err
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO index_documents (id, content, content_hash, indexed_at) VALUES (?, ?, ?, ?)",
			d.ID, d.Content, contentHash(d.Content), now,
		); err != nil {
			err = fmt.Errorf("failed to store document %s: %w", d.ID, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit index batch: %w", err)
		return err
	}

	idx.logger.Debug().Int("documents", len(docs)).Msg("Documents indexed")
	return nil
}

// Search returns up to k hits ordered by ascending cosine distance
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if query == "" || k <= 0 {
		return []Hit{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "index.search", attribute.Int("k", k))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	var vectors [][]float32
	vectors, err = idx.embedCached(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	var blob []byte
	blob, err = sqlite_vec.SerializeFloat32(vectors[0])
	if err != nil {
		err = fmt.Errorf("failed to serialize query embedding: %w", err)
		return nil, err
	}

	var rows *sql.Rows
	rows, err = idx.db.QueryContext(ctx, `
		SELECT
			doc_id,
			vec_distance_cosine(embedding, ?) AS distance
		FROM document_vectors
		ORDER BY distance ASC, doc_id ASC
		LIMIT ?
	`, blob, k)
	if err != nil {
		err = fmt.Errorf("vector search failed: %w", err)
		return nil, err
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err = rows.Scan(&h.ID, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	logger := tracing.LoggerFromContext(ctx, idx.logger)
	logger.Debug().
		Int("hits", len(hits)).
		Msg("Vector search completed")

	return hits, nil
}

// Count returns the number of indexed documents
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_documents").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Stats returns embedding cache counters
func (idx *Index) Stats() CacheStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.stats
}

// Close closes the index
func (idx *Index) Close() error {
	if !idx.owned {
		return nil
	}
	return idx.db.Close()
}

// embedCached resolves embeddings through the content-hash cache, calling the
// embedder once for all misses.
func (idx *Index) embedCached(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		var cached []byte
		err := idx.db.QueryRowContext(ctx,
			"SELECT embedding FROM embedding_cache WHERE content_hash = ? AND dimension = ?",
			contentHash(text), idx.dimension,
		).Scan(&cached)
		if err == nil {
			var vec []float32
			if err := json.Unmarshal(cached, &vec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
			}
			out[i] = vec
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to read embedding cache: %w", err)
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	idx.mu.Lock()
	idx.stats.Hits += len(texts) - len(missIdx)
	idx.stats.Misses += len(missIdx)
	idx.mu.Unlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := idx.embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	now := time.Now().Unix()
	for j, vec := range fresh {
		if len(vec) != idx.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), idx.dimension)
		}
		out[missIdx[j]] = vec

		data, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := idx.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
			contentHash(missTexts[j]), data, len(vec), now,
		); err != nil {
			idx.logger.Warn().Err(err).Msg("Failed to cache embedding")
		}
	}

	return out, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
