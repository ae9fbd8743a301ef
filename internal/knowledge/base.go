// Package knowledge provides a small retrieval layer over the clinic's
// markdown documents: files are chunked, embedded, persisted in SQLite,
// and searched by cosine similarity.
package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kliniksehat/alicia/internal/embeddings"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config for the knowledge base.
type Config struct {
	DocsDir      string `yaml:"docs_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
}

// Base is a SQLite-backed document search index.
type Base struct {
	db       *sql.DB
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewBase opens (or creates) the index at dbPath.
func NewBase(dbPath string, embedder Embedder, cfg Config, logger *slog.Logger) (*Base, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &Base{db: db, embedder: embedder, cfg: cfg, logger: logger}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *Base) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		indexed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		doc_name TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		FOREIGN KEY (doc_name) REFERENCES documents(name) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_name, chunk_index);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (b *Base) Close() error {
	return b.db.Close()
}

// Sync indexes every markdown file under the docs directory. Documents
// whose content is unchanged since the last sync are skipped.
func (b *Base) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(b.cfg.DocsDir)
	if err != nil {
		return fmt.Errorf("read docs dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(b.cfg.DocsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])

		var stored string
		err = b.db.QueryRow(`SELECT hash FROM documents WHERE name = ?`, entry.Name()).Scan(&stored)
		if err == nil && stored == hash {
			continue
		}

		if err := b.indexDocument(ctx, entry.Name(), hash, string(data)); err != nil {
			return fmt.Errorf("index %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func (b *Base) indexDocument(ctx context.Context, name, hash, content string) error {
	pieces := splitText(content, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return nil
	}

	vectors, err := b.embedder.GenerateBatch(ctx, pieces)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE doc_name = ?`, name); err != nil {
		return err
	}

	for i, piece := range pieces {
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		id, _ := uuid.NewV7()
		if _, err := tx.Exec(`
			INSERT INTO chunks (id, doc_name, chunk_index, content, embedding)
			VALUES (?, ?, ?, ?, ?)
		`, id.String(), name, i, piece, string(vec)); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO documents (name, hash, indexed_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, indexed_at = excluded.indexed_at
	`, name, hash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	b.logger.Info("indexed document", "name", name, "chunks", len(pieces))
	return nil
}

// Search embeds the query, ranks all stored chunks by cosine
// similarity, and returns the best passages joined by blank lines.
func (b *Base) Search(ctx context.Context, query string) (string, error) {
	queryVec, err := b.embedder.Generate(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	rows, err := b.db.Query(`SELECT content, embedding FROM chunks`)
	if err != nil {
		return "", fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var contents []string
	var vectors [][]float32
	for rows.Next() {
		var content, raw string
		if err := rows.Scan(&content, &raw); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			b.logger.Warn("skipping chunk with bad embedding", "error", err)
			continue
		}
		contents = append(contents, content)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("scan chunks: %w", err)
	}

	if len(contents) == 0 {
		return "", nil
	}

	best := embeddings.TopK(queryVec, vectors, b.cfg.TopK)
	passages := make([]string, 0, len(best))
	for _, idx := range best {
		passages = append(passages, contents[idx])
	}

	return strings.Join(passages, "\n\n"), nil
}

// ChunkCount reports the number of indexed chunks.
func (b *Base) ChunkCount() int {
	var n int
	_ = b.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n
}
