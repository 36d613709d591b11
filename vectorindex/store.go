// Package vectorindex wraps the Postgres/pgvector collection holding the
// embedded corpus and exposes hybrid dense+lexical retrieval over it.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lisakoeritz/aien-api/embeddings"
	"github.com/lisakoeritz/aien-api/ingestion"
)

// ErrCollectionNotFound reports a query against a collection that has not
// been created yet. Callers must create the collection first; the store never
// degrades this into an empty result.
var ErrCollectionNotFound = errors.New("vector collection does not exist")

// CollectionState makes the lifecycle of a named collection explicit instead
// of inferring it from side-effecting calls.
type CollectionState int

const (
	StateAbsent CollectionState = iota
	StateEmpty
	StatePopulated
)

func (s CollectionState) String() string {
	switch s {
	case StateEmpty:
		return "created-empty"
	case StatePopulated:
		return "created-populated"
	default:
		return "absent"
	}
}

// ScoredChunk is one retrieval hit with its fused relevance score.
type ScoredChunk struct {
	ChunkID    string
	DocumentID string
	Content    string
	Metadata   map[string]any
	Score      float64
}

const (
	defaultScoreThreshold = 0.4
	defaultRRFK           = 60
)

type Store struct {
	pool       *pgxpool.Pool
	embedder   embeddings.Embedder
	collection string
	dimension  int
	threshold  float64
	rrfK       int
	logger     *log.Logger
}

type Options struct {
	Collection string
	Dimension  int
	// ScoreThreshold prunes fused hits below it; zero means the default 0.4.
	ScoreThreshold float64
	// RRFK is the reciprocal-rank-fusion constant; zero means the standard 60.
	RRFK int
}

func NewStore(pool *pgxpool.Pool, embedder embeddings.Embedder, opts Options, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	if opts.ScoreThreshold == 0 {
		opts.ScoreThreshold = defaultScoreThreshold
	}
	if opts.RRFK <= 0 {
		opts.RRFK = defaultRRFK
	}

	return &Store{
		pool:       pool,
		embedder:   embedder,
		collection: opts.Collection,
		dimension:  opts.Dimension,
		threshold:  opts.ScoreThreshold,
		rrfK:       opts.RRFK,
		logger:     logger,
	}
}

// Open constructs a retrieval handle against an existing collection. It fails
// with ErrCollectionNotFound when the collection is absent, surfacing the
// startup precondition instead of leaving an unusable handle behind.
func Open(ctx context.Context, pool *pgxpool.Pool, embedder embeddings.Embedder, opts Options, logger *log.Logger) (*Store, error) {
	store := NewStore(pool, embedder, opts, logger)

	exists, err := store.CollectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", opts.Collection, ErrCollectionNotFound)
	}

	store.logger.Printf("collection %s initialized", opts.Collection)
	return store, nil
}

func (s *Store) Collection() string {
	return s.collection
}

func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	state, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	return state != StateAbsent, nil
}

// State reports whether the collection is absent, created but empty, or
// populated.
func (s *Store) State(ctx context.Context) (CollectionState, error) {
	var hasTables bool
	if err := s.pool.QueryRow(ctx, "SELECT to_regclass('collection_chunks') IS NOT NULL").Scan(&hasTables); err != nil {
		return StateAbsent, fmt.Errorf("check schema: %w", err)
	}
	if !hasTables {
		return StateAbsent, nil
	}

	var registered bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)", s.collection).Scan(&registered); err != nil {
		return StateAbsent, fmt.Errorf("check collection: %w", err)
	}
	if !registered {
		return StateAbsent, nil
	}

	var populated bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM collection_chunks WHERE collection = $1)", s.collection).Scan(&populated); err != nil {
		return StateAbsent, fmt.Errorf("check collection chunks: %w", err)
	}
	if populated {
		return StatePopulated, nil
	}
	return StateEmpty, nil
}

// CreateCollection embeds the chunks and uploads them under the store's
// collection name. Creation only happens once: a collection that already
// exists is left untouched and the call is a logged no-op.
func (s *Store) CreateCollection(ctx context.Context, chunks []ingestion.Chunk) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to upload")
	}

	if err := EnsureSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Printf("collection %s already exists", s.collection)
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, "INSERT INTO collections (name) VALUES ($1)", s.collection); err != nil {
		return fmt.Errorf("register collection: %w", err)
	}

	for i, chunk := range chunks {
		if _, err = tx.Exec(ctx, `
			INSERT INTO collection_chunks (id, collection, document_id, chunk_index, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), s.collection, chunk.DocumentID, chunk.Index, chunk.Content, chunk.Metadata, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ingestion.ChunkID(chunk.DocumentID, chunk.Index), err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Printf("collection %s created with %d chunks", s.collection, len(chunks))
	return nil
}

// Search embeds the query and runs hybrid retrieval: dense cosine ranking and
// lexical full-text ranking fused with reciprocal-rank fusion. At most k hits
// with fused score at or above the threshold come back, best first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}

	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", s.collection, ErrCollectionNotFound)
	}

	// Widen the candidate pool so fusion has both rankings to work with.
	candidates := k * 3
	if candidates < 20 {
		candidates = 20
	}

	dense, err := s.denseCandidates(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	sparse, err := s.lexicalCandidates(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(dense, sparse, s.rrfK)
	return topHits(fused, s.threshold, k), nil
}

func (s *Store) denseCandidates(ctx context.Context, query string, limit int) ([]ScoredChunk, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT id, document_id, content, metadata
		FROM collection_chunks
		WHERE collection = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3
	`, s.collection, pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("query dense candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func (s *Store) lexicalCandidates(ctx context.Context, query string, limit int) ([]ScoredChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, metadata
		FROM collection_chunks
		WHERE collection = $1
		  AND content_tsv @@ websearch_to_tsquery('english', $2)
		ORDER BY ts_rank_cd(content_tsv, websearch_to_tsquery('english', $2)) DESC
		LIMIT $3
	`, s.collection, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query lexical candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]ScoredChunk, error) {
	results := make([]ScoredChunk, 0)
	for rows.Next() {
		var item ScoredChunk
		if err := rows.Scan(&item.ChunkID, &item.DocumentID, &item.Content, &item.Metadata); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}
