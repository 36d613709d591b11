package vectorindex_test

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lisakoeritz/aien-api/config"
	"github.com/lisakoeritz/aien-api/database"
	"github.com/lisakoeritz/aien-api/ingestion"
	"github.com/lisakoeritz/aien-api/vectorindex"
)

// directionEmbedder maps texts onto fixed axes so dense ranking is
// deterministic, and counts Embed calls.
type directionEmbedder struct {
	dimension int
	calls     int
}

func (e *directionEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		if strings.Contains(text, "transparency") {
			vec[0] = 1
		} else {
			vec[1] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func newIntegrationStore(t *testing.T) (*vectorindex.Store, *directionEmbedder, *pgxpool.Pool, string) {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database-backed store checks")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		t.Fatalf("postgres connection: %v", err)
	}
	t.Cleanup(pool.Close)

	collection := "it_" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM collection_chunks WHERE collection = $1", collection)
		_, _ = pool.Exec(ctx, "DELETE FROM collections WHERE name = $1", collection)
	})

	embedder := &directionEmbedder{dimension: cfg.Embeddings.Dimension}
	store := vectorindex.NewStore(pool, embedder, vectorindex.Options{
		Collection: collection,
		Dimension:  cfg.Embeddings.Dimension,
	}, log.New(io.Discard, "", 0))

	return store, embedder, pool, collection
}

func corpusChunks() []ingestion.Chunk {
	return []ingestion.Chunk{
		{DocumentID: "1", Index: 0, Content: "transparency obligations for automated decision systems", Metadata: map[string]any{"source": "doc-1"}},
		{DocumentID: "1", Index: 1, Content: "accountability rests with the deploying organisation", Metadata: map[string]any{"source": "doc-1"}},
		{DocumentID: "2", Index: 0, Content: "fairness audits run before deployment", Metadata: map[string]any{"source": "doc-2"}},
	}
}

func TestCreateCollectionSecondCallIsNoOp(t *testing.T) {
	store, embedder, pool, collection := newIntegrationStore(t)
	ctx := context.Background()
	chunks := corpusChunks()

	if err := store.CreateCollection(ctx, chunks); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected one embedding pass, got %d", embedder.calls)
	}

	state, err := store.State(ctx)
	if err != nil {
		t.Fatalf("collection state: %v", err)
	}
	if state != vectorindex.StatePopulated {
		t.Fatalf("expected populated collection, got %s", state)
	}

	if err := store.CreateCollection(ctx, chunks); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("second create re-embedded the corpus: %d embedding passes", embedder.calls)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM collection_chunks WHERE collection = $1", collection).Scan(&count); err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if count != len(chunks) {
		t.Fatalf("expected %d chunks after repeated create, got %d", len(chunks), count)
	}
}

func TestSearchHonorsThresholdAndLimit(t *testing.T) {
	store, _, _, _ := newIntegrationStore(t)
	ctx := context.Background()

	if err := store.CreateCollection(ctx, corpusChunks()); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	const k = 2
	hits, err := store.Search(ctx, "transparency obligations", k)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(hits) == 0 || len(hits) > k {
		t.Fatalf("expected between 1 and %d hits, got %d", k, len(hits))
	}
	if !strings.Contains(hits[0].Content, "transparency") {
		t.Fatalf("expected the transparency chunk first, got %q", hits[0].Content)
	}
	for i, hit := range hits {
		if hit.Score < 0.4 {
			t.Fatalf("hit %d scores %f, below the threshold", i, hit.Score)
		}
		if i > 0 && hit.Score > hits[i-1].Score {
			t.Fatalf("hits not in descending score order at %d", i)
		}
	}
}
