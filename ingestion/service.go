package ingestion

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Indexer receives the chunked corpus at the end of an ingestion pass.
// Implemented by the vector index store.
type Indexer interface {
	CreateCollection(ctx context.Context, chunks []Chunk) error
}

type Service struct {
	index    Indexer
	metadata map[string]map[string]any
	logger   *log.Logger
}

func NewService(index Indexer, metadata map[string]map[string]any, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		index:    index,
		metadata: metadata,
		logger:   logger,
	}
}

// IngestDirectory parses and chunks every downloaded document under dir and
// builds the vector collection from the result. A file that fails to parse is
// logged and skipped; the corpus pass continues with the remaining files.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	if s.index == nil {
		return fmt.Errorf("indexer not configured")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read documents directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if DetectKind(entry.Name()) == KindUnknown {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return fmt.Errorf("no pdf or html documents found in %s", dir)
	}

	chunks := make([]Chunk, 0)
	parsed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		docChunks, err := s.ingestFile(ctx, path)
		if err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
			continue
		}
		chunks = append(chunks, docChunks...)
		parsed++
	}

	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %s", dir)
	}

	s.logger.Printf("parsed %d/%d documents into %d chunks", parsed, len(paths), len(chunks))

	if err := s.index.CreateCollection(ctx, chunks); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (s *Service) ingestFile(ctx context.Context, path string) ([]Chunk, error) {
	kind := DetectKind(path)
	parser, err := ParserFor(kind)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	id := DocumentIDFromPath(path)
	doc, err := parser.Parse(ctx, DocumentPayload{DocumentID: id, Path: path, Data: data})
	if err != nil {
		return nil, err
	}

	docChunks := ChunkDocument(doc, s.metadata[id])
	s.logger.Printf("ingested %s (%d pages, %d chunks)", path, len(doc.Pages), len(docChunks))
	return docChunks, nil
}

// DocumentIDFromPath recovers the registry id from a downloaded filename,
// e.g. data/documents/document_42.pdf -> 42.
func DocumentIDFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
