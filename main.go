package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lisakoeritz/aien-api/api"
	"github.com/lisakoeritz/aien-api/config"
	"github.com/lisakoeritz/aien-api/corpus"
	"github.com/lisakoeritz/aien-api/database"
	"github.com/lisakoeritz/aien-api/embeddings"
	"github.com/lisakoeritz/aien-api/fetcher"
	"github.com/lisakoeritz/aien-api/ingestion"
	"github.com/lisakoeritz/aien-api/llm"
	"github.com/lisakoeritz/aien-api/rag"
	"github.com/lisakoeritz/aien-api/vectorindex"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "classify":
		classifyCmd(cfg, logger, os.Args[2:])
	case "download":
		downloadCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func classifyCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("classify", flag.ExitOnError)
	registryPath := flags.String("registry", cfg.RegistryCSV, "path to the registered documents table")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse classify flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	records, err := corpus.ReadRegistry(*registryPath)
	if err != nil {
		logger.Fatalf("read registry: %v", err)
	}

	urls := make([]string, len(records))
	for i, record := range records {
		urls[i] = record.URL
	}

	result := fetcher.New(logger).ClassifyURLs(ctx, urls)
	logger.Printf("classified %d urls: %d pdf, %d html, %d errors",
		len(urls), len(result.PDF), len(result.HTML), len(result.Errors))
	for _, url := range result.Errors {
		logger.Printf("unreachable: %s", url)
	}
}

func downloadCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("download", flag.ExitOnError)
	registryPath := flags.String("registry", cfg.RegistryCSV, "path to the registered documents table")
	dataDir := flags.String("dir", cfg.DataDir, "directory to store downloaded documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse download flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	records, err := corpus.ReadRegistry(*registryPath)
	if err != nil {
		logger.Fatalf("read registry: %v", err)
	}

	written, err := fetcher.New(logger).DownloadDocuments(ctx, records, *dataDir)
	if err != nil {
		logger.Fatalf("download failed: %v", err)
	}
	logger.Printf("downloaded %d of %d documents into %s", written, len(records), *dataDir)
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "directory containing downloaded documents")
	metadataPath := flags.String("metadata", cfg.MetadataJSON, "path to the document metadata sidecar")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	embedder, err := embeddings.NewEmbedder(cfg.Embeddings)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	metadata, err := corpus.ReadSidecar(*metadataPath)
	if err != nil {
		logger.Fatalf("read metadata: %v", err)
	}

	store := vectorindex.NewStore(pool, embedder, vectorindex.Options{
		Collection: cfg.Collection,
		Dimension:  cfg.Embeddings.Dimension,
	}, logger)

	svc := ingestion.NewService(store, metadata, logger)
	logger.Printf("ingesting documents from %s into collection %s", *dataDir, cfg.Collection)

	if err := svc.IngestDirectory(ctx, *dataDir); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask over the corpus")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}
	if *question == "" {
		logger.Fatal("a --question is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	svc, err := newAnswerService(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatalf("answer service setup: %v", err)
	}

	resp, err := svc.Answer(ctx, *question)
	if err != nil {
		logger.Fatalf("answer failed: %v", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Context) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, chunk := range resp.Context {
			source, _ := chunk.Metadata["source"].(string)
			fmt.Printf("%d. %s (score %.2f)\n", idx+1, source, chunk.Score)
		}
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	if cfg.BearerToken == "" {
		logger.Fatal("BEARER_TOKEN must be set to serve the API")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	svc, err := newAnswerService(ctx, cfg, pool, logger)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCollectionNotFound) {
			logger.Fatalf("collection %s does not exist; run the ingest command first", cfg.Collection)
		}
		logger.Fatalf("answer service setup: %v", err)
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(svc, cfg.BearerToken, cfg.AllowedOrigin, logger).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("serving on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve failed: %v", err)
	}
}

// newAnswerService wires the retrieval handle and completion client into an
// answer synthesizer. Fails when the collection has not been created yet.
func newAnswerService(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *log.Logger) (*rag.Service, error) {
	embedder, err := embeddings.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	store, err := vectorindex.Open(ctx, pool, embedder, vectorindex.Options{
		Collection: cfg.Collection,
		Dimension:  cfg.Embeddings.Dimension,
	}, logger)
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	return rag.NewService(store, llmClient, logger), nil
}

func printUsage() {
	fmt.Println("Usage: aien-api <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  classify  Split registered document URLs into pdf/html/error sets")
	fmt.Println("  download  Fetch registered documents into the data directory")
	fmt.Println("  ingest    Parse, chunk and index downloaded documents")
	fmt.Println("  ask       Answer a single question from the terminal")
	fmt.Println("  serve     Run the question-answering HTTP API")
}
