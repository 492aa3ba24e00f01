package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/extraction"
	"github.com/graphweave/graphweave/pkg/graph/pipeline"
	"github.com/graphweave/graphweave/pkg/graph/storage"
)

var (
	envFile   = flag.String("env", ".env", "Path to environment file")
	inputDir  = flag.String("input", "", "Directory containing documents to ingest")
	poolSize  = flag.Int("pool", 0, "Worker pool size (0 = auto)")
	logLevel  = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	useMemory = flag.Bool("memory", false, "Use in-memory stores instead of Qdrant/Neo4j/SQLite")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Error loading env file %s: %v\n", *envFile, err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	ctx := context.Background()

	extractor, err := extraction.NewClient(extraction.Config{
		APIKey:         os.Getenv("MODEL_API_KEY"),
		BaseURL:        os.Getenv("MODEL_BASE_URL"),
		ChatModel:      os.Getenv("CHAT_MODEL"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
		EmbeddingDim:   envInt("EMBEDDING_DIM"),
	})
	if err != nil {
		logger.Fatalf("Failed to build extraction client: %v", err)
	}

	vectors, graphs, relational, cleanup, err := buildStores(ctx, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to build stores: %v", err)
	}
	defer cleanup()

	var opts []pipeline.Option
	opts = append(opts, pipeline.WithLogger(logger))
	if *poolSize > 0 {
		opts = append(opts, pipeline.WithPoolSize(*poolSize))
	}
	orchestrator, err := pipeline.NewOrchestrator(extractor, vectors, graphs, relational, opts...)
	if err != nil {
		logger.Fatalf("Failed to build orchestrator: %v", err)
	}
	defer orchestrator.Release()

	files, err := readInputFiles(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}
	logger.Infof("Submitting %d documents", len(files))

	runIDs := make([]uuid.UUID, 0, len(files))
	for _, file := range files {
		runID, err := orchestrator.Submit(ctx, file)
		if err != nil {
			logger.WithError(err).Errorf("Failed to submit %s", file)
			continue
		}
		runIDs = append(runIDs, runID)
	}

	orchestrator.Wait()

	failed := 0
	for _, runID := range runIDs {
		run, err := orchestrator.GetStatus(runID)
		if err != nil {
			logger.WithError(err).Error("Run status unavailable")
			failed++
			continue
		}

		entry := logger.WithFields(logrus.Fields{
			"run_id": run.RunID,
			"doc_id": run.DocumentID,
			"source": run.SourcePath,
			"state":  run.State,
		})
		switch run.State {
		case graph.RunStateCompleted:
			entry.Info("Run completed")
		case graph.RunStatePartial:
			entry.WithField("stage_errors", run.StageErrors).Warn("Run completed partially")
		default:
			entry.WithField("stage_errors", run.StageErrors).Error("Run failed")
			failed++
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func buildStores(ctx context.Context, memory bool) (storage.VectorStore, storage.GraphStore, storage.RelationalStore, func(), error) {
	if memory {
		return storage.NewMemoryVectorStore(), storage.NewMemoryGraphStore(), storage.NewMemoryRelationalStore(), func() {}, nil
	}

	vectors, err := storage.NewQdrantVectorStore(ctx, storage.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
		Collection: envOr("QDRANT_COLLECTION", "documents"),
		Dim:        envIntOr("EMBEDDING_DIM", 1024),
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	graphs, err := storage.NewNeo4jGraphStore(
		envOr("NEO4J_URI", "bolt://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		os.Getenv("NEO4J_PASSWORD"),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	relational, err := storage.NewSQLiteRelationalStore(envOr("SQLITE_PATH", "documents.db"))
	if err != nil {
		graphs.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		relational.Close()
		graphs.Close()
	}
	return vectors, graphs, relational, cleanup, nil
}

func readInputFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string) int {
	value, _ := strconv.Atoi(os.Getenv(key))
	return value
}

func envIntOr(key string, fallback int) int {
	if value := envInt(key); value != 0 {
		return value
	}
	return fallback
}
