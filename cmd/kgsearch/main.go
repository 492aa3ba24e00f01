package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/extraction"
	"github.com/graphweave/graphweave/pkg/graph/query"
	"github.com/graphweave/graphweave/pkg/graph/storage"
)

var (
	envFile    = flag.String("env", ".env", "Path to environment file")
	queryText  = flag.String("query", "", "Query text for the combined search")
	entityType = flag.String("entity-type", "", "Optional entity type filter (PERSON, ORGANIZATION, GEO, EVENT, CONCEPT)")
	filters    = flag.String("filters", "", "Optional structured filters as comma-separated key=value pairs")
	limit      = flag.Int("limit", 10, "Maximum number of results")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Error loading env file %s: %v\n", *envFile, err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *queryText == "" {
		logger.Fatal("Query text must be specified")
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

	vectors, err := storage.NewQdrantVectorStore(ctx, storage.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
		Collection: envOr("QDRANT_COLLECTION", "documents"),
		Dim:        envIntOr("EMBEDDING_DIM", 1024),
	})
	if err != nil {
		logger.Fatalf("Failed to connect to Qdrant: %v", err)
	}

	graphs, err := storage.NewNeo4jGraphStore(
		envOr("NEO4J_URI", "bolt://localhost:7687"),
		envOr("NEO4J_USER", "neo4j"),
		os.Getenv("NEO4J_PASSWORD"),
	)
	if err != nil {
		logger.Fatalf("Failed to connect to Neo4j: %v", err)
	}
	defer graphs.Close()

	relational, err := storage.NewSQLiteRelationalStore(envOr("SQLITE_PATH", "documents.db"))
	if err != nil {
		logger.Fatalf("Failed to open SQLite store: %v", err)
	}
	defer relational.Close()

	engine, err := query.NewEngine(vectors, graphs, relational, extractor)
	if err != nil {
		logger.Fatalf("Failed to build query engine: %v", err)
	}

	docs, err := engine.CombinedSearch(ctx, query.Request{
		QueryText:  *queryText,
		EntityType: graph.EntityType(strings.ToUpper(*entityType)),
		Filters:    parseFilters(*filters),
		Limit:      *limit,
	})
	if err != nil {
		logger.Fatalf("Combined search failed: %v", err)
	}

	if len(docs) == 0 {
		fmt.Println("No matching documents.")
		return
	}
	for i, doc := range docs {
		fmt.Printf("%d. %s (%s, status=%s)\n", i+1, doc.ID, doc.SourcePath, doc.Status)
	}
}

func parseFilters(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	filters := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		filters[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return filters
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
