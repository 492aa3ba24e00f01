// Package extraction turns raw text into structured knowledge via a remote
// language model: entity extraction, relationship extraction, and dense
// embedding generation. The model is treated as an untrusted black box; this
// package owns retry/backoff and response-shape validation.
package extraction

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/metrics"
)

const (
	defaultBaseURL        = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultChatModel      = "qwen-max"
	defaultEmbeddingModel = "text-embedding-v3"
	defaultEmbeddingDim   = 1024
	defaultMaxAttempts    = 3
	defaultBaseDelay      = time.Second
)

// modelAPI is the slice of the OpenAI-compatible client the extraction
// client consumes. *openai.Client satisfies it; tests substitute a stub.
type modelAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config carries the remote model settings. Zero fields fall back to the
// deployment defaults above.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
	MaxAttempts    int
	BaseDelay      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ChatModel == "" {
		c.ChatModel = defaultChatModel
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModel
	}
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = defaultEmbeddingDim
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	return c
}

// Client calls the remote model service. It holds no mutable shared state;
// retry counters are local to each call, so a single Client is safe for
// concurrent use across pipeline workers.
type Client struct {
	api            modelAPI
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dim            int
	maxAttempts    int
	baseDelay      time.Duration
	sleep          func(time.Duration)
	logger         *logrus.Logger
}

var _ graph.Extractor = (*Client)(nil)

// NewClient builds a Client backed by an OpenAI-compatible endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("extraction: API key is required")
	}
	cfg = cfg.withDefaults()

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = cfg.BaseURL
	return newClient(openai.NewClientWithConfig(apiConfig), cfg), nil
}

func newClient(api modelAPI, cfg Config) *Client {
	cfg = cfg.withDefaults()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Client{
		api:            api,
		chatModel:      cfg.ChatModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		dim:            cfg.EmbeddingDim,
		maxAttempts:    cfg.MaxAttempts,
		baseDelay:      cfg.BaseDelay,
		sleep:          time.Sleep,
		logger:         logger,
	}
}

// ExtractEntities extracts typed entities from text. A malformed model
// response yields an empty list; only transport-level failures surface as
// errors.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]graph.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, graph.ErrInvalidInput
	}

	content, err := c.complete(ctx, "entities", entityPrompt(text))
	if err != nil {
		return nil, err
	}

	return parseMixed(content, c.logger).entities, nil
}

// ExtractRelationships extracts entity relationships from text. Unlike
// entity extraction, the parsed batch is validated as a whole: any
// relationship with a strength outside [1,10] (or a non-integer strength)
// fails the entire call with a ValidationError.
func (c *Client) ExtractRelationships(ctx context.Context, text string) ([]graph.Relationship, error) {
	if strings.TrimSpace(text) == "" {
		return nil, graph.ErrInvalidInput
	}

	content, err := c.complete(ctx, "relationships", relationshipPrompt(text))
	if err != nil {
		return nil, err
	}

	result := parseMixed(content, c.logger)
	if result.badRelations > 0 {
		return nil, &graph.ValidationError{
			Field:   "relationship_strength",
			Message: "relationship strength must be an integer between 1 and 10",
		}
	}
	if err := validateRelationships(result.relations); err != nil {
		return nil, err
	}
	return result.relations, nil
}

// GenerateEmbedding produces a dense vector for text. A vector of the wrong
// dimension is a hard error, never truncated or padded.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) (graph.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return graph.Embedding{}, graph.ErrInvalidInput
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      c.embeddingModel,
			Dimensions: c.dim,
		})
		if err == nil {
			if len(resp.Data) == 0 {
				lastErr = errors.New("invalid embedding response format")
			} else {
				vector := resp.Data[0].Embedding
				if len(vector) != c.dim {
					metrics.ModelCalls.WithLabelValues("embedding", "invalid_dim").Inc()
					return graph.Embedding{}, &graph.ValidationError{
						Field:   "embedding_dim",
						Message: errors.Errorf("expected %d dimensions, got %d", c.dim, len(vector)).Error(),
					}
				}
				metrics.ModelCalls.WithLabelValues("embedding", "ok").Inc()
				return graph.Embedding{Vector: vector, Dim: c.dim}, nil
			}
		} else {
			lastErr = err
		}

		metrics.ModelCalls.WithLabelValues("embedding", "error").Inc()
		if attempt < c.maxAttempts-1 {
			metrics.ModelRetries.WithLabelValues("embedding").Inc()
			c.sleep(c.baseDelay * time.Duration(attempt+1))
		}
	}

	return graph.Embedding{}, &graph.TransientError{
		Err:         lastErr,
		RateLimited: isRateLimit(lastErr),
		Attempts:    c.maxAttempts,
	}
}

// GenerateEmbeddingsBatch embeds each text independently. A failed item
// degrades to an empty embedding instead of aborting the batch: for n
// inputs there are always exactly n outputs.
func (c *Client) GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([]graph.Embedding, error) {
	results := make([]graph.Embedding, 0, len(texts))
	for _, text := range texts {
		embedding, err := c.GenerateEmbedding(ctx, text)
		if err != nil {
			c.logger.WithError(err).Warn("Embedding failed for batch item, degrading to empty vector")
			results = append(results, graph.Embedding{})
			continue
		}
		results = append(results, embedding)
	}
	return results, nil
}

// complete issues one chat completion with the retry budget. Rate limits
// and transport errors are retried with linear backoff; a 200-status
// response is returned as-is, parseable or not, since retrying will not fix
// a parsing problem.
func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.1,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				metrics.ModelCalls.WithLabelValues(operation, "empty").Inc()
				return "", nil
			}
			metrics.ModelCalls.WithLabelValues(operation, "ok").Inc()
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		metrics.ModelCalls.WithLabelValues(operation, "error").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
		}).Warn("Model call failed")

		if attempt < c.maxAttempts-1 {
			metrics.ModelRetries.WithLabelValues(operation).Inc()
			c.sleep(c.baseDelay * time.Duration(attempt+1))
		}
	}

	return "", &graph.TransientError{
		Err:         lastErr,
		RateLimited: isRateLimit(lastErr),
		Attempts:    c.maxAttempts,
	}
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests
}
