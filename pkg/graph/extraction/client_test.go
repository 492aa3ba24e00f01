package extraction

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/graphweave/pkg/graph"
)

// stubModelAPI scripts chat and embedding responses. When the script runs
// out, the last element repeats.
type stubModelAPI struct {
	chatContents []string
	chatErr      error
	chatCalls    int

	embedVectors [][]float32
	embedErr     error
	embedCalls   int
}

func (s *stubModelAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.chatCalls++
	if s.chatErr != nil {
		return openai.ChatCompletionResponse{}, s.chatErr
	}
	content := ""
	if len(s.chatContents) > 0 {
		index := s.chatCalls - 1
		if index >= len(s.chatContents) {
			index = len(s.chatContents) - 1
		}
		content = s.chatContents[index]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func (s *stubModelAPI) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	s.embedCalls++
	if s.embedErr != nil {
		return openai.EmbeddingResponse{}, s.embedErr
	}
	index := s.embedCalls - 1
	if index >= len(s.embedVectors) {
		index = len(s.embedVectors) - 1
	}
	return openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: s.embedVectors[index]}},
	}, nil
}

func newTestClient(api *stubModelAPI) (*Client, *[]time.Duration) {
	client := newClient(api, Config{
		EmbeddingDim: 4,
		BaseDelay:    time.Second,
	})
	var sleeps []time.Duration
	client.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	client.logger = testLogger()
	return client, &sleeps
}

func TestExtractEntitiesEmptyInput(t *testing.T) {
	api := &stubModelAPI{}
	client, _ := newTestClient(api)

	_, err := client.ExtractEntities(context.Background(), "   \n\t")
	require.ErrorIs(t, err, graph.ErrInvalidInput)
	assert.Zero(t, api.chatCalls, "precondition violations must not reach the model")
}

func TestRetryBudgetIsExactlyThreeAttempts(t *testing.T) {
	api := &stubModelAPI{chatErr: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}
	client, sleeps := newTestClient(api)

	_, err := client.ExtractEntities(context.Background(), "some text")
	require.Error(t, err)
	assert.True(t, graph.IsTransient(err))
	assert.Equal(t, 3, api.chatCalls)

	// Linear backoff between attempts, none after the last.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 1*time.Second, (*sleeps)[0])
	assert.Equal(t, 2*time.Second, (*sleeps)[1])
}

func TestRateLimitIsFlagged(t *testing.T) {
	api := &stubModelAPI{chatErr: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}
	client, _ := newTestClient(api)

	_, err := client.ExtractEntities(context.Background(), "some text")
	var te *graph.TransientError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.RateLimited)
	assert.Equal(t, 3, te.Attempts)
}

func TestMalformedResponseIsNotRetried(t *testing.T) {
	api := &stubModelAPI{chatContents: []string{"I'm sorry, I can't produce JSON today."}}
	client, sleeps := newTestClient(api)

	entities, err := client.ExtractEntities(context.Background(), "some text")
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Equal(t, 1, api.chatCalls, "retrying will not fix a parsing problem")
	assert.Empty(t, *sleeps)
}

func TestExtractEntitiesScenario(t *testing.T) {
	api := &stubModelAPI{chatContents: []string{"```json\n" + `[
		{"name": "Central Institution", "type": "ORGANIZATION", "description": "The central bank of Verdantis"},
		{"name": "Martin Smith", "type": "PERSON", "description": "Chair of the Central Institution"}
	]` + "\n```"}}
	client, _ := newTestClient(api)

	entities, err := client.ExtractEntities(context.Background(),
		"The Verdantis's Central Institution is scheduled to meet on Monday... Central Institution Chair Martin Smith will take questions.")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, graph.Entity{
		Name:        "CENTRAL INSTITUTION",
		Type:        graph.EntityTypeOrganization,
		Description: "The central bank of Verdantis",
	}, entities[0])
}

func TestExtractRelationshipsScenario(t *testing.T) {
	api := &stubModelAPI{chatContents: []string{`[
		{"source": "MARTIN SMITH", "target": "CENTRAL INSTITUTION", "relationship": "chairs the institution", "relationship_strength": 9}
	]`}}
	client, _ := newTestClient(api)

	rels, err := client.ExtractRelationships(context.Background(), "Martin Smith chairs the Central Institution.")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "MARTIN SMITH", rels[0].Source)
	assert.Equal(t, "CENTRAL INSTITUTION", rels[0].Target)
	assert.GreaterOrEqual(t, rels[0].Strength, 1)
	assert.LessOrEqual(t, rels[0].Strength, 10)
}

func TestExtractRelationshipsStrengthValidation(t *testing.T) {
	t.Run("out of range fails the whole batch", func(t *testing.T) {
		api := &stubModelAPI{chatContents: []string{`[
			{"source": "A", "target": "B", "relationship": "fine", "relationship_strength": 5},
			{"source": "B", "target": "C", "relationship": "too strong", "relationship_strength": 11}
		]`}}
		client, _ := newTestClient(api)

		rels, err := client.ExtractRelationships(context.Background(), "some text")
		require.Error(t, err)
		assert.True(t, graph.IsValidation(err))
		assert.Empty(t, rels)
		assert.Equal(t, 1, api.chatCalls, "validation failures are not retried")
	})

	t.Run("non-integer strength fails the whole batch", func(t *testing.T) {
		api := &stubModelAPI{chatContents: []string{`[
			{"source": "A", "target": "B", "relationship": "odd", "relationship_strength": 3.5}
		]`}}
		client, _ := newTestClient(api)

		_, err := client.ExtractRelationships(context.Background(), "some text")
		require.Error(t, err)
		assert.True(t, graph.IsValidation(err))
	})
}

func TestGenerateEmbedding(t *testing.T) {
	t.Run("returns vector of configured dimension", func(t *testing.T) {
		api := &stubModelAPI{embedVectors: [][]float32{{0.1, 0.2, 0.3, 0.4}}}
		client, _ := newTestClient(api)

		embedding, err := client.GenerateEmbedding(context.Background(), "some text")
		require.NoError(t, err)
		assert.Equal(t, 4, embedding.Dim)
		assert.Len(t, embedding.Vector, 4)
	})

	t.Run("dimension mismatch is a hard error", func(t *testing.T) {
		api := &stubModelAPI{embedVectors: [][]float32{{0.1, 0.2}}}
		client, _ := newTestClient(api)

		_, err := client.GenerateEmbedding(context.Background(), "some text")
		require.Error(t, err)
		assert.True(t, graph.IsValidation(err))
		assert.Equal(t, 1, api.embedCalls, "a wrong-dimension vector is not retried")
	})

	t.Run("transient failure consumes the retry budget", func(t *testing.T) {
		api := &stubModelAPI{embedErr: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}}
		client, _ := newTestClient(api)

		_, err := client.GenerateEmbedding(context.Background(), "some text")
		require.Error(t, err)
		assert.True(t, graph.IsTransient(err))
		assert.Equal(t, 3, api.embedCalls)
	})

	t.Run("empty input is rejected without a call", func(t *testing.T) {
		api := &stubModelAPI{}
		client, _ := newTestClient(api)

		_, err := client.GenerateEmbedding(context.Background(), "")
		require.ErrorIs(t, err, graph.ErrInvalidInput)
		assert.Zero(t, api.embedCalls)
	})
}

func TestGenerateEmbeddingsBatchIsTotal(t *testing.T) {
	api := &stubModelAPI{embedVectors: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}}
	client, _ := newTestClient(api)

	// The middle item is empty and fails its precondition; the batch must
	// still return exactly one output per input.
	embeddings, err := client.GenerateEmbeddingsBatch(context.Background(), []string{"first", "", "third"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.False(t, embeddings[0].IsZero())
	assert.True(t, embeddings[1].IsZero())
	assert.False(t, embeddings[2].IsZero())
}
