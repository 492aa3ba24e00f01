package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStateTerminal(t *testing.T) {
	assert.False(t, RunStatePending.Terminal())
	assert.False(t, RunStateRunning.Terminal())
	assert.True(t, RunStatePartial.Terminal())
	assert.True(t, RunStateCompleted.Terminal())
	assert.True(t, RunStateFailed.Terminal())
}

func TestEmbeddingIsZero(t *testing.T) {
	assert.True(t, Embedding{}.IsZero())
	assert.True(t, Embedding{Dim: 1024}.IsZero())
	assert.False(t, Embedding{Vector: []float32{0.1}, Dim: 1}.IsZero())
}
