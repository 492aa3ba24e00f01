package extraction

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

const (
	maxTokensPerChunk = 512
	overlapTokens     = 50
)

// SplitIntoChunks splits content into overlapping token windows sized for
// the embedding model. Short content comes back as a single chunk.
func SplitIntoChunks(content string) ([]string, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get encoding")
	}

	tokens := encoding.Encode(content, nil, nil)
	if len(tokens) <= maxTokensPerChunk {
		return []string{content}, nil
	}

	var chunks []string
	var current []int
	for i := 0; i < len(tokens); i++ {
		current = append(current, tokens[i])

		if len(current) >= maxTokensPerChunk {
			chunks = append(chunks, encoding.Decode(current))
			if len(current) > overlapTokens {
				current = current[len(current)-overlapTokens:]
			} else {
				current = nil
			}
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, encoding.Decode(current))
	}

	return chunks, nil
}
