package pipeline

import "github.com/pkg/errors"

var (
	ErrExtractorRequired       = errors.New("extractor is required")
	ErrVectorStoreRequired     = errors.New("vector store is required")
	ErrGraphStoreRequired      = errors.New("graph store is required")
	ErrRelationalStoreRequired = errors.New("relational store is required")
)
