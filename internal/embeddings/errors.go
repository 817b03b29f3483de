package embeddings

import "errors"

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("embeddings: invalid configuration")

	// ErrEmptyInput indicates empty text input.
	ErrEmptyInput = errors.New("embeddings: empty input")

	// ErrEmbeddingFailed indicates model inference failure.
	ErrEmbeddingFailed = errors.New("embeddings: generation failed")
)
