// Package vectorstore defines the interface for tutorial vector storage.
//
// The dense retrieval stage queries one of two implementations: an
// embedded chromem-go store (default, zero external services) or an
// external Qdrant instance over gRPC.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Document is a tutorial entry to index for dense retrieval.
type Document struct {
	// ID is the tutorial ID, unique within the collection.
	ID string `json:"id"`

	// Content is the text that gets embedded: title, summary and
	// symptom keywords concatenated.
	Content string `json:"content"`

	// Metadata carries filterable attributes: category, brand, keywords.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one dense retrieval hit.
type SearchResult struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	// Score is cosine similarity in [0, 1], clamped at zero.
	Score float64 `json:"score"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface the dense retrieval stage depends on.
//
// Implementations embed query text themselves and must honor context
// cancellation on every call; the retrieval engine runs searches under a
// per-stage timeout.
type Store interface {
	// AddDocuments embeds and indexes tutorial documents.
	// Returns the IDs of added documents.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k tutorials nearest to the query text,
	// restricted to documents whose metadata matches all filters.
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error)

	// DeleteDocuments removes tutorials by ID.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Count returns the number of indexed tutorials.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
