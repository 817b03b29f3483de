package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tutorialNamespace namespaces deterministic point UUIDs so re-indexing
// the same tutorial overwrites its existing point.
var tutorialNamespace = uuid.MustParse("8f4e7a1c-52b0-4c6d-9e3f-1a2b3c4d5e6f")

// deterministicUUID derives a stable UUID from a tutorial ID.
func deterministicUUID(tutorialID string) string {
	return uuid.NewSHA1(tutorialNamespace, []byte(tutorialID)).String()
}

// Options selects and configures a Store implementation.
type Options struct {
	// Provider is "chromem" or "qdrant".
	Provider string
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// New creates a Store for the configured provider.
func New(opts Options, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch opts.Provider {
	case "", "chromem":
		return NewChromemStore(opts.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantStore(opts.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, opts.Provider)
	}
}
