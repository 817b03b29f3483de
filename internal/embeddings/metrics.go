package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/vectorstore"
)

const instrumentationName = "github.com/emberfix/repaird/internal/embeddings"

// InstrumentedEmbedder wraps an Embedder with OpenTelemetry metrics.
type InstrumentedEmbedder struct {
	inner     vectorstore.Embedder
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

// NewInstrumentedEmbedder wraps the given embedder. Metric registration
// failures are logged and leave the corresponding instrument nil, which
// disables it without failing startup.
func NewInstrumentedEmbedder(inner vectorstore.Embedder, logger *zap.Logger) *InstrumentedEmbedder {
	meter := otel.Meter(instrumentationName)
	e := &InstrumentedEmbedder{inner: inner}

	var err error
	e.duration, err = meter.Float64Histogram(
		"embeddings.duration",
		metric.WithDescription("Embedding generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create embeddings.duration histogram", zap.Error(err))
	}

	e.batchSize, err = meter.Int64Histogram(
		"embeddings.batch_size",
		metric.WithDescription("Number of texts per embedding batch"),
	)
	if err != nil {
		logger.Warn("failed to create embeddings.batch_size histogram", zap.Error(err))
	}

	e.errors, err = meter.Int64Counter(
		"embeddings.errors",
		metric.WithDescription("Embedding generation errors"),
	)
	if err != nil {
		logger.Warn("failed to create embeddings.errors counter", zap.Error(err))
	}

	return e
}

// EmbedDocuments delegates and records metrics.
func (e *InstrumentedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := e.inner.EmbedDocuments(ctx, texts)
	e.record(ctx, "documents", start, int64(len(texts)), err)
	return out, err
}

// EmbedQuery delegates and records metrics.
func (e *InstrumentedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	out, err := e.inner.EmbedQuery(ctx, text)
	e.record(ctx, "query", start, 1, err)
	return out, err
}

func (e *InstrumentedEmbedder) record(ctx context.Context, op string, start time.Time, batch int64, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	if e.duration != nil {
		e.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if e.batchSize != nil {
		e.batchSize.Record(ctx, batch, attrs)
	}
	if err != nil && e.errors != nil {
		e.errors.Add(ctx, 1, attrs)
	}
}

var _ vectorstore.Embedder = (*InstrumentedEmbedder)(nil)
