package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for repaird.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Knowledge   KnowledgeConfig   `koanf:"knowledge"`
	Diagnosis   DiagnosisConfig   `koanf:"diagnosis"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Feedback    FeedbackConfig    `koanf:"feedback"`
	Learning    LearningConfig    `koanf:"learning"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings. The level string supports "trace"
// in addition to the standard zap levels.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	// Insecure disables TLS on the OTLP connection. Only honored for
	// local collector endpoints.
	Insecure bool `koanf:"insecure"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `koanf:"sample_rate"`
}

// KnowledgeConfig points at the fault pattern and question rule files.
type KnowledgeConfig struct {
	PatternsPath  string `koanf:"patterns_path"`
	QuestionsPath string `koanf:"questions_path"`
	// TutorialsPath is the optional tutorial catalog seeded into the
	// retrieval backends at startup.
	TutorialsPath string `koanf:"tutorials_path"`
}

// DiagnosisConfig tunes the belief engine, question selector and
// session orchestrator.
type DiagnosisConfig struct {
	// CompleteThreshold is the confidence at which a session finishes
	// with a firm diagnosis.
	CompleteThreshold float64 `koanf:"complete_threshold"`
	// AcceptableThreshold is the minimum confidence for an acceptable
	// (non-firm) diagnosis when the question budget runs out.
	AcceptableThreshold float64 `koanf:"acceptable_threshold"`
	// MaxQuestions bounds how many questions a session may ask.
	MaxQuestions int `koanf:"max_questions"`
	// StagnationWindow and StagnationDelta control the early-exit when
	// confidence stops improving.
	StagnationWindow int     `koanf:"stagnation_window"`
	StagnationDelta  float64 `koanf:"stagnation_delta"`
	// GainFloor is the minimum information gain for a question to be asked.
	GainFloor float64 `koanf:"gain_floor"`
	// SaturationThreshold skips further questions once a single cause
	// dominates the belief vector.
	SaturationThreshold float64 `koanf:"saturation_threshold"`
	// CloseGap is the top-two belief gap below which an open-ended
	// question is preferred over a scripted one.
	CloseGap float64 `koanf:"close_gap"`
	// StaticWeight is the blend weight for curated patterns versus
	// learned patterns during belief initialization.
	StaticWeight float64 `koanf:"static_weight"`
	// LearnedSupportScale dampens learned patterns with low support.
	LearnedSupportScale float64 `koanf:"learned_support_scale"`
	// BrandConfidenceThreshold gates brand questions on input confidence.
	BrandConfidenceThreshold float64 `koanf:"brand_confidence_threshold"`
}

// RetrievalConfig tunes the hybrid tutorial retrieval pipeline.
type RetrievalConfig struct {
	DenseTopK        int           `koanf:"dense_top_k"`
	SparseTopK       int           `koanf:"sparse_top_k"`
	DenseWeight      float64       `koanf:"dense_weight"`
	SparseWeight     float64       `koanf:"sparse_weight"`
	FeedbackWeight   float64       `koanf:"feedback_weight"`
	StageTimeout     time.Duration `koanf:"stage_timeout"`
	CompleteResults  int           `koanf:"complete_results"`
	UncertainResults int           `koanf:"uncertain_results"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider selects the backend: "chromem" (embedded) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig configures a Qdrant gRPC connection.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures the local embedding model.
type EmbeddingsConfig struct {
	Model     string `koanf:"model"`
	CacheDir  string `koanf:"cache_dir"`
	MaxLength int    `koanf:"max_length"`
}

// FeedbackConfig configures the feedback store.
type FeedbackConfig struct {
	// Driver selects the backend: "sqlite" or "memory".
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// LearningConfig tunes the pattern mining loop.
type LearningConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"`
	MinSupport      int           `koanf:"min_support"`
	MinSuccessRate  float64       `koanf:"min_success_rate"`
	RequireApproval bool          `koanf:"require_approval"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown_timeout must be positive")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry otlp_endpoint is required when enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample_rate must be in [0, 1], got %v", c.Telemetry.SampleRate)
		}
	}

	if c.Knowledge.PatternsPath == "" {
		return fmt.Errorf("knowledge patterns_path is required")
	}
	if c.Knowledge.QuestionsPath == "" {
		return fmt.Errorf("knowledge questions_path is required")
	}

	d := c.Diagnosis
	if d.CompleteThreshold <= 0 || d.CompleteThreshold > 1 {
		return fmt.Errorf("diagnosis complete_threshold must be in (0, 1], got %v", d.CompleteThreshold)
	}
	if d.AcceptableThreshold <= 0 || d.AcceptableThreshold > d.CompleteThreshold {
		return fmt.Errorf("diagnosis acceptable_threshold must be in (0, complete_threshold], got %v", d.AcceptableThreshold)
	}
	if d.MaxQuestions < 1 {
		return fmt.Errorf("diagnosis max_questions must be >= 1, got %d", d.MaxQuestions)
	}
	if d.StaticWeight < 0 || d.StaticWeight > 1 {
		return fmt.Errorf("diagnosis static_weight must be in [0, 1], got %v", d.StaticWeight)
	}

	r := c.Retrieval
	if r.DenseTopK < 1 || r.SparseTopK < 1 {
		return fmt.Errorf("retrieval top-k values must be >= 1")
	}
	if w := r.DenseWeight + r.SparseWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("retrieval dense_weight + sparse_weight must equal 1.0, got %v", w)
	}
	if r.StageTimeout <= 0 {
		return fmt.Errorf("retrieval stage_timeout must be positive")
	}
	if r.CompleteResults < 1 || r.UncertainResults < 1 {
		return fmt.Errorf("retrieval result counts must be >= 1")
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Chromem.Path == "" {
			return fmt.Errorf("vectorstore chromem path is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("vectorstore qdrant host is required")
		}
	default:
		return fmt.Errorf("vectorstore provider must be 'chromem' or 'qdrant', got %q", c.VectorStore.Provider)
	}

	switch c.Feedback.Driver {
	case "sqlite":
		if c.Feedback.Path == "" {
			return fmt.Errorf("feedback path is required for sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("feedback driver must be 'sqlite' or 'memory', got %q", c.Feedback.Driver)
	}

	l := c.Learning
	if l.Enabled {
		if l.Interval <= 0 {
			return fmt.Errorf("learning interval must be positive when enabled")
		}
		if l.MinSupport < 1 {
			return fmt.Errorf("learning min_support must be >= 1, got %d", l.MinSupport)
		}
		if l.MinSuccessRate <= 0 || l.MinSuccessRate > 1 {
			return fmt.Errorf("learning min_success_rate must be in (0, 1], got %v", l.MinSuccessRate)
		}
	}

	return nil
}
