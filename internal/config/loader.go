// Package config provides configuration loading for repaird.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, DIAGNOSIS_MAX_QUESTIONS, etc.)
//  2. YAML config file (~/.config/repaird/config.yaml)
//  3. Hardcoded defaults
//
// If configPath is empty, the default path ~/.config/repaird/config.yaml is
// used. Config files must live under ~/.config/repaird/ or /etc/repaird/,
// carry 0600 or 0400 permissions, and stay below 1MB.
//
// Environment variables map to config keys by splitting on the first
// underscore:
//
//	SERVER_PORT              -> server.port
//	DIAGNOSIS_MAX_QUESTIONS  -> diagnosis.max_questions
//	RETRIEVAL_STAGE_TIMEOUT  -> retrieval.stage_timeout
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "repaird", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides. Split on the first underscore only, so
	// DIAGNOSIS_MAX_QUESTIONS becomes diagnosis.max_questions.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the repaird config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "repaird")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks the path is inside an allowed directory.
// Runs even when the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so one cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet; validate the literal path instead.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "repaird"),
		"/etc/repaird",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/repaird/ or /etc/repaird/")
}

// validateConfigFileProperties checks file permissions and size on an
// already-opened file descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "repaird"
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".config", "repaird")

	if cfg.Knowledge.PatternsPath == "" {
		cfg.Knowledge.PatternsPath = filepath.Join(dataDir, "patterns.yaml")
	}
	if cfg.Knowledge.QuestionsPath == "" {
		cfg.Knowledge.QuestionsPath = filepath.Join(dataDir, "questions.yaml")
	}

	d := &cfg.Diagnosis
	if d.CompleteThreshold == 0 {
		d.CompleteThreshold = 0.75
	}
	if d.AcceptableThreshold == 0 {
		d.AcceptableThreshold = 0.5
	}
	if d.MaxQuestions == 0 {
		d.MaxQuestions = 8
	}
	if d.StagnationWindow == 0 {
		d.StagnationWindow = 3
	}
	if d.StagnationDelta == 0 {
		d.StagnationDelta = 0.05
	}
	if d.GainFloor == 0 {
		d.GainFloor = 0.6
	}
	if d.SaturationThreshold == 0 {
		d.SaturationThreshold = 0.9
	}
	if d.CloseGap == 0 {
		d.CloseGap = 0.15
	}
	if d.StaticWeight == 0 {
		d.StaticWeight = 0.7
	}
	if d.LearnedSupportScale == 0 {
		d.LearnedSupportScale = 5
	}
	if d.BrandConfidenceThreshold == 0 {
		d.BrandConfidenceThreshold = 0.8
	}

	r := &cfg.Retrieval
	if r.DenseTopK == 0 {
		r.DenseTopK = 50
	}
	if r.SparseTopK == 0 {
		r.SparseTopK = 50
	}
	if r.DenseWeight == 0 && r.SparseWeight == 0 {
		r.DenseWeight = 0.6
		r.SparseWeight = 0.4
	}
	if r.FeedbackWeight == 0 {
		r.FeedbackWeight = 0.3
	}
	if r.StageTimeout == 0 {
		r.StageTimeout = 3 * time.Second
	}
	if r.CompleteResults == 0 {
		r.CompleteResults = 5
	}
	if r.UncertainResults == 0 {
		r.UncertainResults = 8
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = filepath.Join(dataDir, "vectorstore")
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "tutorials"
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "tutorials"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = filepath.Join(dataDir, "models")
	}
	if cfg.Embeddings.MaxLength == 0 {
		cfg.Embeddings.MaxLength = 512
	}

	if cfg.Feedback.Driver == "" {
		cfg.Feedback.Driver = "sqlite"
	}
	if cfg.Feedback.Path == "" {
		cfg.Feedback.Path = filepath.Join(dataDir, "feedback.db")
	}

	l := &cfg.Learning
	if l.Interval == 0 {
		l.Interval = time.Hour
	}
	if l.MinSupport == 0 {
		l.MinSupport = 3
	}
	if l.MinSuccessRate == 0 {
		l.MinSuccessRate = 0.7
	}
}
