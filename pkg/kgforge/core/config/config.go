package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// RetryConfig holds configuration for the status-polling backoff loop.
// Intervals are in milliseconds.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialInterval int     `yaml:"initial_interval"`
	MaxInterval     int     `yaml:"max_interval"`
	Factor          float64 `yaml:"factor"`
}

// PipelineConfig holds configuration for the batch extraction pipeline.
type PipelineConfig struct {
	// Task is the prompt-library task used to render request bodies.
	Task string `yaml:"task"`
	// BatchSize caps the number of items per submitted batch.
	BatchSize int `yaml:"batch_size"`
	// Poll is the backoff policy for waiting on batch completion.
	Poll RetryConfig `yaml:"poll"`
}

// JobAPIConfig holds configuration for the external asynchronous job API.
type JobAPIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// Endpoint is the per-item request target inside the job payload.
	Endpoint string `yaml:"endpoint"`
	// CompletionWindow is the completion window requested for each job.
	CompletionWindow string `yaml:"completion_window"`
	// TimeoutSeconds bounds individual HTTP calls.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ManifestConfig selects and parameterizes the manifest store backend.
type ManifestConfig struct {
	// Backend is "fs" (directory-backed JSON manifests) or "gorm"
	// (relational tables preserving the same semantics).
	Backend string `yaml:"backend"`
	// BatchDir is the root directory for execution/batch artifacts.
	BatchDir string `yaml:"batch_dir"`
	// DBRef names the database adaptor entry used by the gorm backend.
	DBRef string `yaml:"db_ref"`
}

// GraphConfig holds Neo4j connection settings.
type GraphConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ExportConfig holds settings for the analytical Parquet snapshot.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// CompressionCodec is snappy, gzip, or uncompressed.
	CompressionCodec string `yaml:"compression_codec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// KgforgeConfig holds all configuration under the "kgforge" top-level key.
type KgforgeConfig struct {
	System   SystemConfig   `yaml:"system"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	JobAPI   JobAPIConfig   `yaml:"job_api"`
	Manifest ManifestConfig `yaml:"manifest"`
	Graph    GraphConfig    `yaml:"graph"`
	Export   ExportConfig   `yaml:"export"`
	// AdaptorConfigs holds database connection configurations keyed by name.
	// Entries are untyped maps bound to DatabaseConfig by the gorm provider.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
}

// DatabaseConfig is the typed shape of one AdaptorConfigs entry.
type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Kgforge        KgforgeConfig  `yaml:"kgforge"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new Config populated with default values.
func NewConfig() *Config {
	cfg := &Config{
		Kgforge: KgforgeConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Pipeline: PipelineConfig{
				Task:      "entity_extraction",
				BatchSize: 2000,
				Poll: RetryConfig{
					MaxAttempts:     120,
					InitialInterval: 30000,
					MaxInterval:     300000,
					Factor:          2.0,
				},
			},
			JobAPI: JobAPIConfig{
				BaseURL:          "https://api.openai.com/v1",
				Model:            "gpt-4o-mini",
				Endpoint:         "/v1/chat/completions",
				CompletionWindow: "24h",
				TimeoutSeconds:   60,
			},
			Manifest: ManifestConfig{
				Backend:  "fs",
				BatchDir: "batches",
				DBRef:    "manifest",
			},
			Graph: GraphConfig{
				URI:      "bolt://localhost:7687",
				Username: "neo4j",
				Database: "neo4j",
			},
			Export: ExportConfig{
				Path:             "entities.parquet",
				CompressionCodec: "snappy",
			},
		},
	}

	cfg.Kgforge.AdaptorConfigs = map[string]interface{}{}
	return cfg
}
