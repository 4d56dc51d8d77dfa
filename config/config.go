// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads chatvault settings.
//
// Values are layered: defaults, then a TOML or YAML file, then CHATVAULT_*
// environment variables (optionally read from a .env file). Command line
// flags are applied last by the CLI. The result is checked with struct tags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/chatvault/ai"
	"github.com/poiesic/chatvault/source"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATVAULT"

// Duration is a time.Duration read from strings such as "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete chatvault configuration.
// Environment names join section and field, as in CHATVAULT_SEARCH_PER_CONVERSATION.
type Config struct {
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	AI        AIConfig        `toml:"ai" yaml:"ai"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	Import    ImportConfig    `toml:"import" yaml:"import"`
	Search    SearchConfig    `toml:"search" yaml:"search"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Events    EventsConfig    `toml:"events" yaml:"events"`
	S3        S3Config        `toml:"s3" yaml:"s3"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// StorageConfig selects and locates the store.
type StorageConfig struct {
	Backend     string `toml:"backend" yaml:"backend" split_words:"true" validate:"oneof=badger postgres"`
	Path        string `toml:"path" yaml:"path" split_words:"true" validate:"required_if=Backend badger"`
	PostgresURL string `toml:"postgres_url" yaml:"postgres_url" split_words:"true" validate:"required_if=Backend postgres"`
	MaxConns    int32  `toml:"max_conns" yaml:"max_conns" split_words:"true" validate:"gte=0"`
}

// AIConfig configures the embedding and classification providers.
type AIConfig struct {
	Provider        string `toml:"provider" yaml:"provider" split_words:"true" validate:"oneof=local openai"`
	Host            string `toml:"host" yaml:"host" split_words:"true"`
	EmbeddingHost   string `toml:"embedding_host" yaml:"embedding_host" split_words:"true"`
	ClassifierHost  string `toml:"classifier_host" yaml:"classifier_host" split_words:"true"`
	EmbeddingModel  string `toml:"embedding_model" yaml:"embedding_model" split_words:"true" validate:"required"`
	ClassifierModel string `toml:"classifier_model" yaml:"classifier_model" split_words:"true"`
	APIKey          string `toml:"api_key" yaml:"api_key" split_words:"true" validate:"required_if=Provider openai"`
	MaxTags         int    `toml:"max_tags" yaml:"max_tags" split_words:"true" validate:"min=1,max=20"`
}

// EmbeddingConfig tunes the embedding generator.
type EmbeddingConfig struct {
	BatchSize   int      `toml:"batch_size" yaml:"batch_size" split_words:"true" validate:"min=1"`
	Concurrency int      `toml:"concurrency" yaml:"concurrency" split_words:"true" validate:"min=1"`
	RateLimit   float64  `toml:"rate_limit" yaml:"rate_limit" split_words:"true" validate:"gte=0"`
	Burst       int      `toml:"burst" yaml:"burst" split_words:"true" validate:"gte=0"`
	MaxAttempts int      `toml:"max_attempts" yaml:"max_attempts" split_words:"true" validate:"min=1"`
	RetryDelay  Duration `toml:"retry_delay" yaml:"retry_delay" split_words:"true"`
}

// ImportConfig tunes the ingestion pipeline.
type ImportConfig struct {
	Policy       string   `toml:"policy" yaml:"policy" split_words:"true" validate:"oneof=skip overwrite merge"`
	Workers      int      `toml:"workers" yaml:"workers" split_words:"true" validate:"min=1"`
	ChunkBudget  int      `toml:"chunk_budget" yaml:"chunk_budget" split_words:"true" validate:"min=50"`
	Classifier   string   `toml:"classifier" yaml:"classifier" split_words:"true" validate:"oneof=llm heuristic none"`
	Categories   []string `toml:"categories" yaml:"categories" split_words:"true"`
	DefaultTitle string   `toml:"default_title" yaml:"default_title" split_words:"true"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	K                      int `toml:"k" yaml:"k" split_words:"true" validate:"min=1"`
	PerConversation        int `toml:"per_conversation" yaml:"per_conversation" split_words:"true" validate:"min=1"`
	MinSemanticQueryLength int `toml:"min_semantic_query_length" yaml:"min_semantic_query_length" split_words:"true" validate:"gte=0"`
}

// ServerConfig configures the HTTP server and its background schedule.
type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr" split_words:"true" validate:"required"`
	ResumeSchedule  string   `toml:"resume_schedule" yaml:"resume_schedule" split_words:"true"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" split_words:"true"`
	MaxImportBytes  int64    `toml:"max_import_bytes" yaml:"max_import_bytes" split_words:"true" validate:"gte=0"`
}

// EventsConfig enables NATS publishing when URL is set.
type EventsConfig struct {
	URL    string `toml:"nats_url" yaml:"nats_url" split_words:"true"`
	Token  string `toml:"token" yaml:"token" split_words:"true"`
	Prefix string `toml:"prefix" yaml:"prefix" split_words:"true"`
}

// S3Config enables s3:// import locations.
type S3Config struct {
	Region          string `toml:"region" yaml:"region" split_words:"true"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint" split_words:"true" validate:"omitempty,url"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id" split_words:"true"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key" split_words:"true"`
	UsePathStyle    bool   `toml:"use_path_style" yaml:"use_path_style" split_words:"true"`
}

// TelemetryConfig enables Sentry error reporting when DSN is set.
type TelemetryConfig struct {
	SentryDSN   string  `toml:"sentry_dsn" yaml:"sentry_dsn" split_words:"true"`
	Environment string  `toml:"environment" yaml:"environment" split_words:"true"`
	SampleRate  float64 `toml:"sample_rate" yaml:"sample_rate" split_words:"true" validate:"gte=0,lte=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "chatvault.db",
		},
		AI: AIConfig{
			Provider:        aiDefaults.Provider,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			ClassifierModel: aiDefaults.ClassifierModel,
			MaxTags:         aiDefaults.MaxTags,
		},
		Embedding: EmbeddingConfig{
			BatchSize:   32,
			Concurrency: 4,
			MaxAttempts: 4,
			RetryDelay:  Duration{500 * time.Millisecond},
		},
		Import: ImportConfig{
			Policy:      "skip",
			Workers:     4,
			ChunkBudget: 1000,
			Classifier:  "llm",
		},
		Search: SearchConfig{
			K:               10,
			PerConversation: 3,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8420",
			ShutdownTimeout: Duration{10 * time.Second},
			MaxImportBytes:  256 << 20,
		},
		Events: EventsConfig{
			Prefix: "chatvault",
		},
		Telemetry: TelemetryConfig{
			Environment: "production",
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadOptions locate the configuration sources.
type LoadOptions struct {
	// Path is a .toml, .yaml or .yml file. Empty skips the file.
	Path string
	// EnvFile is a dotenv file loaded into the environment. A missing file is ignored.
	EnvFile string
}

// Load builds a Config from defaults, the file, and the environment, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	if opts.Path != "" {
		if err := cfg.mergeFile(opts.Path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks field constraints and the AI settings.
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.Import.Policy = strings.ToLower(strings.TrimSpace(c.Import.Policy))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Import.Classifier == "llm" {
		if err := c.AIConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// AIConfig converts the AI section to provider settings.
// Host fills whichever specific host is unset.
func (c *Config) AIConfig() *ai.Config {
	defaults := ai.DefaultConfig()
	embeddingHost := firstNonEmpty(c.AI.EmbeddingHost, c.AI.Host)
	classifierHost := firstNonEmpty(c.AI.ClassifierHost, c.AI.Host)
	if c.AI.Provider != ai.ProviderOpenAI {
		embeddingHost = firstNonEmpty(embeddingHost, defaults.EmbeddingHost)
		classifierHost = firstNonEmpty(classifierHost, defaults.ClassifierHost)
	}
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithClassifierHost(classifierHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithClassifierModel(firstNonEmpty(c.AI.ClassifierModel, defaults.ClassifierModel)),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithMaxTags(c.AI.MaxTags),
	)
}

// S3Enabled reports whether s3:// locations can be opened.
func (c *Config) S3Enabled() bool {
	return c.S3.Region != "" || c.S3.Endpoint != ""
}

// S3Client returns the settings for source.NewS3Client.
func (c *Config) S3Client() source.S3Config {
	return source.S3Config{
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		UsePathStyle:    c.S3.UsePathStyle,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
