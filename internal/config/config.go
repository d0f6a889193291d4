// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to wire itself up.
type Config struct {
	Port        int
	MetricsPort int

	VectorStoreURL   string
	VectorCollection string

	KVURL string

	EmbeddingURL       string
	EmbeddingAPIKey    string
	EmbeddingModel     string
	EmbeddingDimension int

	SpaceID         string
	AllowedSpaceIDs []string

	ScoreThreshold      float64
	MatchThreshold      float64
	SimilarityThreshold float64

	KafkaBrokers []string
	KafkaTopic   string

	ElicitationTimeoutSeconds int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A local .env file is applied
// first when present; real environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      envInt("PORT", 8080),
		MetricsPort:               envInt("METRICS_PORT", 9090),
		VectorStoreURL:            envStr("VECTOR_STORE_URL", "http://localhost:6334"),
		VectorCollection:          envStr("VECTOR_COLLECTION", "kairos_memory"),
		KVURL:                     envStr("KV_URL", "redis://localhost:6379"),
		EmbeddingURL:              envStr("EMBEDDING_URL", "http://localhost:11434/v1"),
		EmbeddingAPIKey:           envStr("EMBEDDING_API_KEY", ""),
		EmbeddingModel:            envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDimension:        envInt("EMBEDDING_DIMENSION", 768),
		SpaceID:                   envStr("KAIROS_APP_SPACE_ID", "default"),
		ScoreThreshold:            envFloat("SCORE_THRESHOLD", 0.7),
		MatchThreshold:            envFloat("MATCH_THRESHOLD", 0.95),
		SimilarityThreshold:       envFloat("SIMILARITY_THRESHOLD", 0.92),
		KafkaTopic:                envStr("KAFKA_TOPIC", "kairos.cache"),
		ElicitationTimeoutSeconds: envInt("ELICITATION_TIMEOUT_SECONDS", 60),
		LogLevel:                  envStr("LOG_LEVEL", "info"),
		LogFormat:                 envStr("LOG_FORMAT", "text"),
	}

	cfg.AllowedSpaceIDs = envList("ALLOWED_SPACE_IDS", []string{cfg.SpaceID})
	cfg.KafkaBrokers = envList("KAFKA_BROKERS", nil)

	if cfg.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", cfg.EmbeddingDimension)
	}
	if cfg.MatchThreshold < cfg.ScoreThreshold {
		return nil, fmt.Errorf("MATCH_THRESHOLD (%v) must be >= SCORE_THRESHOLD (%v)",
			cfg.MatchThreshold, cfg.ScoreThreshold)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// VectorName is the named-vector key in force for the configured dimension.
func (c *Config) VectorName() string {
	return fmt.Sprintf("vs%d", c.EmbeddingDimension)
}

// EventsEnabled reports whether a kafka producer should be wired.
func (c *Config) EventsEnabled() bool { return len(c.KafkaBrokers) > 0 }

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
