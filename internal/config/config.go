package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int
	APIMaxUploadBytes     int64
	APIMaxConnections     int

	// PostgresDSN selects durable repositories; empty keeps everything in memory.
	PostgresDSN string

	NATSURL              string
	NATSRequestedSubject string
	NATSCompletedSubject string

	AnalysisDispatch  string
	AnalysisTimeout   time.Duration
	AnalysisRetention time.Duration

	SegmentTargetWords int
	SegmentMinWords    int
	LexiconPath        string

	EmbeddingProvider string
	OllamaURL         string
	OllamaEmbedModel  string
	EmbedTimeout      time.Duration

	QdrantURL        string
	QdrantCollection string

	RetrievalMode          string
	RetrievalTopK          int
	RetrievalPoolSize      int
	RetrievalRRFK          int
	RetrievalTimeout       time.Duration
	CitationsPerCategory   int
	UnflaggedCitationsTopK int

	ResilienceMaxRetries  int
	ResilienceCallTimeout time.Duration

	StoragePath string

	WorkerMetricsPort string
	// KnowledgeRefresh is how often a worker reloads the reference corpus
	// written by the API process; 0 disables reloading.
	KnowledgeRefresh time.Duration
}

// Load reads the process environment. A .env file in the working directory,
// if present, fills variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),
		APIMaxUploadBytes:     int64(mustEnvInt("API_MAX_UPLOAD_BYTES", 32<<20)),
		APIMaxConnections:     mustEnvInt("API_MAX_CONNECTIONS", 512),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:              mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSRequestedSubject: mustEnv("NATS_REQUESTED_SUBJECT", "analyses.requested"),
		NATSCompletedSubject: mustEnv("NATS_COMPLETED_SUBJECT", "analyses.completed"),

		AnalysisDispatch:  mustEnv("ANALYSIS_DISPATCH", "inline"),
		AnalysisTimeout:   mustEnvDuration("ANALYSIS_TIMEOUT", 10*time.Minute),
		AnalysisRetention: mustEnvDuration("ANALYSIS_RETENTION", time.Hour),

		SegmentTargetWords: mustEnvInt("SEGMENT_TARGET_WORDS", 160),
		SegmentMinWords:    mustEnvInt("SEGMENT_MIN_WORDS", 40),
		LexiconPath:        mustEnv("LEXICON_PATH", ""),

		EmbeddingProvider: mustEnv("EMBEDDING_PROVIDER", "none"),
		OllamaURL:         mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel:  mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		EmbedTimeout:      mustEnvDuration("EMBED_TIMEOUT", 5*time.Second),

		QdrantURL:        mustEnv("QDRANT_URL", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "reference_excerpts"),

		RetrievalMode:          mustEnv("RETRIEVAL_MODE", "semantic"),
		RetrievalTopK:          mustEnvInt("RETRIEVAL_TOP_K", 4),
		RetrievalPoolSize:      mustEnvInt("RETRIEVAL_POOL_SIZE", 30),
		RetrievalRRFK:          mustEnvInt("RETRIEVAL_RRF_K", 60),
		RetrievalTimeout:       mustEnvDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
		CitationsPerCategory:   mustEnvInt("CITATIONS_PER_CATEGORY", 2),
		UnflaggedCitationsTopK: mustEnvInt("UNFLAGGED_CITATIONS_TOP_K", 3),

		ResilienceMaxRetries:  mustEnvInt("RESILIENCE_MAX_RETRIES", 2),
		ResilienceCallTimeout: mustEnvDuration("RESILIENCE_CALL_TIMEOUT", 15*time.Second),

		StoragePath: mustEnv("STORAGE_PATH", "./data/storage"),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
		KnowledgeRefresh:  mustEnvDuration("KNOWLEDGE_REFRESH_INTERVAL", 5*time.Minute),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// mustEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
