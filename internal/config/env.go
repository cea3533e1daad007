package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Vector store backends.
const (
	VectorStoreChromem  = "chromem"
	VectorStorePgvector = "pgvector"
)

// Raw file stores.
const (
	RawStoreLocal = "local"
	RawStoreS3    = "s3"
)

// Embedding and generation providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
	ProviderGroq   = "groq"
)

type Config struct {
	Port           string
	DatabaseURL    string
	SslCertPath    string
	JWTSecret      string
	JWTExpireMins  int
	AllowedOrigins []string

	DocumentStorePath string
	VectorStore       string
	VectorCompress    bool
	RawStore          string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	EmbedProvider string
	EmbedModel    string
	EmbedBaseURL  string
	EmbedAPIKey   string
	EmbedDim      int

	GenProvider    string
	GroqAPIKey     string
	GeminiAPIKey   string
	GenModel       string
	GenBaseURL     string
	GenTemperature float64
	GenMaxTokens   int

	IngestEmbedBatch int
	IngestWorkers    int

	LogLevel  string
	LogFormat string
}

// VectorStorePath is where the chromem index is persisted.
func (c *Config) VectorStorePath() string {
	return filepath.Join(c.DocumentStorePath, "chroma_db")
}

// GenerationKey returns the credential of the selected generative backend.
// An empty key disables generation.
func (c *Config) GenerationKey() string {
	if c.GenProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.GroqAPIKey
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTExpireMins:  getEnvInt("JWT_EXPIRE_MINUTES", 30),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8000")),

		DocumentStorePath: getEnv("DOCUMENT_STORE_PATH", "document_store"),
		VectorStore:       strings.ToLower(getEnv("VECTOR_STORE", VectorStoreChromem)),
		VectorCompress:    getEnvBool("VECTOR_COMPRESS", false),
		RawStore:          strings.ToLower(getEnv("RAW_STORE", RawStoreLocal)),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docrag-documents"),

		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", ProviderOpenAI)),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedBaseURL:  getEnv("EMBED_BASE_URL", "http://localhost:8081/v1"),
		EmbedAPIKey:   getEnv("EMBED_API_KEY", ""),
		EmbedDim:      getEnvInt("EMBED_DIM", 384),

		GenProvider:    strings.ToLower(getEnv("GEN_PROVIDER", ProviderGroq)),
		GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GenModel:       getEnv("GEN_MODEL", ""),
		GenBaseURL:     getEnv("GEN_BASE_URL", "https://api.groq.com/openai/v1"),
		GenTemperature: getEnvFloat("GEN_TEMPERATURE", 0.1),
		GenMaxTokens:   getEnvInt("GEN_MAX_TOKENS", 1024),

		IngestEmbedBatch: getEnvInt("INGEST_EMBED_BATCH", 16),
		IngestWorkers:    getEnvInt("INGEST_WORKERS", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModel(cfg.EmbedProvider)
	}
	if cfg.GenModel == "" {
		cfg.GenModel = defaultGenModel(cfg.GenProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultEmbedModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "text-embedding-004"
	default:
		return "all-MiniLM-L6-v2"
	}
}

func defaultGenModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-1.5-flash"
	default:
		return "llama3-8b-8192"
	}
}

// Validate checks required settings and enumerated values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	if c.DocumentStorePath == "" {
		return fmt.Errorf("DOCUMENT_STORE_PATH is empty")
	}
	switch c.VectorStore {
	case VectorStoreChromem, VectorStorePgvector:
	default:
		return fmt.Errorf("VECTOR_STORE must be %q or %q, got %q", VectorStoreChromem, VectorStorePgvector, c.VectorStore)
	}
	switch c.RawStore {
	case RawStoreLocal, RawStoreS3:
	default:
		return fmt.Errorf("RAW_STORE must be %q or %q, got %q", RawStoreLocal, RawStoreS3, c.RawStore)
	}
	switch c.EmbedProvider {
	case ProviderOpenAI, ProviderGemini, ProviderHash:
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}
	switch c.GenProvider {
	case ProviderGroq, ProviderGemini:
	default:
		return fmt.Errorf("unknown GEN_PROVIDER %q", c.GenProvider)
	}
	if c.IngestEmbedBatch <= 0 || c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_EMBED_BATCH and INGEST_WORKERS must be positive")
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
