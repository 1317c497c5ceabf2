package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every runtime knob the application needs. It is loaded
// once at startup and passed down explicitly; nothing reads the
// environment after LoadConfig returns.
type Config struct {
	DatabaseURL string

	AwsAccessKey     string
	AwsSecretKey     string
	AwsRegion        string
	BucketName       string
	StoragePublicURL string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	ChunkSize    int
	ChunkOverlap int

	JWTSecret string
	Port      string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:        getEnv("AWS_REGION", "us-east-2"),
		BucketName:       getEnv("BUCKET_NAME", "paschek-gpt"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
		AIAPIKey:         getEnv("GEMINI_API_KEY", ""),
		EmbedModel:       getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:         getEnvInt("EMBED_DIM", 768),
		GenModel:         getEnv("GEN_MODEL", "gemini-1.5-flash"),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		Port:             getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("EMBED_DIM must be positive, got %d", cfg.EmbedDim)
	}

	return cfg, nil
}

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
