package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DatabaseURL       string
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	PineconeAPIKey    string
	PineconeIndexName string
	MaxResults        int
	MaxHistory        int
	MaxToolRounds     int
	ChunkSize         int
	ChunkOverlap      int
	DocsPath          string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file found, using environment variables")
	}

	return &Config{
		Port:              getEnv("PORT", "8000"),
		DatabaseURL:       os.Getenv("DB_URL"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: getEnv("PINECONE_INDEX_NAME", "course-materials-index"),
		MaxResults:        getEnvInt("MAX_RESULTS", 5),
		MaxHistory:        getEnvInt("MAX_HISTORY", 2),
		MaxToolRounds:     getEnvInt("MAX_TOOL_ROUNDS", 2),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 100),
		DocsPath:          getEnv("DOCS_PATH", "./docs"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[WARN] Invalid value for %s: %q, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}
