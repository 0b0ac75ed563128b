// config.go - Configuration loaded from environment variables

package configs

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	// Gemini AI Configuration
	GEMINI_API_KEY          string
	GEMINI_API_BASE         string
	MODEL_CANDIDATES        []string
	MODEL_CACHE_TTL_MINUTES int
	AI_CALL_TIMEOUT         int // seconds, per model attempt
	MODEL_LIST_TIMEOUT      int // seconds, for the model-listing call

	// Notification webhook Configuration
	WEBHOOK_URL     string
	WEBHOOK_TIMEOUT int // seconds

	// Server Configuration
	PORT            string
	ALLOWED_ORIGINS string

	// MongoDB Configuration
	MONGO_URI     string
	MONGO_DB_NAME string

	// Background enrichment settings
	ENRICH_WORKERS    int // concurrent enrichment workers
	ENRICH_QUEUE_SIZE int // buffered task queue capacity

	// Receipt image preprocessing settings
	ENABLE_IMAGE_PREPROCESSING bool
	MAX_IMAGE_DIMENSION        int
	MAX_RECEIPT_BYTES          int64
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Gemini API key is optional: when empty, receipt enrichment is
	// disabled and payments are stored exactly as entered.
	GEMINI_API_KEY = getEnv("GEMINI_API_KEY", "")
	if GEMINI_API_KEY == "" {
		log.Println("GEMINI_API_KEY not set - receipt enrichment disabled")
	}

	GEMINI_API_BASE = getEnv("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta")
	MODEL_CANDIDATES = splitList(getEnv("MODEL_CANDIDATES", "gemini-2.5-flash,gemini-2.5-flash-lite,gemini-2.0-flash"))
	MODEL_CACHE_TTL_MINUTES = getEnvInt("MODEL_CACHE_TTL_MINUTES", 30)
	AI_CALL_TIMEOUT = getEnvInt("AI_CALL_TIMEOUT", 45)
	MODEL_LIST_TIMEOUT = getEnvInt("MODEL_LIST_TIMEOUT", 10)

	// Notification webhook is optional: when empty, dispatch reports a
	// configuration failure without any network call.
	WEBHOOK_URL = getEnv("WEBHOOK_URL", "")
	WEBHOOK_TIMEOUT = getEnvInt("WEBHOOK_TIMEOUT", 30)
	if WEBHOOK_URL == "" {
		log.Println("WEBHOOK_URL not set - notification dispatch disabled")
	}

	PORT = getEnv("PORT", "8080")
	ALLOWED_ORIGINS = getEnv("ALLOWED_ORIGINS", "*")

	// MongoDB Configuration
	MONGO_URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	MONGO_DB_NAME = getEnv("MONGO_DB_NAME", "bizmanager")

	// Background enrichment
	ENRICH_WORKERS = getEnvInt("ENRICH_WORKERS", 4)
	ENRICH_QUEUE_SIZE = getEnvInt("ENRICH_QUEUE_SIZE", 64)

	// Image Processing
	ENABLE_IMAGE_PREPROCESSING = getEnvBool("ENABLE_IMAGE_PREPROCESSING", true)
	MAX_IMAGE_DIMENSION = getEnvInt("MAX_IMAGE_DIMENSION", 2000)
	MAX_RECEIPT_BYTES = int64(getEnvInt("MAX_RECEIPT_BYTES", 15*1024*1024))

	log.Println("✓ Configuration loaded successfully")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
