package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App  AppConfig
	Keys APIKeys
	Ai   AIConfig
	Kit  KitConfig
	Otel TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	HubLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string // empty disables run telemetry
	RedisURL           string // empty disables cross-instance fan-out
}

type APIKeys struct {
	GoogleGemini string
	HuggingFace  string
}

type AIConfig struct {
	LLMProvider        string // "gemini", "ollama" or "huggingface"
	LLMModel           string
	OllamaBaseURL      string
	HuggingFaceBaseURL string
	RequestTimeout     time.Duration
}

type KitConfig struct {
	MaxImages         int
	QuestionsPerBatch int
	FlashcardCount    int
	BonusContextChars int
	UsedFactsMaxChars int
	SessionTTL        time.Duration
}

// TracingConfig controls the OTLP exporter; tracing is off unless Enabled.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/studykit.log"),
			HubLogFilePath:     getEnv("HUB_LOG_FILE_PATH", "logs/hub.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "gemini"),
			LLMModel:           getEnv("LLM_MODEL", ""),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceBaseURL: getEnv("HUGGINGFACE_BASE_URL", "https://router.huggingface.co/v1"),
			RequestTimeout:     getEnvAsDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		},
		Kit: KitConfig{
			MaxImages:         getEnvAsInt("KIT_MAX_IMAGES", 5),
			QuestionsPerBatch: getEnvAsInt("KIT_QUESTIONS_PER_BATCH", 10),
			FlashcardCount:    getEnvAsInt("KIT_FLASHCARD_COUNT", 10),
			BonusContextChars: getEnvAsInt("KIT_BONUS_CONTEXT_CHARS", 4000),
			UsedFactsMaxChars: getEnvAsInt("KIT_USED_FACTS_MAX_CHARS", 6000),
			SessionTTL:        getEnvAsDuration("KIT_SESSION_TTL", 2*time.Hour),
		},
		Otel: TracingConfig{
			Enabled:     getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

// APIKeyFor returns the key the selected provider needs.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "huggingface":
		return c.Keys.HuggingFace
	case "ollama":
		return ""
	default:
		return c.Keys.GoogleGemini
	}
}

// BaseURLFor returns the endpoint of a self-hosted or OpenAI-compatible provider.
func (c *Config) BaseURLFor(provider string) string {
	switch provider {
	case "huggingface":
		return c.Ai.HuggingFaceBaseURL
	case "ollama":
		return c.Ai.OllamaBaseURL
	default:
		return ""
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
