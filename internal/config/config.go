package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Document store backends
const (
	BackendMemory    = "memory"
	BackendSQL       = "sql"
	BackendFirestore = "firestore"
)

// Config holds every environment-driven setting of the server and admin CLI
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	DocstoreBackend string
	DatabaseURL     string
	SQLitePath      string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	TMDBAPIKey    string
	TMDBBaseURL   string
	TMDBLanguage  string
	TMDBRateLimit float64

	ElasticsearchURL string

	FirebaseProjectID       string
	FirebaseCredentialsFile string

	JWTSecret string

	AWSRegion  string
	AWSBucket  string
	CDNBaseURL string

	OTelEnabled  bool
	OTelEndpoint string

	TriggerWorkers  int
	TriggerSecret   string
	FeedSessionTTL  time.Duration
	FeedInMaxValues int
	CORSOrigins     []string
}

// Load reads .env (when present) and the process environment
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8787"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "cinesync.log"),

		DocstoreBackend: strings.ToLower(getEnv("DOCSTORE_BACKEND", BackendMemory)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TMDBAPIKey:    getEnv("TMDB_API_KEY", ""),
		TMDBBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBLanguage:  getEnv("TMDB_LANGUAGE", "pt-BR"),
		TMDBRateLimit: getFloatEnv("TMDB_RATE_LIMIT", 20),

		ElasticsearchURL: getEnv("ELASTICSEARCH_URL", ""),

		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AWSRegion:  getEnv("AWS_REGION", "us-east-1"),
		AWSBucket:  getEnv("AWS_BUCKET", ""),
		CDNBaseURL: getEnv("CDN_BASE_URL", ""),

		OTelEnabled:  getBoolEnv("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4318"),

		TriggerWorkers:  getIntEnv("TRIGGER_WORKERS", 4),
		TriggerSecret:   getEnv("TRIGGER_SECRET", ""),
		FeedSessionTTL:  getDurationEnv("FEED_SESSION_TTL", 30*time.Minute),
		FeedInMaxValues: getIntEnv("FEED_IN_MAX_VALUES", 30),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	switch c.DocstoreBackend {
	case BackendMemory:
	case BackendSQL:
		if c.DatabaseURL == "" && c.SQLitePath == "" {
			return fmt.Errorf("DOCSTORE_BACKEND=sql requires DATABASE_URL or SQLITE_PATH")
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("DOCSTORE_BACKEND=firestore requires FIREBASE_PROJECT_ID")
		}
	default:
		return fmt.Errorf("unknown DOCSTORE_BACKEND %q", c.DocstoreBackend)
	}

	if c.FirebaseProjectID == "" && c.JWTSecret == "" {
		return fmt.Errorf("either FIREBASE_PROJECT_ID or JWT_SECRET is required for authentication")
	}
	if c.TriggerWorkers < 1 {
		return fmt.Errorf("TRIGGER_WORKERS must be at least 1")
	}
	if c.FeedInMaxValues < 1 {
		return fmt.Errorf("FEED_IN_MAX_VALUES must be at least 1")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RedisEnabled reports whether a redis host was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
