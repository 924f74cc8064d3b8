package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server
	Port    string
	AppName string

	// Storage. The DatabaseURL scheme picks the backend.
	DatabaseURL   string
	MongoDatabase string

	// OAuth2: Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OAuth2: GitHub login
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// OAuth2: GitHub repository connect
	GitHubConnectRedirectURL string

	// JWT
	JWTSecret     string
	JWTIssuer     string
	JWTExpiration int // hours

	// GitHub REST
	GitHubAPIURL      string
	GitHubAccessToken string  // used for pushes on repositories with no stored token
	GitHubRateLimit   float64 // requests per second, 0 = unpaced
	WalkerConcurrency int

	// Webhooks
	WebhookReceiverURL  string
	GitHubWebhookSecret string

	// Retrieval service
	RAGPath   string // index + delete
	RAGAPIURL string // query

	HTTPTimeout time.Duration

	// Frontend
	CORSOrigin string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := envOrDefault("PORT", "5000")
	ragPath := envOrDefault("RAG_PATH", "http://0.0.0.0:8002")

	return &Config{
		Port:    port,
		AppName: envOrDefault("APP_NAME", "repo-sync"),

		DatabaseURL:   databaseURL(),
		MongoDatabase: os.Getenv("MONGODB_DATABASE"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  envOrDefault("GOOGLE_REDIRECT_URI", "http://localhost:"+port+"/api/auth/google/callback"),

		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubRedirectURL:  envOrDefault("GITHUB_REDIRECT_URI", "http://localhost:"+port+"/api/auth/github/callback"),

		GitHubConnectRedirectURL: envOrDefault("GITHUB_CONNECT_REDIRECT_URI", "http://localhost:"+port+"/api/github/oauth/callback"),

		JWTSecret:     envOrDefault("JWT_SECRET", "supersecret"),
		JWTIssuer:     envOrDefault("JWT_ISSUER", "repo-sync"),
		JWTExpiration: envOrDefaultInt("JWT_EXPIRATION_HOURS", 168),

		GitHubAPIURL:      envOrDefault("GITHUB_API_URL", "https://api.github.com"),
		GitHubAccessToken: os.Getenv("GITHUB_ACCESS_TOKEN"),
		GitHubRateLimit:   envOrDefaultFloat("GITHUB_RATE_LIMIT", 0),
		WalkerConcurrency: envOrDefaultInt("WALKER_CONCURRENCY", 8),

		WebhookReceiverURL:  os.Getenv("WEBHOOK_RECEIVER_URL"),
		GitHubWebhookSecret: os.Getenv("GITHUB_WEBHOOK_SECRET"),

		RAGPath:   ragPath,
		RAGAPIURL: envOrDefault("RAG_API_URL", ragPath),

		HTTPTimeout: time.Duration(envOrDefaultInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,

		CORSOrigin: strings.TrimRight(envOrDefault("CORS_ORIGIN", "http://localhost:3000"), "/"),
	}
}

// databaseURL prefers DATABASE_URL, then MONGODB_URI, then an in-memory store.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		return v
	}
	return "memory://"
}

// DSN returns the database URL with any password masked, for logging.
func (c *Config) DSN() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
