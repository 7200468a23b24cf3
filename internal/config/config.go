// Package config provides configuration management for the authenticate
// application. It handles loading configuration from environment variables
// with sensible defaults and validates the configuration to ensure the
// application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 3000)
//   - LOG_LEVEL: Logging level (default: info)
//   - BASE_URL: Public base URL of this application (default: http://localhost:3000)
//   - SECURE_COOKIES: Mark session cookies HTTPS-only (default: false)
//
// Identity Provider:
//   - ISSUER_BASE_URL: OpenID Connect issuer URL (required)
//   - CLIENT_ID: OAuth client identifier (required)
//   - CLIENT_SECRET: OAuth client secret (optional for public PKCE clients)
//   - OAUTH_SCOPE: Requested scope set (default: "openid profile email offline_access")
//   - OAUTH_AUDIENCE: Audience parameter for the authorization request (optional)
//
// Downstream API:
//   - API_URL: Base URL of the REST API called with user tokens (default: http://localhost:8000)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REDIS_MAX_RETRIES: Reconnect attempts before settling on the in-memory fallback (default: 3)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT: Default rate limit per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit time window (default: 60s)
//
// Security Configuration:
//   - SESSION_SECRET: Secret for encrypting session payloads at rest (required, minimum 32 characters)
//   - TOKEN_ENCRYPTION_KEY: Key for encrypting token bundles at rest (optional; bundles are stored as plain JSON without it)
//
// Example usage:
//
//	config := config.Load()
//	if err := config.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the authenticate application.
// All string fields correspond to environment variables that can be set to
// override the default values.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port          string // Server port number
	LogLevel      string // Logging level (debug, info, warn, error)
	BaseURL       string // Public base URL used to build the OAuth redirect URI
	SecureCookies bool   // Whether session cookies are marked Secure

	// Identity provider registration
	IssuerBaseURL string // OpenID Connect issuer URL
	ClientID      string // OAuth client identifier
	ClientSecret  string // OAuth client secret
	OAuthScope    string // Requested scope set
	OAuthAudience string // Optional audience for the authorization request

	// Downstream API
	APIURL string // Base URL of the REST API

	// Redis configuration for tokens, sessions, and response caching
	RedisAddress    string // Redis server address (host:port)
	RedisPassword   string // Redis authentication password
	RedisDB         string // Redis database number (0-15)
	RedisPoolSize   string // Redis connection pool size
	RedisMaxRetries string // Reconnect attempts before permanent fallback

	// Rate limiting configuration
	RateLimitEnabled bool   // Whether rate limiting is enabled
	RateLimitDefault string // Default requests per window
	RateLimitWindow  string // Rate limiting time window (e.g., "60s", "1m")

	// Encryption configuration
	SessionSecret      string // Secret for session payload encryption (required)
	TokenEncryptionKey string // Key for token bundle encryption (optional)
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding
// default value is used.
//
// This function does not validate the configuration - call Validate() on
// the returned Config to ensure all required values are properly set.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:3000"),
		SecureCookies: getBoolEnv("SECURE_COOKIES", false),

		// Identity provider registration
		IssuerBaseURL: getEnv("ISSUER_BASE_URL", ""),
		ClientID:      getEnv("CLIENT_ID", ""),
		ClientSecret:  getEnv("CLIENT_SECRET", ""),
		OAuthScope:    getEnv("OAUTH_SCOPE", "openid profile email offline_access"),
		OAuthAudience: getEnv("OAUTH_AUDIENCE", ""),

		// Downstream API
		APIURL: getEnv("API_URL", "http://localhost:8000"),

		// Redis configuration
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnv("REDIS_DB", "0"),
		RedisPoolSize:   getEnv("REDIS_POOL_SIZE", "10"),
		RedisMaxRetries: getEnv("REDIS_MAX_RETRIES", "3"),

		// Rate limiting configuration
		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),

		// Encryption configuration
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
	}
}

// RedirectURL returns the OAuth callback URL derived from the base URL
func (c *Config) RedirectURL() string {
	return c.BaseURL + "/callback"
}

// getEnv retrieves an environment variable value or returns a default
// value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a
// default value. Accepts the representations strconv.ParseBool accepts;
// any other value falls back to the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs comprehensive validation on the configuration to
// ensure all required fields are present and all values are valid.
//
// This method checks:
//   - Required fields (ISSUER_BASE_URL, CLIENT_ID, SESSION_SECRET)
//   - Field format validation (ports, URLs, numeric ranges)
//   - Security requirements (secret lengths)
//
// The application should call this method after loading configuration and
// before starting to ensure safe operation.
func (c *Config) Validate() error {
	if c.IssuerBaseURL == "" {
		return fmt.Errorf("ISSUER_BASE_URL environment variable is required")
	}
	if parsed, err := url.Parse(c.IssuerBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("ISSUER_BASE_URL must be an absolute URL")
	}

	if c.ClientID == "" {
		return fmt.Errorf("CLIENT_ID environment variable is required")
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET environment variable is required")
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters long for security")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if parsed, err := url.Parse(c.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL")
	}
	if parsed, err := url.Parse(c.APIURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL")
	}

	// Validate Redis config if provided
	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
		if retries, err := strconv.Atoi(c.RedisMaxRetries); err != nil || retries < 1 {
			return fmt.Errorf("REDIS_MAX_RETRIES must be a positive number")
		}
	}

	// Validate rate limit config
	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return fmt.Errorf("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if _, err := time.ParseDuration(c.RateLimitWindow); err != nil {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
	}

	return nil
}
