package config

import (
	"os"
	"strings"
	"testing"
)

const validSessionSecret = "this-is-a-valid-session-secret-with-32-plus-chars"

func TestLoad(t *testing.T) {
	// Clear environment variables to test defaults
	clearTestEnvVars()

	config := Load()

	if config.Port != "3000" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "3000")
	}

	if config.LogLevel != "info" {
		t.Errorf("Load() LogLevel = %v, want %v", config.LogLevel, "info")
	}

	if config.BaseURL != "http://localhost:3000" {
		t.Errorf("Load() BaseURL = %v, want %v", config.BaseURL, "http://localhost:3000")
	}

	if config.SecureCookies {
		t.Errorf("Load() SecureCookies = %v, want %v", config.SecureCookies, false)
	}

	// Test identity provider defaults
	if config.IssuerBaseURL != "" {
		t.Errorf("Load() IssuerBaseURL = %v, want empty", config.IssuerBaseURL)
	}

	if config.ClientID != "" {
		t.Errorf("Load() ClientID = %v, want empty", config.ClientID)
	}

	if config.OAuthScope != "openid profile email offline_access" {
		t.Errorf("Load() OAuthScope = %v, want default scope set", config.OAuthScope)
	}

	if config.APIURL != "http://localhost:8000" {
		t.Errorf("Load() APIURL = %v, want %v", config.APIURL, "http://localhost:8000")
	}

	// Test Redis defaults
	if config.RedisAddress != "localhost:6379" {
		t.Errorf("Load() RedisAddress = %v, want %v", config.RedisAddress, "localhost:6379")
	}

	if config.RedisDB != "0" {
		t.Errorf("Load() RedisDB = %v, want %v", config.RedisDB, "0")
	}

	if config.RedisPoolSize != "10" {
		t.Errorf("Load() RedisPoolSize = %v, want %v", config.RedisPoolSize, "10")
	}

	if config.RedisMaxRetries != "3" {
		t.Errorf("Load() RedisMaxRetries = %v, want %v", config.RedisMaxRetries, "3")
	}

	// Test rate limiting defaults
	if !config.RateLimitEnabled {
		t.Errorf("Load() RateLimitEnabled = %v, want %v", config.RateLimitEnabled, true)
	}

	if config.RateLimitDefault != "100" {
		t.Errorf("Load() RateLimitDefault = %v, want %v", config.RateLimitDefault, "100")
	}

	if config.RateLimitWindow != "60s" {
		t.Errorf("Load() RateLimitWindow = %v, want %v", config.RateLimitWindow, "60s")
	}

	// Test encryption defaults
	if config.SessionSecret != "" {
		t.Errorf("Load() SessionSecret = %v, want empty", config.SessionSecret)
	}

	if config.TokenEncryptionKey != "" {
		t.Errorf("Load() TokenEncryptionKey = %v, want empty", config.TokenEncryptionKey)
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                 "9090",
		"LOG_LEVEL":            "debug",
		"BASE_URL":             "https://app.example.com",
		"SECURE_COOKIES":       "true",
		"ISSUER_BASE_URL":      "https://id.example.com",
		"CLIENT_ID":            "my-client",
		"CLIENT_SECRET":        "my-secret",
		"OAUTH_SCOPE":          "openid email",
		"OAUTH_AUDIENCE":       "https://api.example.com",
		"API_URL":              "https://api.example.com",
		"REDIS_ADDRESS":        "redis:6379",
		"REDIS_PASSWORD":       "redis-secret",
		"REDIS_DB":             "2",
		"REDIS_POOL_SIZE":      "20",
		"REDIS_MAX_RETRIES":    "5",
		"RATE_LIMIT_ENABLED":   "false",
		"RATE_LIMIT_DEFAULT":   "200",
		"RATE_LIMIT_WINDOW":    "120s",
		"SESSION_SECRET":       validSessionSecret,
		"TOKEN_ENCRYPTION_KEY": "12345678901234567890123456789012",
	}

	setTestEnvVars(envVars)
	defer clearTestEnvVars()

	config := Load()

	if config.Port != "9090" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "9090")
	}

	if config.LogLevel != "debug" {
		t.Errorf("Load() LogLevel = %v, want %v", config.LogLevel, "debug")
	}

	if config.BaseURL != "https://app.example.com" {
		t.Errorf("Load() BaseURL = %v, want %v", config.BaseURL, "https://app.example.com")
	}

	if !config.SecureCookies {
		t.Errorf("Load() SecureCookies = %v, want %v", config.SecureCookies, true)
	}

	if config.IssuerBaseURL != "https://id.example.com" {
		t.Errorf("Load() IssuerBaseURL = %v, want %v", config.IssuerBaseURL, "https://id.example.com")
	}

	if config.ClientID != "my-client" {
		t.Errorf("Load() ClientID = %v, want %v", config.ClientID, "my-client")
	}

	if config.ClientSecret != "my-secret" {
		t.Errorf("Load() ClientSecret = %v, want %v", config.ClientSecret, "my-secret")
	}

	if config.OAuthScope != "openid email" {
		t.Errorf("Load() OAuthScope = %v, want %v", config.OAuthScope, "openid email")
	}

	if config.OAuthAudience != "https://api.example.com" {
		t.Errorf("Load() OAuthAudience = %v, want %v", config.OAuthAudience, "https://api.example.com")
	}

	if config.APIURL != "https://api.example.com" {
		t.Errorf("Load() APIURL = %v, want %v", config.APIURL, "https://api.example.com")
	}

	if config.RedisAddress != "redis:6379" {
		t.Errorf("Load() RedisAddress = %v, want %v", config.RedisAddress, "redis:6379")
	}

	if config.RedisPassword != "redis-secret" {
		t.Errorf("Load() RedisPassword = %v, want %v", config.RedisPassword, "redis-secret")
	}

	if config.RedisDB != "2" {
		t.Errorf("Load() RedisDB = %v, want %v", config.RedisDB, "2")
	}

	if config.RedisPoolSize != "20" {
		t.Errorf("Load() RedisPoolSize = %v, want %v", config.RedisPoolSize, "20")
	}

	if config.RedisMaxRetries != "5" {
		t.Errorf("Load() RedisMaxRetries = %v, want %v", config.RedisMaxRetries, "5")
	}

	if config.RateLimitEnabled {
		t.Errorf("Load() RateLimitEnabled = %v, want %v", config.RateLimitEnabled, false)
	}

	if config.RateLimitDefault != "200" {
		t.Errorf("Load() RateLimitDefault = %v, want %v", config.RateLimitDefault, "200")
	}

	if config.RateLimitWindow != "120s" {
		t.Errorf("Load() RateLimitWindow = %v, want %v", config.RateLimitWindow, "120s")
	}

	if config.SessionSecret != validSessionSecret {
		t.Errorf("Load() SessionSecret = %v, want %v", config.SessionSecret, validSessionSecret)
	}

	if config.TokenEncryptionKey != "12345678901234567890123456789012" {
		t.Errorf("Load() TokenEncryptionKey = %v, want the configured key", config.TokenEncryptionKey)
	}
}

func TestRedirectURL(t *testing.T) {
	config := &Config{BaseURL: "https://app.example.com"}
	if got := config.RedirectURL(); got != "https://app.example.com/callback" {
		t.Errorf("RedirectURL() = %v, want %v", got, "https://app.example.com/callback")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		expected     string
	}{
		{
			name:         "environment variable exists",
			key:          "TEST_KEY_EXISTS",
			envValue:     "test-value",
			defaultValue: "default-value",
			expected:     "test-value",
		},
		{
			name:         "environment variable empty",
			key:          "TEST_KEY_EMPTY",
			envValue:     "",
			defaultValue: "default-value",
			expected:     "default-value",
		},
		{
			name:         "environment variable not set",
			key:          "TEST_KEY_NOT_SET",
			envValue:     "",
			defaultValue: "default-value",
			expected:     "default-value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			result := getEnv(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{
			name:         "true value",
			key:          "TEST_BOOL_TRUE",
			envValue:     "true",
			defaultValue: false,
			expected:     true,
		},
		{
			name:         "false value",
			key:          "TEST_BOOL_FALSE",
			envValue:     "false",
			defaultValue: true,
			expected:     false,
		},
		{
			name:         "1 value",
			key:          "TEST_BOOL_ONE",
			envValue:     "1",
			defaultValue: false,
			expected:     true,
		},
		{
			name:         "invalid value uses default",
			key:          "TEST_BOOL_INVALID",
			envValue:     "invalid",
			defaultValue: true,
			expected:     true,
		},
		{
			name:         "not set uses default",
			key:          "TEST_BOOL_NOT_SET",
			envValue:     "",
			defaultValue: true,
			expected:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			result := getBoolEnv(tt.key, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

// validTestConfig returns a config that passes validation; tests mutate
// single fields from here
func validTestConfig() *Config {
	return &Config{
		Port:            "3000",
		BaseURL:         "http://localhost:3000",
		IssuerBaseURL:   "https://id.example.com",
		ClientID:        "my-client",
		APIURL:          "http://localhost:8000",
		RedisAddress:    "localhost:6379",
		RedisDB:         "0",
		RedisPoolSize:   "10",
		RedisMaxRetries: "3",
		SessionSecret:   validSessionSecret,

		RateLimitEnabled: true,
		RateLimitDefault: "100",
		RateLimitWindow:  "60s",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantError     bool
		errorContains string
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "valid without redis",
			mutate:    func(c *Config) { c.RedisAddress = "" },
			wantError: false,
		},
		{
			name:          "missing issuer",
			mutate:        func(c *Config) { c.IssuerBaseURL = "" },
			wantError:     true,
			errorContains: "ISSUER_BASE_URL environment variable is required",
		},
		{
			name:          "relative issuer URL",
			mutate:        func(c *Config) { c.IssuerBaseURL = "id.example.com" },
			wantError:     true,
			errorContains: "ISSUER_BASE_URL must be an absolute URL",
		},
		{
			name:          "missing client ID",
			mutate:        func(c *Config) { c.ClientID = "" },
			wantError:     true,
			errorContains: "CLIENT_ID environment variable is required",
		},
		{
			name:          "missing session secret",
			mutate:        func(c *Config) { c.SessionSecret = "" },
			wantError:     true,
			errorContains: "SESSION_SECRET environment variable is required",
		},
		{
			name:          "session secret too short",
			mutate:        func(c *Config) { c.SessionSecret = "short" },
			wantError:     true,
			errorContains: "SESSION_SECRET must be at least 32 characters",
		},
		{
			name:          "invalid port",
			mutate:        func(c *Config) { c.Port = "invalid" },
			wantError:     true,
			errorContains: "PORT must be a valid port number",
		},
		{
			name:          "port out of range",
			mutate:        func(c *Config) { c.Port = "70000" },
			wantError:     true,
			errorContains: "PORT must be a valid port number",
		},
		{
			name:          "invalid base URL",
			mutate:        func(c *Config) { c.BaseURL = "not a url" },
			wantError:     true,
			errorContains: "BASE_URL must be an absolute URL",
		},
		{
			name:          "invalid API URL",
			mutate:        func(c *Config) { c.APIURL = "/relative" },
			wantError:     true,
			errorContains: "API_URL must be an absolute URL",
		},
		{
			name:          "invalid redis db",
			mutate:        func(c *Config) { c.RedisDB = "16" },
			wantError:     true,
			errorContains: "REDIS_DB must be a number between 0 and 15",
		},
		{
			name:          "invalid redis pool size",
			mutate:        func(c *Config) { c.RedisPoolSize = "0" },
			wantError:     true,
			errorContains: "REDIS_POOL_SIZE must be a positive number",
		},
		{
			name:          "invalid redis max retries",
			mutate:        func(c *Config) { c.RedisMaxRetries = "0" },
			wantError:     true,
			errorContains: "REDIS_MAX_RETRIES must be a positive number",
		},
		{
			name:          "invalid rate limit default",
			mutate:        func(c *Config) { c.RateLimitDefault = "0" },
			wantError:     true,
			errorContains: "RATE_LIMIT_DEFAULT must be a positive number",
		},
		{
			name:          "invalid rate limit window",
			mutate:        func(c *Config) { c.RateLimitWindow = "invalid" },
			wantError:     true,
			errorContains: "RATE_LIMIT_WINDOW must be a valid duration",
		},
		{
			name: "rate limiting disabled skips its validation",
			mutate: func(c *Config) {
				c.RateLimitEnabled = false
				c.RateLimitDefault = "invalid"
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validTestConfig()
			tt.mutate(config)

			err := config.Validate()

			if tt.wantError {
				if err == nil {
					t.Errorf("Config.Validate() expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Config.Validate() error = %v, should contain %q", err, tt.errorContains)
				}
			} else {
				if err != nil {
					t.Errorf("Config.Validate() unexpected error = %v", err)
				}
			}
		})
	}
}

// Helper functions for environment variable management
func setTestEnvVars(vars map[string]string) {
	for key, value := range vars {
		os.Setenv(key, value)
	}
}

func clearTestEnvVars() {
	testKeys := []string{
		"PORT", "LOG_LEVEL", "BASE_URL", "SECURE_COOKIES",
		"ISSUER_BASE_URL", "CLIENT_ID", "CLIENT_SECRET", "OAUTH_SCOPE", "OAUTH_AUDIENCE",
		"API_URL",
		"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE", "REDIS_MAX_RETRIES",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_DEFAULT", "RATE_LIMIT_WINDOW",
		"SESSION_SECRET", "TOKEN_ENCRYPTION_KEY",
		// Test environment variables
		"TEST_KEY_EXISTS", "TEST_KEY_EMPTY", "TEST_BOOL_TRUE", "TEST_BOOL_FALSE",
		"TEST_BOOL_ONE", "TEST_BOOL_INVALID",
	}

	for _, key := range testKeys {
		os.Unsetenv(key)
	}
}

// Benchmark tests
func BenchmarkLoad(b *testing.B) {
	clearTestEnvVars()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Load()
	}
}

func BenchmarkConfig_Validate(b *testing.B) {
	config := validTestConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = config.Validate()
	}
}
