package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the report intake service
type Config struct {
	// Server configuration
	Port               string
	AllowedOrigins     []string
	MaxUploadBytes     int64
	RateLimitPerMinute int
	RequestTimeout     time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Summarization configuration
	LLMProvider      string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	GeminiAPIVersion string

	// Speech recognition configuration
	SpeechAPIKey     string
	SpeechBaseURL    string
	SpeechEncoding   string
	SpeechSampleRate int
	SpeechLanguage   string

	// Downstream validation agent
	ValidationAgentURL string
	HTTPTimeout        time.Duration

	// Report fan-out
	PublishReports bool
	RabbitMQ       RabbitMQConfig
}

// RabbitMQConfig holds the AMQP connection settings used for report fan-out
type RabbitMQConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
}

// GetAMQPURL builds the AMQP connection URL
func (r RabbitMQConfig) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s", r.User, r.Password, r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Server defaults
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     getStringSliceEnv("ALLOWED_ORIGINS", "*"),
		MaxUploadBytes:     getInt64Env("MAX_UPLOAD_BYTES", 32<<20),
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", 2*time.Minute),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		// Summarization defaults
		LLMProvider:      getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion: getEnv("GEMINI_API_VERSION", "v1beta"),

		// Speech defaults match what the mobile recorder produces
		SpeechAPIKey:     getEnv("SPEECH_API_KEY", ""),
		SpeechBaseURL:    getEnv("SPEECH_BASE_URL", "https://speech.googleapis.com"),
		SpeechEncoding:   getEnv("SPEECH_ENCODING", "WEBM_OPUS"),
		SpeechSampleRate: getIntEnv("SPEECH_SAMPLE_RATE", 48000),
		SpeechLanguage:   getEnv("SPEECH_LANGUAGE", "en-US"),

		ValidationAgentURL: getEnv("VALIDATION_AGENT_URL", ""),
		HTTPTimeout:        getDurationEnv("HTTP_TIMEOUT", 30*time.Second),

		PublishReports: getBoolEnv("PUBLISH_REPORTS", false),
		RabbitMQ: RabbitMQConfig{
			Host:       getEnv("AMQP_HOST", "localhost"),
			Port:       getEnv("AMQP_PORT", "5672"),
			User:       getEnv("AMQP_USER", "guest"),
			Password:   getEnv("AMQP_PASSWORD", "guest"),
			Exchange:   getEnv("AMQP_EXCHANGE", "cleanapp-reports"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "report.intake"),
		},
	}

	return config
}

// Validate reports the first missing or inconsistent setting
func (c *Config) Validate() error {
	if c.ValidationAgentURL == "" {
		return fmt.Errorf("VALIDATION_AGENT_URL environment variable is required")
	}
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
		}
		if c.SpeechAPIKey == "" {
			return fmt.Errorf("SPEECH_API_KEY environment variable is required")
		}
	case "stub":
		// The stub replaces both the summarizer and the recognizer.
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q, expected gemini or stub", c.LLMProvider)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be greater than 0")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be greater than 0")
	}
	return nil
}

// getStringSliceEnv gets a comma-separated string environment variable and returns it as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
