package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Chat   ChatConfig
	OCR    OCRConfig
	Vision VisionConfig
	BBox   BBoxConfig
	DB     DBConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// ChatConfig holds chat-completion backend configuration
type ChatConfig struct {
	APIURL     string
	APIKey     string
	AuthHeader string // "bearer" or "x-api-key"
	Model      string
	Provider   string
	Timeout    time.Duration
}

// OCRConfig holds the markdown OCR backend configuration
type OCRConfig struct {
	Model string
}

// VisionConfig holds the word-geometry OCR backend configuration
type VisionConfig struct {
	APIKey     string
	EnableBBox bool
}

// BBoxConfig holds item localization configuration
type BBoxConfig struct {
	Enable        bool
	ModelOverride string
}

// DBConfig holds persistence configuration
type DBConfig struct {
	Path string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Chat: ChatConfig{
			APIURL:     getEnv("CHAT_API_URL", "https://api.dedaluslabs.ai"),
			APIKey:     getEnv("CHAT_API_KEY", ""),
			AuthHeader: getEnv("CHAT_AUTH_HEADER", "bearer"),
			Model:      getEnv("CHAT_MODEL", ""),
			Provider:   getEnv("CHAT_PROVIDER", "dedalus"),
			Timeout:    getEnvAsDuration("CHAT_TIMEOUT", 45*time.Second),
		},
		OCR: OCRConfig{
			Model: getEnv("OCR_MODEL", "mistral-ocr-latest"),
		},
		Vision: VisionConfig{
			APIKey:     getEnv("GOOGLE_VISION_API_KEY", ""),
			EnableBBox: getEnvAsBool("GOOGLE_VISION_BBOX", true),
		},
		BBox: BBoxConfig{
			Enable:        getEnvAsBool("ITEM_BBOX", true),
			ModelOverride: getEnv("ITEM_BBOX_MODEL", ""),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", "receipts.db"),
		},
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Chat.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "CHAT_API_KEY is required", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
