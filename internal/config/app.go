package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"imagine-chat/internal/logger"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	AI       AIConfig
	Auth     AuthConfig
	Sync     SyncConfig
	Models   *ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string
	MaxOpenConns   int
	MaxIdleConns   int
}

// AIConfig holds the completion and image generation settings. The values are
// fixed per deployment; requests cannot override them.
type AIConfig struct {
	APIKey       string
	BaseURL      string
	TextModel    string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	ImageModel   string
	ImageSize    string
	ImageQuality string
	ImageStyle   string
	Timeout      time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte
	TokenExpiration time.Duration
}

// SyncConfig tunes the cache, pagination and cascade machinery
type SyncConfig struct {
	MessagePageSize         int
	MaxMessagePageSize      int
	ConversationPageSize    int
	MaxConversationPageSize int
	GalleryLimit            int
	CascadeSweepCron        string
	CascadeSweepBatch       int
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:            getEnvOrDefault("SERVER_PORT", "8080"),
		ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	config.Database = DatabaseConfig{
		Host:           getEnvOrDefault("DB_HOST", "postgres"),
		Port:           getEnvOrDefault("DB_PORT", "5432"),
		User:           getEnvOrDefault("DB_USER", "postgres"),
		Password:       getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:           getEnvOrDefault("DB_NAME", "imaginechat"),
		SSLMode:        getEnvOrDefault("DB_SSLMODE", "disable"),
		MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("OPENAI_API_KEY environment variable not set")
	}

	modelsConfigPath := getEnvOrDefault("MODELS_CONFIG_PATH", filepath.Join("config", "models.json"))
	modelsConfig, err := NewModelsConfig(modelsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models config: %w", err)
	}
	config.Models = modelsConfig

	config.AI = AIConfig{
		APIKey:       apiKey,
		BaseURL:      os.Getenv("OPENAI_BASE_URL"),
		TextModel:    getEnvOrDefault("AI_TEXT_MODEL", modelsConfig.GetDefaultModel()),
		MaxTokens:    getEnvAsInt("AI_MAX_TOKENS", 1000),
		Temperature:  getEnvAsFloat("AI_TEMPERATURE", 0.7),
		SystemPrompt: getEnvOrDefault("AI_SYSTEM_PROMPT", "You are a helpful assistant."),
		ImageModel:   getEnvOrDefault("AI_IMAGE_MODEL", modelsConfig.GetDefaultImageModel()),
		ImageSize:    getEnvOrDefault("AI_IMAGE_SIZE", "1024x1024"),
		ImageQuality: getEnvOrDefault("AI_IMAGE_QUALITY", "standard"),
		ImageStyle:   getEnvOrDefault("AI_IMAGE_STYLE", "vivid"),
		Timeout:      getEnvAsDuration("AI_TIMEOUT", 60*time.Second),
	}
	if !modelsConfig.IsValidModel(config.AI.TextModel) {
		logger.Log.WithField("model", config.AI.TextModel).Warn("AI_TEXT_MODEL is not listed in the models catalogue")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	config.Auth = AuthConfig{
		JWTSecret:       []byte(jwtSecret),
		TokenExpiration: getEnvAsDuration("JWT_TOKEN_EXPIRATION", 24*time.Hour),
	}

	config.Sync = SyncConfig{
		MessagePageSize:         getEnvAsInt("SYNC_MESSAGE_PAGE_SIZE", 30),
		MaxMessagePageSize:      getEnvAsInt("SYNC_MAX_MESSAGE_PAGE_SIZE", 100),
		ConversationPageSize:    getEnvAsInt("SYNC_CONVERSATION_PAGE_SIZE", 20),
		MaxConversationPageSize: getEnvAsInt("SYNC_MAX_CONVERSATION_PAGE_SIZE", 50),
		GalleryLimit:            getEnvAsInt("SYNC_GALLERY_LIMIT", 100),
		CascadeSweepCron:        getEnvOrDefault("SYNC_CASCADE_SWEEP_CRON", "*/5 * * * *"),
		CascadeSweepBatch:       getEnvAsInt("SYNC_CASCADE_SWEEP_BATCH", 100),
	}
	if config.Sync.MessagePageSize > config.Sync.MaxMessagePageSize {
		return nil, fmt.Errorf("SYNC_MESSAGE_PAGE_SIZE (%d) exceeds SYNC_MAX_MESSAGE_PAGE_SIZE (%d)",
			config.Sync.MessagePageSize, config.Sync.MaxMessagePageSize)
	}

	return config, nil
}

// DefaultSyncConfig returns the sync settings used when nothing is configured
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MessagePageSize:         30,
		MaxMessagePageSize:      100,
		ConversationPageSize:    20,
		MaxConversationPageSize: 50,
		GalleryLimit:            100,
		CascadeSweepCron:        "*/5 * * * *",
		CascadeSweepBatch:       100,
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}
