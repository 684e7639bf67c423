package config

import (
	"fmt"
	"time"
)

// Config is assembled once at startup and passed to the components that
// need it. Nothing below reads the environment after Load returns.
type Config struct {
	Port    string
	GinMode string
	DataDir string

	LogLevel  string
	LogFormat string

	Storage  StorageConfig
	Database DatabaseConfig
	Limits   Limits
	AI       AIConfig

	// WorkspaceAutoReset returns finished sessions to idle after this long.
	// Zero leaves them until the user resets.
	WorkspaceAutoReset time.Duration
	SessionTTL         time.Duration

	Auth           AuthConfig
	SettingsSecret string
	DisableUI      bool

	// GeminiAPIKey seeds the stored key when none has been saved.
	GeminiAPIKey string
}

type AuthConfig struct {
	APIKey        string
	Username      string
	Password      string
	JWTSecret     string
	AllowInsecure bool
}

// Enabled reports whether any credential is configured. Without one the
// API is open.
func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || (a.Username != "" && a.Password != "")
}

type StorageConfig struct {
	Backend          string // "filesystem" or "s3"
	DataDir          string
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKeyID    string
	S3SecretKey      string
	S3ForcePathStyle bool
}

type DatabaseConfig struct {
	Type     string // "sqlite" or "postgres"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	DataDir  string
}

type Limits struct {
	MaxUploadBytes int64
	MaxPDFFiles    int
	MaxImageFiles  int
	UploadsPerMin  int
}

type AIConfig struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	RatePerMin   int
	BreakerTrips uint32
}

// Load reads the environment. It returns an error only for values that are
// present but unusable.
func Load() (*Config, error) {
	dataDir := Get("DATA_DIR", "/data")
	cfg := &Config{
		Port:      Get("PORT", "8000"),
		GinMode:   Get("GIN_MODE", "release"),
		DataDir:   dataDir,
		LogLevel:  Get("LOG_LEVEL", "info"),
		LogFormat: Get("LOG_FORMAT", "text"),
		Storage: StorageConfig{
			Backend:          Get("STORAGE_BACKEND", "filesystem"),
			DataDir:          dataDir,
			S3Endpoint:       Get("S3_ENDPOINT", ""),
			S3Region:         Get("S3_REGION", "us-east-1"),
			S3Bucket:         Get("S3_BUCKET", ""),
			S3AccessKeyID:    Get("S3_ACCESS_KEY_ID", ""),
			S3SecretKey:      Get("S3_SECRET_ACCESS_KEY", ""),
			S3ForcePathStyle: GetBool("S3_FORCE_PATH_STYLE", false),
		},
		Database: DatabaseConfig{
			Type:     Get("DB_TYPE", "sqlite"),
			Host:     Get("DB_HOST", "localhost"),
			Port:     GetInt("DB_PORT", 5432),
			User:     Get("DB_USER", "pdfdesk"),
			Password: Get("DB_PASSWORD", ""),
			DBName:   Get("DB_NAME", "pdfdesk"),
			SSLMode:  Get("DB_SSLMODE", "disable"),
			DataDir:  dataDir,
		},
		Limits: Limits{
			MaxUploadBytes: int64(GetInt("MAX_UPLOAD_MB", 100)) << 20,
			MaxPDFFiles:    GetInt("MAX_PDF_FILES", 20),
			MaxImageFiles:  GetInt("MAX_IMAGE_FILES", 50),
			UploadsPerMin:  GetInt("UPLOADS_PER_MINUTE", 30),
		},
		AI: AIConfig{
			BaseURL:      Get("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:        Get("GEMINI_MODEL", "gemini-1.5-flash"),
			Timeout:      GetDuration("GEMINI_TIMEOUT", 120*time.Second),
			RatePerMin:   GetInt("AI_RATE_PER_MINUTE", 20),
			BreakerTrips: uint32(GetInt("AI_BREAKER_FAILURES", 5)),
		},
		WorkspaceAutoReset: GetDuration("WORKSPACE_AUTO_RESET", 0),
		SessionTTL:         GetDuration("SESSION_TTL", time.Hour),
		Auth: AuthConfig{
			APIKey:        Get("API_KEY", ""),
			Username:      Get("AUTH_USERNAME", ""),
			Password:      Get("AUTH_PASSWORD", ""),
			JWTSecret:     Get("JWT_SECRET", ""),
			AllowInsecure: GetBool("ALLOW_INSECURE", false),
		},
		SettingsSecret: Get("SETTINGS_SECRET", ""),
		GeminiAPIKey:   Get("GEMINI_API_KEY", ""),
		DisableUI:      GetBool("DISABLE_UI", false),
	}

	switch cfg.Storage.Backend {
	case "filesystem":
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for S3 backend")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (valid options: filesystem, s3)", cfg.Storage.Backend)
	}
	switch cfg.Database.Type {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if cfg.Limits.MaxPDFFiles <= 0 || cfg.Limits.MaxImageFiles <= 0 {
		return nil, fmt.Errorf("MAX_PDF_FILES and MAX_IMAGE_FILES must be positive")
	}
	return cfg, nil
}
