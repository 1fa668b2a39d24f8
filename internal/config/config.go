package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all process-level configuration. It is loaded once in main
// and passed by reference to every component that needs it.
type Config struct {
	ProjectID           string `validate:"required"`
	DocumentBucket      string `validate:"required"`
	FirestoreCollection string `validate:"required"`
	VertexRegion        string `validate:"required"`
	ExtractionModel     string `validate:"required"`
	ServerAddr          string `validate:"required"`
	JWTSecret           string `validate:"required,min=16"`
	ExportBackendURL    string `validate:"omitempty,url"`

	MaxUploadBytes  int64         `validate:"gt=0"`
	RasterScale     float64       `validate:"gt=0"`
	ExtractTimeout  time.Duration `validate:"gt=0"`
	SignedURLExpiry time.Duration `validate:"gt=0"`
}

const (
	defaultMaxUploadBytes  = 250 << 20 // 250 MiB
	defaultRasterScale     = 2.0
	defaultExtractTimeout  = 10 * time.Minute
	defaultSignedURLExpiry = time.Hour
)

// Load reads configuration from the environment, consulting a local .env
// file when present. Missing required values fail fast.
func Load() (*Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		ProjectID:           GetEnv("PROJECT_ID", ""),
		DocumentBucket:      GetEnv("DOCUMENT_BUCKET", ""),
		FirestoreCollection: GetEnv("FIRESTORE_COLLECTION", "documents"),
		VertexRegion:        GetEnv("VERTEX_AI_REGION", "us-central1"),
		ExtractionModel:     GetEnv("EXTRACTION_MODEL", "gemini-1.5-pro"),
		ServerAddr:          GetEnv("SERVER_ADDR", ":8080"),
		JWTSecret:           GetEnv("JWT_SECRET", ""),
		ExportBackendURL:    GetEnv("EXPORT_BACKEND_URL", ""),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		RasterScale:         getEnvFloat("RASTER_SCALE", defaultRasterScale),
		ExtractTimeout:      getEnvDuration("EXTRACT_TIMEOUT", defaultExtractTimeout),
		SignedURLExpiry:     getEnvDuration("SIGNED_URL_EXPIRY", defaultSignedURLExpiry),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
