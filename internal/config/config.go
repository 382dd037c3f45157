package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPPort        = "8080"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "visa-case-task-queue"
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "case-documents"
	defaultRemoteTimeout   = 30
	defaultRemoteMaxRetry  = 3
	defaultManifestTTL     = 300
)

const (
	ManifestSourceStatic = "static"
	ManifestSourceRemote = "remote"
)

type Config struct {
	HTTPPort           string
	Environment        string
	LogLevel           string
	PostgresDSN        string
	TemporalAddress    string
	TemporalNamespace  string
	TemporalTaskQueue  string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	RemoteEngineURL    string
	RemoteEngineAPIKey string
	RemoteTimeoutSec   int
	RemoteMaxRetry     int
	ManifestSource     string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ManifestCacheTTL   int
	WorkflowIDPrefix   string
	AllowedUploadBytes int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:           getenv("HTTP_PORT", defaultHTTPPort),
		Environment:        getenv("ENVIRONMENT", "development"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		TemporalAddress:    getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace:  getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue:  getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		MinioEndpoint:      getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),
		RemoteEngineURL:    os.Getenv("REMOTE_ENGINE_URL"),
		RemoteEngineAPIKey: os.Getenv("REMOTE_ENGINE_API_KEY"),
		RemoteTimeoutSec:   getenvInt("REMOTE_ENGINE_TIMEOUT_SEC", defaultRemoteTimeout),
		RemoteMaxRetry:     getenvInt("REMOTE_ENGINE_MAX_RETRY", defaultRemoteMaxRetry),
		ManifestSource:     getenv("MANIFEST_SOURCE", ManifestSourceStatic),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getenvInt("REDIS_DB", 0),
		ManifestCacheTTL:   getenvInt("MANIFEST_CACHE_TTL_SEC", defaultManifestTTL),
		WorkflowIDPrefix:   getenv("WORKFLOW_ID_PREFIX", "visa-case"),
		AllowedUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	switch cfg.ManifestSource {
	case ManifestSourceStatic:
	case ManifestSourceRemote:
		if cfg.RemoteEngineURL == "" {
			return Config{}, fmt.Errorf("REMOTE_ENGINE_URL is required when MANIFEST_SOURCE=remote")
		}
	default:
		return Config{}, fmt.Errorf("unsupported MANIFEST_SOURCE %q", cfg.ManifestSource)
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
