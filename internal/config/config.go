// Package config centralizes how DocChat reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by the *Backend and Scheduler settings.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	BlobDir   = "dir"
	BlobMinio = "minio"

	SchedulerPool  = "pool"
	SchedulerAsynq = "asynq"
)

// Config represents runtime configuration for the API server, the worker and
// the CLI.
type Config struct {
	Env     string
	Address string

	MaxFileSize   int64
	SigningSecret []byte
	SignedURLTTL  time.Duration
	CORSOrigins   []string

	ProcessingPool int
	QueueSize      int
	ProcessTimeout time.Duration
	Scheduler      string

	StoreBackend string
	DatabaseURL  string

	BlobBackend string
	BlobDir     string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	S3Bucket    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	SummaryModel  string
	ChatModel     string
	OpenAITimeout time.Duration
}

const (
	defaultAddress     = ":8000"
	defaultMaxFileSize = 25 << 20 // 25 MiB
	defaultSignedTTL   = 15 * time.Minute
	defaultWorkerCount = 4
	defaultQueueSize   = 64
	defaultProcessTTL  = 3 * time.Minute
	defaultOrigins     = "http://localhost:5173,http://127.0.0.1:5173"
	defaultBlobDir     = "./media"
	defaultBucket      = "docchat-documents"
	defaultSummaryLLM  = "gpt-3.5-turbo"
	defaultChatLLM     = "gpt-4o"
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAITTL   = 60 * time.Second
)

// Load reads a .env file when one exists, then environment variables, falling
// back to defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{
		Env:            readEnv("DOCCHAT_ENV", "development"),
		Address:        readEnv("DOCCHAT_ADDRESS", defaultAddress),
		MaxFileSize:    parseInt64("DOCCHAT_MAX_FILE_BYTES", defaultMaxFileSize),
		SigningSecret:  parseSecret("DOCCHAT_SIGNING_SECRET"),
		SignedURLTTL:   parseDuration("DOCCHAT_SIGNED_TTL", defaultSignedTTL),
		CORSOrigins:    parseList("DOCCHAT_CORS_ORIGINS", defaultOrigins),
		ProcessingPool: parseInt("DOCCHAT_WORKERS", defaultWorkerCount),
		QueueSize:      parseInt("DOCCHAT_QUEUE_SIZE", defaultQueueSize),
		ProcessTimeout: parseDuration("DOCCHAT_PROCESS_TIMEOUT", defaultProcessTTL),
		Scheduler:      strings.ToLower(readEnv("DOCCHAT_SCHEDULER", SchedulerPool)),
		StoreBackend:   strings.ToLower(readEnv("DOCCHAT_STORE", StoreMemory)),
		DatabaseURL:    readEnv("DOCCHAT_DATABASE_URL", ""),
		BlobBackend:    strings.ToLower(readEnv("DOCCHAT_BLOB", BlobDir)),
		BlobDir:        readEnv("DOCCHAT_BLOB_DIR", defaultBlobDir),
		S3Endpoint:     readEnv("DOCCHAT_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:    readEnv("DOCCHAT_S3_ACCESS_KEY", ""),
		S3SecretKey:    readEnv("DOCCHAT_S3_SECRET_KEY", ""),
		S3UseSSL:       parseBool("DOCCHAT_S3_USE_SSL", false),
		S3Region:       readEnv("DOCCHAT_S3_REGION", "us-east-1"),
		S3Bucket:       readEnv("DOCCHAT_S3_BUCKET", defaultBucket),
		RedisAddr:      readEnv("DOCCHAT_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  readEnv("DOCCHAT_REDIS_PASSWORD", ""),
		RedisDB:        parseInt("DOCCHAT_REDIS_DB", 0),
		OpenAIAPIKey:   readEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  readEnv("DOCCHAT_OPENAI_BASE_URL", defaultOpenAIURL),
		SummaryModel:   readEnv("DOCCHAT_SUMMARY_MODEL", defaultSummaryLLM),
		ChatModel:      readEnv("DOCCHAT_CHAT_MODEL", defaultChatLLM),
		OpenAITimeout:  parseDuration("DOCCHAT_OPENAI_TIMEOUT", defaultOpenAITTL),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTTL
	}
	if cfg.OpenAITimeout <= 0 {
		cfg.OpenAITimeout = defaultOpenAITTL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings each backend depends on.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DOCCHAT_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown DOCCHAT_STORE %q", c.StoreBackend)
	}
	switch c.BlobBackend {
	case BlobDir:
		if c.BlobDir == "" {
			return errors.New("DOCCHAT_BLOB_DIR must not be empty")
		}
	case BlobMinio:
		if c.S3Bucket == "" {
			return errors.New("DOCCHAT_S3_BUCKET is required for the minio blob store")
		}
	default:
		return fmt.Errorf("unknown DOCCHAT_BLOB %q", c.BlobBackend)
	}
	switch c.Scheduler {
	case SchedulerPool:
	case SchedulerAsynq:
		// Worker processes must see the same records the API wrote.
		if c.StoreBackend != StorePostgres {
			return errors.New("the asynq scheduler requires DOCCHAT_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown DOCCHAT_SCHEDULER %q", c.Scheduler)
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := make([]string, 0)
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	// Invalid input is ignored and the default returned.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(strconv.FormatInt(time.Now().UnixNano(), 16))
	}
	return buf
}
