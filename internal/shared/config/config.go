package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds application configuration.
type Config struct {
	Port            string   `yaml:"port" env:"PORT" env-default:"8080"`
	Env             string   `yaml:"env" env:"ENV" env-default:"dev"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins" env:"CORS_ALLOW_ORIGINS" env-default:"http://localhost:5173" env-separator:","`
	DatabaseURL     string   `yaml:"database_url" env:"DATABASE_URL"`

	ObjectStoreType string `yaml:"object_store" env:"OBJECT_STORE" env-default:"local"`
	LocalStoreDir   string `yaml:"local_store_dir" env:"LOCAL_STORE_DIR" env-default:"./data"`
	AWSRegion       string `yaml:"aws_region" env:"AWS_REGION" env-default:"us-east-1"`
	S3Bucket        string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Prefix        string `yaml:"s3_prefix" env:"S3_PREFIX" env-default:"uploads/"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id" env:"SSE_KMS_KEY_ID"`

	SQSQueueURL       string `yaml:"sqs_queue_url" env:"SQS_QUEUE_URL"`
	WorkerConcurrency int    `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY" env-default:"4"`
	VisibilitySeconds int    `yaml:"sqs_visibility_seconds" env:"SQS_VISIBILITY_TIMEOUT_SECONDS" env-default:"300"`

	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`

	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string        `yaml:"jwt_issuer" env:"JWT_ISSUER" env-default:"supercv"`
	JWTTTL    time.Duration `yaml:"jwt_ttl" env:"JWT_TTL" env-default:"24h"`

	CreditsTimezone string        `yaml:"credits_timezone" env:"CREDITS_TIMEZONE" env-default:"UTC"`
	PollWindow      time.Duration `yaml:"poll_window" env:"POLL_WINDOW" env-default:"1s"`

	AIEngineURL     string        `yaml:"ai_engine_url" env:"AI_ENGINE_URL" env-default:"http://localhost:8000"`
	AIEngineTimeout time.Duration `yaml:"ai_engine_timeout" env:"AI_ENGINE_TIMEOUT" env-default:"120s"`

	PaymentWebhookSecret string `yaml:"payment_webhook_secret" env:"PAYMENT_WEBHOOK_SECRET"`
	AuthSyncSecret       string `yaml:"auth_sync_secret" env:"AUTH_SYNC_SECRET"`

	GoogleClientID     string `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `yaml:"google_redirect_url" env:"GOOGLE_REDIRECT_URL"`
	UIRedirectURL      string `yaml:"ui_redirect_url" env:"UI_REDIRECT_URL"`

	OTelEnabled bool   `yaml:"otel_enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:"supercv-api"`
}

// Load reads configuration from an optional YAML file and environment variables.
// Priority: ENV > YAML > env-default tags. The YAML path comes from CONFIG_PATH.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read env: %w", err)
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.CORSAllowOrigin = trimAll(cfg.CORSAllowOrigin)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run in the selected environment.
func (c Config) Validate() error {
	if c.Env == "production" {
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if strings.TrimSpace(c.AuthSyncSecret) == "" {
			return fmt.Errorf("AUTH_SYNC_SECRET is required in production")
		}
	}
	if c.ObjectStoreType == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
	}
	if _, err := time.LoadLocation(c.CreditsTimezone); err != nil {
		return fmt.Errorf("CREDITS_TIMEZONE: %w", err)
	}
	return nil
}

// IsDevLike reports whether in-memory fallbacks are acceptable.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, p := range in {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
