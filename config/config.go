package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	AWS        AWSConfig
	Tables     TablesConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OpenAI     OpenAIConfig
	Stripe     StripeConfig
	Email      EmailConfig
	Processing ProcessingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// AWSConfig holds AWS credentials, region and bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	EndpointURL          string // set for LocalStack; empty in AWS
	EmailBucket          string
	PresignExpireMinutes int
}

// TablesConfig holds DynamoDB table names.
type TablesConfig struct {
	Tenants  string
	Projects string
	Events   string
	Usage    string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds token validation settings for the identity directory.
type JWTConfig struct {
	Secret string
}

// OpenAIConfig holds API key and per-task model selection.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // override for testing; empty = api.openai.com
	ExtractionModel string
	EstimationModel string
}

// StripeConfig for the billing platform.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// EmailConfig for outbound replies.
type EmailConfig struct {
	Domain      string // inbound routing domain, e.g. myprojectr.com
	FromAddress string
	FromName    string
}

// ProcessingConfig holds inbound email processing limits.
type ProcessingConfig struct {
	MaxAttachmentSizeMB   int
	UsageRetentionDays    int
	EnableSenderAllowlist bool
	AllowedSenderDomains  []string
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			EndpointURL:          getEnv("AWS_ENDPOINT_URL", ""),
			EmailBucket:          getEnv("EMAIL_BUCKET", "project-emails-dev"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Tables: TablesConfig{
			Tenants:  getEnv("TENANTS_TABLE", "ProjectTracking-Tenants-dev"),
			Projects: getEnv("PROJECTS_TABLE", "ProjectTracking-Projects-dev"),
			Events:   getEnv("EVENTS_TABLE", "ProjectTracking-Events-dev"),
			Usage:    getEnv("API_USAGE_TABLE", "ProjectTracking-APIUsage-dev"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", ""),
			ExtractionModel: getEnv("OPENAI_MODEL_EXTRACTION", "gpt-4o-mini"),
			EstimationModel: getEnv("OPENAI_MODEL_ESTIMATION", "gpt-4o"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Email: EmailConfig{
			Domain:      getEnv("PROJECT_DOMAIN", "myprojectr.com"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "project@myprojectr.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Project Tracking Assistant"),
		},
		Processing: ProcessingConfig{
			MaxAttachmentSizeMB:   getEnvInt("MAX_ATTACHMENT_SIZE_MB", 25),
			UsageRetentionDays:    getEnvInt("USAGE_RETENTION_DAYS", 90),
			EnableSenderAllowlist: getEnvBool("ENABLE_EMAIL_ALLOWLIST", false),
			AllowedSenderDomains:  splitTrim(getEnv("ALLOWED_SENDER_DOMAINS", ""), ","),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
