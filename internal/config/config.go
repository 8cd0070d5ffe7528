package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// PublicBaseURL is where the web client is served; checkout redirects back here.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:5173"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Practice
	CaptureDuration time.Duration `envconfig:"CAPTURE_DURATION" default:"30s"`
	CatalogPath     string        `envconfig:"CATALOG_PATH"`
	// AllowUsageReset enables the reset affordance; it is always off in production.
	AllowUsageReset bool `envconfig:"ALLOW_USAGE_RESET" default:"true"`

	// AI Services
	FeedbackProvider string `envconfig:"FEEDBACK_PROVIDER" default:"openai"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GCPProject       string `envconfig:"GCP_PROJECT"`
	GCPLocation      string `envconfig:"GCP_LOCATION" default:"asia-southeast1"`

	// Narration
	NarrationProvider string  `envconfig:"NARRATION_PROVIDER" default:"openai"`
	NarrationModel    string  `envconfig:"NARRATION_MODEL" default:"tts-1"`
	LocalVoiceBinary  string  `envconfig:"LOCAL_VOICE_BINARY" default:"espeak-ng"`
	LocalVoiceRate    float64 `envconfig:"LOCAL_VOICE_RATE" default:"0.9"`

	// Usage store: memory, redis or postgres
	UsageStore string `envconfig:"USAGE_STORE" default:"memory"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeTestSecretKey string `envconfig:"STRIPE_TEST_SECRET_KEY"`
	StripePriceID       string `envconfig:"STRIPE_PRICE_ID"`
	StripeTestPriceID   string `envconfig:"STRIPE_TEST_PRICE_ID"`
	StripeTestMode      bool   `envconfig:"STRIPE_TEST_MODE"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID,X-User-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	return &cfg, nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsageResetEnabled reports whether the usage reset affordance may be exposed.
func (c *Config) UsageResetEnabled() bool {
	return c.AllowUsageReset && !c.IsProduction()
}

// CheckoutTestMode reports whether checkout should use the Stripe test key and price.
func (c *Config) CheckoutTestMode() bool {
	return c.StripeTestMode || c.IsDevelopment()
}

// CaptureSeconds returns the capture budget in whole seconds.
func (c *Config) CaptureSeconds() int {
	secs := int(c.CaptureDuration / time.Second)
	if secs <= 0 {
		return 30
	}
	return secs
}
