package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Translation providers understood by the translate package
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all configuration for the interpreter gateway
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"`

	// Translation configuration. Credentials are optional: a missing key is
	// reported as a configuration status at runtime instead of failing startup.
	TranslationProvider string `envconfig:"TRANSLATION_PROVIDER" default:"gemini"` // gemini, openai
	TranslationModel    string `envconfig:"TRANSLATION_MODEL" default:"gemini-2.0-flash"`
	TargetLanguage      string `envconfig:"TARGET_LANGUAGE" default:"Spanish"` // Language name embedded in the prompt
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY" default:""`
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL" default:""`

	// Speech synthesis configuration (Gemini TTS, audio response modality)
	SynthesisModel      string `envconfig:"SYNTHESIS_MODEL" default:"gemini-2.5-flash-preview-tts"`
	SynthesisVoice      string `envconfig:"SYNTHESIS_VOICE" default:"Kore"`
	SynthesisSampleRate int    `envconfig:"SYNTHESIS_SAMPLE_RATE" default:"24000"`

	// Deepgram live recognition (server-side microphone streaming)
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel      string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage   string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramSampleRate int    `envconfig:"DEEPGRAM_SAMPLE_RATE" default:"16000"`

	// Meeting recordings retrieval
	RecordingsAPIURL   string `envconfig:"RECORDINGS_API_URL" default:"https://api.zoom.us/v2"`
	RecordingsRelayURL string `envconfig:"RECORDINGS_RELAY_URL" default:""` // Prefix; the escaped target URL is appended
	RecordingsToken    string `envconfig:"RECORDINGS_TOKEN" default:""`

	// Pipeline configuration
	ImportStaggerMs int `envconfig:"IMPORT_STAGGER_MS" default:"100"` // Delay between imported sentence submissions
	QueueMaxPending int `envconfig:"QUEUE_MAX_PENDING" default:"0"`   // 0 = unbounded
	StageTimeout    int `envconfig:"STAGE_TIMEOUT" default:"30"`      // seconds per translate/synthesize call

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated and ranged fields
func (c *Config) Validate() error {
	switch c.TranslationProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("TRANSLATION_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.TranslationProvider)
	}
	if c.SynthesisSampleRate <= 0 {
		return fmt.Errorf("SYNTHESIS_SAMPLE_RATE must be positive, got %d", c.SynthesisSampleRate)
	}
	if c.QueueMaxPending < 0 {
		return fmt.Errorf("QUEUE_MAX_PENDING must not be negative, got %d", c.QueueMaxPending)
	}
	if c.ImportStaggerMs < 0 {
		return fmt.Errorf("IMPORT_STAGGER_MS must not be negative, got %d", c.ImportStaggerMs)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	return nil
}

// TranslationAPIKey returns the credential for the selected translation provider
func (c *Config) TranslationAPIKey() string {
	if c.TranslationProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// ImportStagger returns the delay between imported segment submissions
func (c *Config) ImportStagger() time.Duration {
	return time.Duration(c.ImportStaggerMs) * time.Millisecond
}

// StageTimeoutDuration returns the per-call timeout for external stages
func (c *Config) StageTimeoutDuration() time.Duration {
	return time.Duration(c.StageTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
