package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Gemini   GeminiConfig
	Tryon    TryonConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	MaxRetries       int
	VisionModel      string
	TextModel        string
}

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	ImageModel string
}

// TryonConfig tunes the generate/evaluate/optimize loop.
type TryonConfig struct {
	MaxIterations   int
	AcceptScore     float64 // evaluation score at which an attempt is accepted
	PromoteScore    float64 // stricter score required to promote a revised prompt
	GenerateRetries int     // extra attempts after a transient generation failure
	GenerateTimeout time.Duration
	EvaluateTimeout time.Duration
	ClassifyTimeout time.Duration
	OptimizeTimeout time.Duration
}

type StorageConfig struct {
	PhotosDir string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxIterations, err := getEnvInt("TRYON_MAX_ITERATIONS", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_MAX_ITERATIONS: %w", err)
	}

	acceptScore, err := getEnvFloat("TRYON_ACCEPT_SCORE", 7.0)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_ACCEPT_SCORE: %w", err)
	}

	promoteScore, err := getEnvFloat("TRYON_PROMOTE_SCORE", 8.0)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_PROMOTE_SCORE: %w", err)
	}

	genRetries, err := getEnvInt("TRYON_GENERATE_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_GENERATE_RETRIES: %w", err)
	}

	genTimeout, err := getEnvDuration("TRYON_GENERATE_TIMEOUT", 3*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_GENERATE_TIMEOUT: %w", err)
	}

	evalTimeout, err := getEnvDuration("TRYON_EVALUATE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_EVALUATE_TIMEOUT: %w", err)
	}

	classifyTimeout, err := getEnvDuration("TRYON_CLASSIFY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_CLASSIFY_TIMEOUT: %w", err)
	}

	optimizeTimeout, err := getEnvDuration("TRYON_OPTIMIZE_TIMEOUT", 45*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TRYON_OPTIMIZE_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			VisionModel:      getEnv("LLM_VISION_MODEL", "gpt-4o"),
			TextModel:        getEnv("LLM_TEXT_MODEL", "gpt-4o-mini"),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			BaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			ImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		},
		Tryon: TryonConfig{
			MaxIterations:   maxIterations,
			AcceptScore:     acceptScore,
			PromoteScore:    promoteScore,
			GenerateRetries: genRetries,
			GenerateTimeout: genTimeout,
			EvaluateTimeout: evalTimeout,
			ClassifyTimeout: classifyTimeout,
			OptimizeTimeout: optimizeTimeout,
		},
		Storage: StorageConfig{
			PhotosDir: getEnv("PHOTOS_DIR", "data/photos"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.LLM.OpenAIKey == "" && c.LLM.AnthropicKey == "" {
		missing = append(missing, "OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Tryon.MaxIterations < 1 {
		return fmt.Errorf("TRYON_MAX_ITERATIONS must be at least 1")
	}
	if c.Tryon.PromoteScore < c.Tryon.AcceptScore {
		return fmt.Errorf("TRYON_PROMOTE_SCORE must not be below TRYON_ACCEPT_SCORE")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
