package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Model    ModelConfig    `mapstructure:"model"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	LocalLLM LocalLLMConfig `mapstructure:"local_llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ScanTimeout     time.Duration `mapstructure:"scan_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	UploadDir       string        `mapstructure:"upload_dir"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// ModelConfig selects the model provider: "gemini" or "local".
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type LocalLLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig configures the optional hot cache in front of the store.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig configures event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional
// config.{yaml,json,toml} in the working directory and the environment.
// Environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"gemini.api_key":         "GOOGLE_AI_API_KEY",
		"gemini.model":           "GEMINI_MODEL",
		"model.provider":         "MODEL_PROVIDER",
		"local_llm.base_url":     "LOCAL_LLM_URL",
		"local_llm.model":        "LOCAL_LLM_MODEL",
		"database.url":           "DATABASE_URL",
		"redis.enabled":          "REDIS_ENABLED",
		"redis.addr":             "REDIS_ADDR",
		"redis.password":         "REDIS_PASSWORD",
		"kafka.brokers":          "KAFKA_BROKERS",
		"kafka.topic":            "KAFKA_TOPIC",
		"server.port":            "PORT",
		"server.upload_dir":      "UPLOAD_DIR",
		"server.allowed_origins": "ALLOWED_ORIGINS",
		"log.level":              "LOG_LEVEL",
		"log.format":             "LOG_FORMAT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.scan_timeout", 45*time.Second)
	v.SetDefault("server.upload_dir", "./uploads")
	v.SetDefault("server.max_upload_bytes", 20<<20)

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("local_llm.base_url", "http://localhost:1234")
	v.SetDefault("local_llm.model", "gemma-3-12b-it")
	v.SetDefault("local_llm.timeout", 2*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("kafka.topic", "recipe-events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// splitList expands comma-separated entries, which is how lists arrive from
// the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	switch cfg.Model.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return errors.New("GOOGLE_AI_API_KEY is required when model.provider is gemini")
		}
	case "local":
		if cfg.LocalLLM.BaseURL == "" {
			return errors.New("local_llm.base_url is required when model.provider is local")
		}
	default:
		return fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.ScanTimeout <= 0 {
		return errors.New("server.scan_timeout must be positive")
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

// MaskAPIKey hides all but the first and last four characters of a key.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
