package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Charts    ChartsConfig    `mapstructure:"charts"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

// IsAdmin reports whether the Telegram user may use admin commands.
func (t TelegramConfig) IsAdmin(telegramID int64) bool {
	for _, id := range t.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres sqlite memory"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

type LLMConfig struct {
	DefaultProvider string        `mapstructure:"default_provider" validate:"oneof=openai openrouter ollama"`
	PromptsDir      string        `mapstructure:"prompts_dir"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	CallTimeout     time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	OpenAI          OpenAIConfig  `mapstructure:"openai"`
	OpenRouter      OpenAIConfig  `mapstructure:"openrouter"`
	Ollama          OllamaConfig  `mapstructure:"ollama"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url" validate:"omitempty,url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

type OllamaConfig struct {
	URL   string `mapstructure:"url" validate:"omitempty,url"`
	Model string `mapstructure:"model"`
}

type ChartsConfig struct {
	Dir      string `mapstructure:"dir" validate:"required"`
	FontPath string `mapstructure:"font_path"`
}

type SessionsConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
	// AllowOrigins defaults to the dashboard's own localhost origins.
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode" validate:"oneof=production development"`
}

type MetricsConfig struct {
	// Addr enables a /metrics listener in the bot process when set.
	Addr string `mapstructure:"addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	if strings.HasPrefix(dbURL, "sqlite:///") {
		path := strings.TrimPrefix(dbURL, "sqlite:///")
		if path == "" {
			return DatabaseConfig{}, errors.New("sqlite url has no path")
		}
		return DatabaseConfig{Driver: "sqlite", Path: path}, nil
	}

	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	case "memory":
		return DatabaseConfig{Driver: "memory"}, nil
	default:
		return DatabaseConfig{}, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port: %w", err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

// parseAdminIDs reads a comma separated list, skipping anything non-numeric.
func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "wheel_of_life.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("llm.default_provider", "ollama")
	v.SetDefault("llm.probe_timeout", 5*time.Second)
	v.SetDefault("llm.call_timeout", 120*time.Second)
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.openai.model", "gpt-3.5-turbo")
	v.SetDefault("llm.openai.max_tokens", 1500)
	v.SetDefault("llm.openai.temperature", 0.7)
	v.SetDefault("llm.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("llm.openrouter.max_tokens", 1500)
	v.SetDefault("llm.openrouter.temperature", 0.7)
	v.SetDefault("llm.ollama.url", "http://localhost:11434")
	v.SetDefault("llm.ollama.model", "qwen2.5:7b")

	v.SetDefault("charts.dir", "./wheels")
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.ttl", 24*time.Hour)
	v.SetDefault("dashboard.port", 3150)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "production")
}

// applyEnv maps the flat deployment variables onto the nested config.
func applyEnv(v *viper.Viper, config *Config) error {
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if ids := v.GetString("ADMIN_IDS"); ids != "" {
		config.Telegram.AdminIDs = parseAdminIDs(ids)
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &config.LLM.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &config.LLM.OpenAI.BaseURL},
		{"OPENAI_MODEL", &config.LLM.OpenAI.Model},
		{"OPENROUTER_API_KEY", &config.LLM.OpenRouter.APIKey},
		{"OPENROUTER_MODEL", &config.LLM.OpenRouter.Model},
		{"OLLAMA_URL", &config.LLM.Ollama.URL},
		{"OLLAMA_MODEL", &config.LLM.Ollama.Model},
		{"LLM_DEFAULT_PROVIDER", &config.LLM.DefaultProvider},
		{"PROMPTS_DIR", &config.LLM.PromptsDir},
		{"WHEELS_DIR", &config.Charts.Dir},
		{"LOG_LEVEL", &config.Log.Level},
		{"REDIS_ADDR", &config.Sessions.RedisAddr},
	}
	for _, s := range strs {
		if val := v.GetString(s.env); val != "" {
			*s.dst = val
		}
	}
	config.LLM.DefaultProvider = strings.ToLower(config.LLM.DefaultProvider)
	config.Log.Level = strings.ToLower(config.Log.Level)

	if config.Sessions.RedisAddr != "" && v.GetString("REDIS_ADDR") != "" {
		config.Sessions.Backend = "redis"
	}

	if port := v.GetString("ADMIN_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_PORT: %w", err)
		}
		config.Dashboard.Port = p
	}
	return nil
}

// LoadConfig reads path (a missing file is fine), then defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyEnv(v, &config); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}
