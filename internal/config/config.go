package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost   string
	HTTPPort  string
	GRPCPort  string
	AppEnv    string
	LogLevel  string
	APIPrefix string

	// CORSOrigins — список разрешённых Origin; пустой список означает «любой».
	CORSOrigins []string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	LLM struct {
		BaseURL        string
		APIKey         string
		Model          string
		EmbeddingModel string
		Timeout        time.Duration
	}

	Knowledge struct {
		VectorDir      string
		FragmentsPath  string
		SuggestionTopK int
	}

	SimilarMaxResults int
	ReportMaxTokens   int

	Session struct {
		Backend  string // memory | redis
		RedisURL string
		IdleTTL  time.Duration
	}

	// Kafka — если Brokers пуст, события тикетов не публикуются.
	Kafka struct {
		Brokers     []string
		TopicTicket string
	}

	MetricsRefreshInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:     getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:    firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		GRPCPort:    getEnv("GRPC_PORT", "9098"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		APIPrefix:   getEnv("API_PREFIX", "/api/v1"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "field_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", "")
	cfg.LLM.APIKey = firstEnv("LLM_API_KEY", "OPENAI_API_KEY", "")
	cfg.LLM.Model = getEnv("LLM_MODEL", "gpt-4o-mini")
	cfg.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", "text-embedding-3-small")

	cfg.Knowledge.VectorDir = getEnv("VECTOR_DIR", "data/vectors")
	cfg.Knowledge.FragmentsPath = getEnv("MANUAL_FRAGMENTS_PATH", "data/manual_fragments.yaml")
	cfg.Session.Backend = getEnv("SESSION_BACKEND", "memory")
	cfg.Session.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.Kafka.TopicTicket = getEnv("KAFKA_TOPIC_TICKET", "field-service.tickets")

	var err error
	if cfg.LLM.Timeout, err = getDuration("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Session.IdleTTL, err = getDuration("SESSION_IDLE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MetricsRefreshInterval, err = getDuration("METRICS_REFRESH_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Knowledge.SuggestionTopK, err = getInt("SUGGESTION_TOP_K", 4); err != nil {
		return nil, err
	}
	if cfg.SimilarMaxResults, err = getInt("SIMILAR_MAX_RESULTS", 3); err != nil {
		return nil, err
	}
	if cfg.ReportMaxTokens, err = getInt("REPORT_MAX_TOKENS", 1500); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("config: LLM_TIMEOUT must be positive")
	}
	if c.MetricsRefreshInterval <= 0 {
		return errors.New("config: METRICS_REFRESH_INTERVAL must be positive")
	}
	if c.Knowledge.SuggestionTopK <= 0 || c.SimilarMaxResults <= 0 || c.ReportMaxTokens <= 0 {
		return errors.New("config: SUGGESTION_TOP_K, SIMILAR_MAX_RESULTS and REPORT_MAX_TOKENS must be positive")
	}
	if c.Session.IdleTTL < 0 {
		return errors.New("config: SESSION_IDLE_TTL must not be negative")
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("config: API_PREFIX must start with '/', got %q", c.APIPrefix)
	}
	return nil
}

// LLMEnabled — без ключа сервис работает, но генерация отвечает ошибкой.
func (c *Config) LLMEnabled() bool { return c.LLM.APIKey != "" }

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func (c *Config) GRPCAddr() string {
	return c.AppHost + ":" + c.GRPCPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// getDuration принимает "90s"/"5m" или целое число секунд.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
