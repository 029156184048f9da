package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for a service
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Search        SearchConfig        `mapstructure:"search"`
	Consumer      ConsumerConfig      `mapstructure:"consumer"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Version       string              `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// DatabaseConfig points at the system of record. The search services only read from it.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"taskflow"`
	Schema          string        `mapstructure:"schema" envconfig:"DB_SCHEMA"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	KeyPrefix    string        `mapstructure:"key_prefix" envconfig:"REDIS_KEY_PREFIX" default:"taskflow"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	ConsumerGroup   string   `mapstructure:"consumer_group" envconfig:"KAFKA_CONSUMER_GROUP"`
	TopicPrefix     string   `mapstructure:"topic_prefix" envconfig:"KAFKA_TOPIC_PREFIX" default:"search-index"`
	BulkTopic       string   `mapstructure:"bulk_topic" envconfig:"KAFKA_BULK_TOPIC" default:"search-index.bulk"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic" envconfig:"KAFKA_DEAD_LETTER_TOPIC" default:"search-index.dlq"`
}

// ElasticsearchConfig holds search engine connection settings
type ElasticsearchConfig struct {
	Addresses     []string      `mapstructure:"addresses" envconfig:"ELASTICSEARCH_URLS" default:"http://localhost:9200"`
	Username      string        `mapstructure:"username" envconfig:"ELASTICSEARCH_USERNAME"`
	Password      string        `mapstructure:"password" envconfig:"ELASTICSEARCH_PASSWORD"`
	APIKey        string        `mapstructure:"api_key" envconfig:"ELASTICSEARCH_API_KEY"`
	IndexPrefix   string        `mapstructure:"index_prefix" envconfig:"ELASTICSEARCH_INDEX_PREFIX" default:"taskflow"`
	Timeout       time.Duration `mapstructure:"timeout" envconfig:"ELASTICSEARCH_TIMEOUT" default:"5s"`
	RefreshPolicy string        `mapstructure:"refresh_policy" envconfig:"ELASTICSEARCH_REFRESH_POLICY" default:"false"`
}

// SearchConfig holds query, history and reindex settings
type SearchConfig struct {
	DefaultPageSize  int           `mapstructure:"default_page_size" envconfig:"SEARCH_DEFAULT_PAGE_SIZE" default:"20"`
	MaxPageSize      int           `mapstructure:"max_page_size" envconfig:"SEARCH_MAX_PAGE_SIZE" default:"100"`
	AutocompleteSize int           `mapstructure:"autocomplete_size" envconfig:"SEARCH_AUTOCOMPLETE_SIZE" default:"10"`
	QuickSearchSize  int           `mapstructure:"quick_search_size" envconfig:"SEARCH_QUICK_SEARCH_SIZE" default:"5"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout" envconfig:"SEARCH_QUERY_TIMEOUT" default:"3s"`
	HistoryMaxSize   int           `mapstructure:"history_max_size" envconfig:"SEARCH_HISTORY_MAX_SIZE" default:"50"`
	HistoryTTL       time.Duration `mapstructure:"history_ttl" envconfig:"SEARCH_HISTORY_TTL" default:"720h"`
	PopularTTL       time.Duration `mapstructure:"popular_ttl" envconfig:"SEARCH_POPULAR_TTL" default:"168h"`
	ReindexSchedule  string        `mapstructure:"reindex_schedule" envconfig:"SEARCH_REINDEX_SCHEDULE" default:"0 3 * * *"`
	ReindexEnabled   bool          `mapstructure:"reindex_enabled" envconfig:"SEARCH_REINDEX_ENABLED" default:"true"`
}

// ConsumerConfig holds index event processing settings
type ConsumerConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" envconfig:"CONSUMER_MAX_ATTEMPTS" default:"3"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" envconfig:"CONSUMER_INITIAL_BACKOFF" default:"200ms"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" envconfig:"CONSUMER_MAX_BACKOFF" default:"5s"`
	DeadLetterEnabled bool          `mapstructure:"dead_letter_enabled" envconfig:"CONSUMER_DEAD_LETTER_ENABLED" default:"true"`
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"JWT_SECRET"`
}

const minJWTSecretLength = 16

// Well-known placeholder secrets that must never verify tokens.
var placeholderSecrets = map[string]bool{
	"super-secret-key": true,
	"secret":           true,
	"changeme":         true,
	"your-secret-key":  true,
}

// Validate rejects a missing, placeholder or short token secret. Only
// processes that verify tokens call it.
func (c *AuthConfig) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return c.validateSecret()
}

func (c *AuthConfig) validateSecret() error {
	if placeholderSecrets[strings.ToLower(c.JWTSecret)] {
		return fmt.Errorf("auth.jwt_secret is a placeholder value")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}
	return nil
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// Load loads configuration from files and environment
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("./configs/services/" + serviceName)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	// Service-specific environment variables
	if err := envconfig.Process(toEnvPrefix(serviceName), &cfg); err != nil {
		return nil, fmt.Errorf("failed to process service env vars: %w", err)
	}

	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = serviceName + "-consumer"
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return fmt.Errorf("search page sizes: default %d, max %d", c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Search.HistoryMaxSize <= 0 {
		return fmt.Errorf("search.history_max_size must be positive")
	}
	if c.Consumer.MaxAttempts <= 0 {
		return fmt.Errorf("consumer.max_attempts must be positive")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses must not be empty")
	}
	// The indexer verifies no tokens and may leave the secret unset.
	if c.Auth.JWTSecret != "" {
		if err := c.Auth.validateSecret(); err != nil {
			return err
		}
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// toEnvPrefix converts service name to environment variable prefix
func toEnvPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
