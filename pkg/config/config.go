package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const defaultTokenSecret = "crowdsense-entry-token-secret-change-me"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	EntryToken EntryTokenConfig `mapstructure:"entry_token"`
	OTel       OTelConfig       `mapstructure:"otel"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
	Timezone    string `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	SeedFile string `mapstructure:"seed_file"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// OccupancyTTL expires cached counters; zero keeps them
	OccupancyTTL time.Duration `mapstructure:"occupancy_ttl"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Brokers            []string `mapstructure:"brokers"`
	ClientID           string   `mapstructure:"client_id"`
	CapacityTopic      string   `mapstructure:"capacity_topic"`
	NotificationsTopic string   `mapstructure:"notifications_topic"`
}

// EntryTokenConfig holds signing settings for checkpoint entry tokens
type EntryTokenConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// AdmissionConfig holds capacity, pricing and escalation tunables
type AdmissionConfig struct {
	DefaultBasePrice       float64       `mapstructure:"default_base_price"`
	Currency               string        `mapstructure:"currency"`
	EscalationInterval     time.Duration `mapstructure:"escalation_interval"`
	EscalationStaleAfter   time.Duration `mapstructure:"escalation_stale_after"`
	EscalationBatchSize    int           `mapstructure:"escalation_batch_size"`
	RunEscalationInAPI     bool          `mapstructure:"run_escalation_in_api"`
	DispatchWorkers        int           `mapstructure:"dispatch_workers"`
	DispatchQueueSize      int           `mapstructure:"dispatch_queue_size"`
	CheckpointScanRate     float64       `mapstructure:"checkpoint_scan_rate"`
	CheckpointScanBurst    int           `mapstructure:"checkpoint_scan_burst"`
	GeoProofRadiusMeters   float64       `mapstructure:"geo_proof_radius_meters"`
	ReferenceRetryAttempts int           `mapstructure:"reference_retry_attempts"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "crowdsense-admission")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")
	v.SetDefault("APP_TIMEZONE", "Local")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("STORE_SEED_FILE", "")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "crowdsense")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("REDIS_OCCUPANCY_TTL", "48h")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "crowdsense-admission")
	v.SetDefault("KAFKA_CAPACITY_TOPIC", "capacity-updates")
	v.SetDefault("KAFKA_NOTIFICATIONS_TOPIC", "booking-notifications")

	// Entry token defaults
	v.SetDefault("ENTRY_TOKEN_SECRET", defaultTokenSecret)
	v.SetDefault("ENTRY_TOKEN_ISSUER", "crowdsense")
	v.SetDefault("ENTRY_TOKEN_TTL", "72h")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "crowdsense-admission")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Admission defaults
	v.SetDefault("ADMISSION_DEFAULT_BASE_PRICE", 100.0)
	v.SetDefault("ADMISSION_CURRENCY", "INR")
	v.SetDefault("ADMISSION_ESCALATION_INTERVAL", "1m")
	v.SetDefault("ADMISSION_ESCALATION_STALE_AFTER", "5m")
	v.SetDefault("ADMISSION_ESCALATION_BATCH_SIZE", 200)
	v.SetDefault("ADMISSION_RUN_ESCALATION_IN_API", true)
	v.SetDefault("ADMISSION_DISPATCH_WORKERS", 4)
	v.SetDefault("ADMISSION_DISPATCH_QUEUE_SIZE", 1024)
	v.SetDefault("ADMISSION_CHECKPOINT_SCAN_RATE", 20.0) // scans per second per checkpoint
	v.SetDefault("ADMISSION_CHECKPOINT_SCAN_BURST", 40)
	v.SetDefault("ADMISSION_GEO_PROOF_RADIUS_METERS", 100.0)
	v.SetDefault("ADMISSION_REFERENCE_RETRY_ATTEMPTS", 3)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")
	cfg.App.Timezone = v.GetString("APP_TIMEZONE")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	cfg.Store.Driver = strings.ToLower(v.GetString("STORE_DRIVER"))
	cfg.Store.SeedFile = v.GetString("STORE_SEED_FILE")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")
	cfg.Redis.OccupancyTTL = v.GetDuration("REDIS_OCCUPANCY_TTL")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.CapacityTopic = v.GetString("KAFKA_CAPACITY_TOPIC")
	cfg.Kafka.NotificationsTopic = v.GetString("KAFKA_NOTIFICATIONS_TOPIC")

	// Entry token
	cfg.EntryToken.Secret = v.GetString("ENTRY_TOKEN_SECRET")
	cfg.EntryToken.Issuer = v.GetString("ENTRY_TOKEN_ISSUER")
	cfg.EntryToken.TTL = v.GetDuration("ENTRY_TOKEN_TTL")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Admission
	cfg.Admission.DefaultBasePrice = v.GetFloat64("ADMISSION_DEFAULT_BASE_PRICE")
	cfg.Admission.Currency = v.GetString("ADMISSION_CURRENCY")
	cfg.Admission.EscalationInterval = v.GetDuration("ADMISSION_ESCALATION_INTERVAL")
	cfg.Admission.EscalationStaleAfter = v.GetDuration("ADMISSION_ESCALATION_STALE_AFTER")
	cfg.Admission.EscalationBatchSize = v.GetInt("ADMISSION_ESCALATION_BATCH_SIZE")
	cfg.Admission.RunEscalationInAPI = v.GetBool("ADMISSION_RUN_ESCALATION_IN_API")
	cfg.Admission.DispatchWorkers = v.GetInt("ADMISSION_DISPATCH_WORKERS")
	cfg.Admission.DispatchQueueSize = v.GetInt("ADMISSION_DISPATCH_QUEUE_SIZE")
	cfg.Admission.CheckpointScanRate = v.GetFloat64("ADMISSION_CHECKPOINT_SCAN_RATE")
	cfg.Admission.CheckpointScanBurst = v.GetInt("ADMISSION_CHECKPOINT_SCAN_BURST")
	cfg.Admission.GeoProofRadiusMeters = v.GetFloat64("ADMISSION_GEO_PROOF_RADIUS_METERS")
	cfg.Admission.ReferenceRetryAttempts = v.GetInt("ADMISSION_REFERENCE_RETRY_ATTEMPTS")

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if err := c.ValidateDatabase(); err != nil {
			return err
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.EntryToken.Secret == "" {
		return errors.New("ENTRY_TOKEN_SECRET is required")
	}
	if c.IsProduction() && c.EntryToken.Secret == defaultTokenSecret {
		return errors.New("entry token secret must be changed in production")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when kafka is enabled")
	}

	if c.Admission.DefaultBasePrice <= 0 {
		return fmt.Errorf("invalid default base price: %v", c.Admission.DefaultBasePrice)
	}
	if c.Admission.EscalationInterval <= 0 {
		return errors.New("ADMISSION_ESCALATION_INTERVAL must be positive")
	}
	if c.Admission.EscalationStaleAfter <= 0 {
		return errors.New("ADMISSION_ESCALATION_STALE_AFTER must be positive")
	}

	return nil
}

// ValidateDatabase validates database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return errors.New("DATABASE_DBNAME is required")
	}
	return nil
}

// Location returns the configured timezone used for calendar-day comparisons
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
