package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fulfillment service
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Services ServicesConfig
	Approval ApprovalConfig
	Saga     SagaConfig
	OTel     OTelConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Version     string
}

// IsDevelopment reports whether the app runs in development mode
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL settings for the outcome audit store
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis settings for the single-flight guard
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda settings for fulfillment events
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	ClientID string
}

// ServicesConfig holds base URLs of the collaborator services
type ServicesConfig struct {
	PaymentServiceURL string
	BookingServiceURL string
	TicketServiceURL  string
	// CallTimeout bounds every collaborator call
	CallTimeout time.Duration
}

// ApprovalConfig tunes the simulated approval flow
type ApprovalConfig struct {
	OpenDelay       time.Duration
	ApprovalWindow  time.Duration
	ProcessingDelay time.Duration
	SuccessRate     float64
}

// SagaConfig tunes the fulfillment saga
type SagaConfig struct {
	// StepTimeout bounds each saga step
	StepTimeout time.Duration
	// RunTimeout bounds a whole run, approval included
	RunTimeout time.Duration
	// GuardTTL caps how long a booking stays locked if a release is lost
	GuardTTL time.Duration
	// TicketValidity is the issued ticket validity horizon
	TicketValidity time.Duration
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool
	ServiceName   string
	CollectorAddr string
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	// Missing .env is fine; env vars may still be set.
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := bindConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("APP_NAME", "fulfillment-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8084)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database (saga outcome audit)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "fulfillment_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 25)
	v.SetDefault("DATABASE_MIN_CONNS", 5)

	// Redis
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "fulfillment-service")

	// Collaborator services
	v.SetDefault("SERVICES_PAYMENT_URL", "http://localhost:8081")
	v.SetDefault("SERVICES_BOOKING_URL", "http://localhost:8082")
	v.SetDefault("SERVICES_TICKET_URL", "http://localhost:8083")
	v.SetDefault("SERVICES_CALL_TIMEOUT", "10s")

	// Approval simulator
	v.SetDefault("APPROVAL_OPEN_DELAY", "2s")
	v.SetDefault("APPROVAL_WINDOW", "10s")
	v.SetDefault("APPROVAL_PROCESSING_DELAY", "2s")
	v.SetDefault("APPROVAL_SUCCESS_RATE", 0.95)

	// Saga
	v.SetDefault("SAGA_STEP_TIMEOUT", "15s")
	v.SetDefault("SAGA_RUN_TIMEOUT", "2m")
	v.SetDefault("SAGA_GUARD_TTL", "5m")
	v.SetDefault("SAGA_TICKET_VALIDITY", "24h")

	// OTel
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "fulfillment-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
}

func bindConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Version = v.GetString("APP_VERSION")

	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt32("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt32("DATABASE_MIN_CONNS")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	cfg.Services.PaymentServiceURL = v.GetString("SERVICES_PAYMENT_URL")
	cfg.Services.BookingServiceURL = v.GetString("SERVICES_BOOKING_URL")
	cfg.Services.TicketServiceURL = v.GetString("SERVICES_TICKET_URL")
	cfg.Services.CallTimeout = v.GetDuration("SERVICES_CALL_TIMEOUT")

	cfg.Approval.OpenDelay = v.GetDuration("APPROVAL_OPEN_DELAY")
	cfg.Approval.ApprovalWindow = v.GetDuration("APPROVAL_WINDOW")
	cfg.Approval.ProcessingDelay = v.GetDuration("APPROVAL_PROCESSING_DELAY")
	cfg.Approval.SuccessRate = v.GetFloat64("APPROVAL_SUCCESS_RATE")

	cfg.Saga.StepTimeout = v.GetDuration("SAGA_STEP_TIMEOUT")
	cfg.Saga.RunTimeout = v.GetDuration("SAGA_RUN_TIMEOUT")
	cfg.Saga.GuardTTL = v.GetDuration("SAGA_GUARD_TTL")
	cfg.Saga.TicketValidity = v.GetDuration("SAGA_TICKET_VALIDITY")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")

	return cfg
}

// Validate checks that required settings are present and sane
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Services.PaymentServiceURL == "" {
		return fmt.Errorf("payment service url is required")
	}
	if c.Services.BookingServiceURL == "" {
		return fmt.Errorf("booking service url is required")
	}
	if c.Services.TicketServiceURL == "" {
		return fmt.Errorf("ticket service url is required")
	}
	if c.Approval.SuccessRate <= 0 || c.Approval.SuccessRate > 1 {
		return fmt.Errorf("approval success rate must be in (0, 1]: %f", c.Approval.SuccessRate)
	}
	if c.Saga.StepTimeout <= 0 {
		return fmt.Errorf("saga step timeout must be positive")
	}
	return nil
}
