package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	QueueProvider string // nats | rabbit
	NatsHost      string
	NatsPort      string
	RabbitUser    string
	RabbitPass    string
	RabbitHost    string
	RabbitPort    string
	MaxDeliver    int

	ApiPort    string
	ApiEnabled string

	RateAlgorithm string // token_bucket | sliding_window
	RateQPS       int
	RateBurst     int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration

	// RollbackPolicy decides whether a compensated buyer may attempt the
	// same good again ("release") or stays blocked ("retain").
	RollbackPolicy string
}

// New loads and validates configuration from environment variables.
// The HTTP API is optional: if FLASHSALE_API_ENABLED != "true", ApiAddr()
// returns an error and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("FLASHSALE_POSTGRES_USER"),
		DBPass:  os.Getenv("FLASHSALE_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("FLASHSALE_POSTGRES_HOST"),
		DBPort:  os.Getenv("FLASHSALE_POSTGRES_PORT"),
		DBName:  os.Getenv("FLASHSALE_POSTGRES_DB"),
		SSLMode: os.Getenv("FLASHSALE_POSTGRES_SSLMODE"),

		RedisHost: os.Getenv("FLASHSALE_REDIS_HOST"),
		RedisPort: os.Getenv("FLASHSALE_REDIS_PORT"),

		QueueProvider: os.Getenv("FLASHSALE_QUEUE_PROVIDER"),
		NatsHost:      os.Getenv("FLASHSALE_NATS_HOST"),
		NatsPort:      os.Getenv("FLASHSALE_NATS_PORT"),
		RabbitUser:    os.Getenv("FLASHSALE_RABBIT_USER"),
		RabbitPass:    os.Getenv("FLASHSALE_RABBIT_PASSWORD"),
		RabbitHost:    os.Getenv("FLASHSALE_RABBIT_HOST"),
		RabbitPort:    os.Getenv("FLASHSALE_RABBIT_PORT"),
		MaxDeliver:    getEnvInt("FLASHSALE_QUEUE_MAX_DELIVER", 3),

		ApiPort:    os.Getenv("FLASHSALE_API_PORT"),
		ApiEnabled: os.Getenv("FLASHSALE_API_ENABLED"),

		RateAlgorithm: getEnvDefault("FLASHSALE_RATE_ALGORITHM", "token_bucket"),
		RateQPS:       getEnvInt("FLASHSALE_RATE_QPS", 1000),
		RateBurst:     getEnvInt("FLASHSALE_RATE_BURST", 0),

		BreakerFailureThreshold: getEnvInt("FLASHSALE_BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: getEnvInt("FLASHSALE_BREAKER_SUCCESS_THRESHOLD", 3),
		BreakerOpenTimeout:      time.Duration(getEnvInt("FLASHSALE_BREAKER_OPEN_TIMEOUT_MS", 10000)) * time.Millisecond,

		RollbackPolicy: os.Getenv("FLASHSALE_ROLLBACK_POLICY"),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: FLASHSALE_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: FLASHSALE_REDIS_HOST/PORT")
	}

	// Required: queue provider
	if cfg.QueueProvider == "" {
		return nil, fmt.Errorf("missing required env: FLASHSALE_QUEUE_PROVIDER (nats|rabbit)")
	}
	switch cfg.QueueProvider {
	case "nats":
		if cfg.NatsHost == "" || cfg.NatsPort == "" {
			return nil, fmt.Errorf("missing required env for nats queue: FLASHSALE_NATS_HOST/PORT")
		}
	case "rabbit":
		if cfg.RabbitHost == "" || cfg.RabbitPort == "" {
			return nil, fmt.Errorf("missing required env for rabbit queue: FLASHSALE_RABBIT_HOST/PORT")
		}
	default:
		return nil, fmt.Errorf("invalid queue provider %q, must be 'nats' or 'rabbit'", cfg.QueueProvider)
	}

	if cfg.RateAlgorithm != "token_bucket" && cfg.RateAlgorithm != "sliding_window" {
		return nil, fmt.Errorf("invalid rate algorithm %q, must be 'token_bucket' or 'sliding_window'", cfg.RateAlgorithm)
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) RabbitURL() string {
	user := c.RabbitUser
	if user == "" {
		user = "guest"
	}
	pass := c.RabbitPass
	if pass == "" {
		pass = "guest"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, c.RabbitHost, c.RabbitPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if FLASHSALE_API_ENABLED != "true" — callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("FLASHSALE_API_PORT is required when FLASHSALE_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (FLASHSALE_API_ENABLED != true)")
}

func getEnvDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}
