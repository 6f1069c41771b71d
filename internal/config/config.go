package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Webhook verification handshake secret (hub.verify_token)
	WebhookVerifyToken string

	// Master secret for credential encryption at rest
	CredentialSecret string

	// JWT signing secret for the management API
	APIJWTSecret string

	// WhatsApp Cloud API
	GraphBaseURL string

	// AI generation
	AIBaseURL        string
	AITimeoutSeconds int
	AIChargeAttempts bool // charge AI quota per attempt instead of per success

	// Campaign scheduler
	SchedulerTickSeconds int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "zapgate",
		DBName:    "zapgate",
		DBSSLMode: "disable",

		// Redis defaults
		RedisHost: "localhost",
		RedisPort: 6379,

		GraphBaseURL:         "https://graph.facebook.com/v19.0",
		AIBaseURL:            "https://api.openai.com/v1",
		AITimeoutSeconds:     10,
		SchedulerTickSeconds: 5,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if rdb := os.Getenv("REDIS_DB"); rdb != "" {
		d, err := strconv.Atoi(rdb)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	cfg.WebhookVerifyToken = os.Getenv("WEBHOOK_VERIFY_TOKEN")
	if cfg.WebhookVerifyToken == "" {
		return nil, fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required")
	}

	cfg.CredentialSecret = os.Getenv("CREDENTIAL_SECRET")
	if cfg.CredentialSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required")
	}

	cfg.APIJWTSecret = os.Getenv("API_JWT_SECRET")
	if cfg.APIJWTSecret == "" {
		return nil, fmt.Errorf("API_JWT_SECRET is required")
	}

	if url := os.Getenv("GRAPH_BASE_URL"); url != "" {
		cfg.GraphBaseURL = url
	}

	if url := os.Getenv("AI_BASE_URL"); url != "" {
		cfg.AIBaseURL = url
	}

	if timeout := os.Getenv("AI_TIMEOUT_SECONDS"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid AI_TIMEOUT_SECONDS: %w", err)
		}
		cfg.AITimeoutSeconds = t
	}

	if v := os.Getenv("AI_CHARGE_ATTEMPTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AI_CHARGE_ATTEMPTS: %w", err)
		}
		cfg.AIChargeAttempts = b
	}

	if tick := os.Getenv("SCHEDULER_TICK_SECONDS"); tick != "" {
		t, err := strconv.Atoi(tick)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_TICK_SECONDS: %w", err)
		}
		cfg.SchedulerTickSeconds = t
	}

	return cfg, nil
}
