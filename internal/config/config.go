package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=housing port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	LogLevel  string // debug | info | warn | error
	LogFormat string // json | console

	SchedulerEnabled  bool
	SchedulerSpec     string // cron spec for the automation due-check tick
	AutomationWorkers int

	// Written into the bulk payment request file
	ClaimRegistrationNumber string
	ClaimProviderABN        string

	LoginRatePerMinute int
}

// Load reads the environment, optionally seeded from a .env file in the
// working directory.
func Load() (*Config, error) {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:             getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		CORSOrigins:             getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		SchedulerEnabled:        getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerSpec:           getEnv("SCHEDULER_SPEC", "* * * * *"),
		AutomationWorkers:       getEnvInt("AUTOMATION_WORKERS", 4),
		ClaimRegistrationNumber: getEnv("CLAIM_REGISTRATION_NUMBER", ""),
		ClaimProviderABN:        getEnv("CLAIM_PROVIDER_ABN", ""),
		LoginRatePerMinute:      getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return &Error{Key: "JWT_SECRET", Msg: "is not set"}
	}
	if len(c.JWTSecret) < 32 {
		return &Error{Key: "JWT_SECRET", Msg: "must be at least 32 characters"}
	}
	if c.AutomationWorkers < 1 {
		return &Error{Key: "AUTOMATION_WORKERS", Msg: "must be at least 1"}
	}
	if c.LoginRatePerMinute < 1 {
		return &Error{Key: "LOGIN_RATE_PER_MINUTE", Msg: "must be at least 1"}
	}
	return nil
}

// WarnDefaults logs the settings that still carry development defaults.
func (c *Config) WarnDefaults(log *zap.Logger) {
	if c.DatabaseDSN == defaultDSN {
		log.Warn("DATABASE_DSN uses the development default, set your own Postgres connection for production")
	}
	if c.CORSOrigins == "http://localhost:3000" {
		log.Warn("CORS_ALLOWED_ORIGINS uses the development default, set your own domain for production")
	}
	if c.ClaimRegistrationNumber == "" {
		log.Warn("CLAIM_REGISTRATION_NUMBER is empty, claim exports will carry a blank registration number")
	}
}

// CORSOriginList splits the comma separated origin list.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	return "config: " + e.Key + " " + e.Msg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
