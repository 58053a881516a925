package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds every runtime setting of the server and dbtool.
type Config struct {
	Port            string        `yaml:"port" validate:"required,numeric"`
	StoreDriver     string        `yaml:"store_driver" validate:"oneof=sqlite postgres redis memory"`
	DBPath          string        `yaml:"db_path" validate:"required_if=StoreDriver sqlite"`
	DatabaseURL     string        `yaml:"database_url" validate:"required_if=StoreDriver postgres"`
	RedisAddr       string        `yaml:"redis_addr" validate:"required_if=StoreDriver redis"`
	SeedPath        string        `yaml:"seed_path"`
	JWTSecret       string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL        time.Duration `yaml:"token_ttl" validate:"gt=0"`
	OutboxSize      int           `yaml:"outbox_size" validate:"gte=1,lte=100000"`
	PingInterval    time.Duration `yaml:"ping_interval" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the settings used for local runs.
func Default() Config {
	return Config{
		Port:            "8080",
		StoreDriver:     DriverSQLite,
		DBPath:          "data/app.db",
		RedisAddr:       "localhost:6379",
		SeedPath:        "data/seeds/fleet.json",
		JWTSecret:       "dev-secret-change-me-please",
		TokenTTL:        12 * time.Hour,
		OutboxSize:      256,
		PingInterval:    25 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config: parse %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = Get("PORT", c.Port)
	c.StoreDriver = strings.ToLower(Get("STORE_DRIVER", c.StoreDriver))
	c.DBPath = Get("DB_PATH", c.DBPath)
	c.DatabaseURL = Get("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = Get("REDIS_ADDR", c.RedisAddr)
	c.SeedPath = Get("SEED_PATH", c.SeedPath)
	c.JWTSecret = Get("JWT_SECRET", c.JWTSecret)
	c.LogLevel = strings.ToLower(Get("LOG_LEVEL", c.LogLevel))

	var err error
	if c.TokenTTL, err = envDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.PingInterval, err = envDuration("PING_INTERVAL", c.PingInterval); err != nil {
		return err
	}
	if c.WriteTimeout, err = envDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}

	if v := Get("OUTBOX_SIZE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OUTBOX_SIZE=%q: %w", v, err)
		}
		c.OutboxSize = n
	}

	return nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := Get(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, v, err)
	}
	return d, nil
}

var validate = validator.New()

// Validate checks the settings and reports every invalid field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("validate config: %s", strings.Join(msgs, ", "))
}
