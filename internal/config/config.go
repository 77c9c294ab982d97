package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"retrycache/internal/shared"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Store struct {
		Driver     string `validate:"required,oneof=memory sqlite postgres redis"`
		SQLitePath string
		PGDSN      string
	}
	Cache struct {
		Driver    string `validate:"required,oneof=memory redis"`
		Namespace string `validate:"required,alphanum"`
	}
	Redis struct {
		URL      string
		Password string
		Prefix   string
	}
	// SettingsFile is an optional YAML seed for the settings record
	SettingsFile string
	Schedule     struct {
		Snapshot  string `validate:"required"`
		Heartbeat string `validate:"required"`
		Purge     string `validate:"required"`
		Reload    string `validate:"required"`
	}
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/retryd.log")

	c.Store.Driver = strings.ToLower(getenv("STORE_DRIVER", DriverMemory))
	c.Store.SQLitePath = getenv("SQLITE_PATH", "data/retryd.db")
	c.Store.PGDSN = os.Getenv("PG_DSN")
	c.Cache.Driver = strings.ToLower(getenv("CACHE_DRIVER", DriverMemory))
	c.Cache.Namespace = getenv("CACHE_NAMESPACE", "rc")
	c.Redis.URL = os.Getenv("REDIS_URL")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.Prefix = getenv("REDIS_PREFIX", "retrycache")
	c.SettingsFile = os.Getenv("SETTINGS_FILE")

	c.Schedule.Snapshot = getenv("SNAPSHOT_SCHEDULE", "@every 30s")
	c.Schedule.Heartbeat = getenv("HEARTBEAT_SCHEDULE", "@every 1m")
	c.Schedule.Purge = getenv("CACHE_PURGE_SCHEDULE", "@every 5m")
	c.Schedule.Reload = getenv("SETTINGS_RELOAD_SCHEDULE", "@every 1m")

	timeout, err := getDuration("SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	c.ShutdownTimeout = timeout

	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	if err := c.checkDrivers(); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	return c, nil
}

func (c Config) checkDrivers() error {
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		return errors.New("SQLITE_PATH required when STORE_DRIVER=sqlite")
	}
	if c.Store.Driver == DriverPostgres && c.Store.PGDSN == "" {
		return errors.New("PG_DSN required when STORE_DRIVER=postgres")
	}
	if c.NeedsRedis() && c.Redis.URL == "" {
		return errors.New("REDIS_URL required when a redis driver is selected")
	}
	return nil
}

// NeedsRedis reports whether any component is backed by Redis.
func (c Config) NeedsRedis() bool {
	return c.Store.Driver == DriverRedis || c.Cache.Driver == DriverRedis
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(k + ": expected a duration like 5s")
	}
	return time.Duration(secs) * time.Second, nil
}
