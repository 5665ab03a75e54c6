package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "XTSBank"
	defaultAppEnv          = "development"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultOpeningBalance  = 100
	defaultNotifyChannel   = "bank:transfers"
	defaultShutdownDelay   = 10 * time.Second
	openingBalanceEnvVar   = "OPENING_BALANCE"
	monitorSecondsEnvVar   = "MONITOR_TIMEOUT_SECONDS"
	monitorDurationEnvVar  = "MONITOR_TIMEOUT"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	LogLevel       string
	LogFormat      string
	OpeningBalance int64
	RedisURL       string
	NotifyChannel  string
	// MonitorTimeout bounds console monitor sessions; zero means unbounded.
	MonitorTimeout time.Duration
	ShutdownPeriod time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		OpeningBalance: defaultOpeningBalance,
		RedisURL:       os.Getenv("REDIS_URL"),
		NotifyChannel:  getEnv("NOTIFY_CHANNEL", defaultNotifyChannel),
		ShutdownPeriod: defaultShutdownDelay,
	}

	if v := os.Getenv(openingBalanceEnvVar); v != "" {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", openingBalanceEnvVar, err)
		}
		if amount < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", openingBalanceEnvVar)
		}
		cfg.OpeningBalance = amount
	}

	var err error
	if cfg.MonitorTimeout, err = durationFromEnv(monitorSecondsEnvVar, monitorDurationEnvVar, 0); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NotificationsEnabled reports whether transfer notifications go to Redis.
func (c Config) NotificationsEnabled() bool {
	return c.RedisURL != ""
}

// durationFromEnv prefers a whole number of seconds and falls back to a Go
// duration string.
func durationFromEnv(secondsVar, durationVar string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationVar, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
