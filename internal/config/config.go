// Package config loads scheduler settings from the process environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// QueueTransport selects which Queue Client realisation is used for the
// scheduler queue and the two worker queues.
type QueueTransport string

const (
	TransportRedis QueueTransport = "redis"
	TransportHTTP  QueueTransport = "http"
)

// Config holds every environment-derived setting the scheduler core needs.
type Config struct {
	APIEndpoint string
	Username    string
	Password    string

	SchedulerThreads  int
	QueueBackoffLimit int

	QueueTransport QueueTransport
	RedisAddr      string
}

// Load reads Config from the environment, applying the defaults from §6.
// Returns the config and a list of warnings to be logged by the caller
// (the logger isn't initialized yet when config is loaded).
func Load() (*Config, []string) {
	var warnings []string

	endpoint := getEnv("SMTLAB_API_ENDPOINT", "http://127.0.0.1:5000/")
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	threads, warn := getEnvAsIntWithWarning("SMTLAB_SCHEDULER_THREADS", 1)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	backoffLimit, warn := getEnvAsIntWithWarning("QUEUE_BACKOFF_LIMIT", 8)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	transport := QueueTransport(strings.ToLower(getEnv("SMTLAB_QUEUE_TRANSPORT", string(TransportRedis))))
	if transport != TransportRedis && transport != TransportHTTP {
		warnings = append(warnings, "unrecognised SMTLAB_QUEUE_TRANSPORT, defaulting to redis")
		transport = TransportRedis
	}

	cfg := &Config{
		APIEndpoint:       endpoint,
		Username:          getEnv("SMTLAB_USERNAME", ""),
		Password:          getEnv("SMTLAB_PASSWORD", ""),
		SchedulerThreads:  threads,
		QueueBackoffLimit: backoffLimit,
		QueueTransport:    transport,
		RedisAddr:         getEnv("SMTLAB_REDIS_ADDR", "127.0.0.1:6379"),
	}

	return cfg, warnings
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Getenv exposes the same fallback lookup for settings outside the
// core Config struct (e.g. cmd/scheduler's metrics listen address).
func Getenv(key, fallback string) string {
	return getEnv(key, fallback)
}

// getEnvAsIntWithWarning parses an int env var, falling back (with a
// warning string) when the variable is set but not a valid integer.
func getEnvAsIntWithWarning(key string, fallback int) (int, string) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, ""
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, key + "=" + raw + " is not an integer, falling back to " + strconv.Itoa(fallback)
	}
	return value, ""
}
