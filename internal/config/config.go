/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://192.168.195.6:8080)
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string
	MetricsBind   string

	// Calendar materializer configuration
	SchedulerLookahead time.Duration
	SchedulerInterval  time.Duration

	// Timetable layout
	PeriodTablePath string // optional YAML override for the period columns
	LunchStart      string // canonical lunch window, HH:MM
	LunchEnd        string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Event bus (optional NATS fan-out between instances)
	NATSURL string

	// Bootstrap admin account, consumed by the migrate command
	AdminEmail    string
	AdminPassword string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"GRADEHALL_ENV", "SMS_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"GRADEHALL_HTTP_BIND", "SMS_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"GRADEHALL_HTTP_PORT", "SMS_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"GRADEHALL_BASE_URL", "SMS_BASE_URL"}, ""),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"GRADEHALL_DB_BACKEND", "SMS_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"GRADEHALL_DB_DSN", "SMS_DB_DSN"}, ""),

		JWTSigningKey: getEnvAny([]string{"GRADEHALL_JWT_SIGNING_KEY", "SMS_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"GRADEHALL_METRICS_BIND", "SMS_METRICS_BIND"}, "127.0.0.1:9000"),

		// Calendar materializer configuration
		SchedulerLookahead: time.Duration(getEnvIntAny([]string{"GRADEHALL_SCHEDULER_LOOKAHEAD_DAYS", "SMS_SCHEDULER_LOOKAHEAD_DAYS"}, 14)) * 24 * time.Hour,
		SchedulerInterval:  time.Duration(getEnvIntAny([]string{"GRADEHALL_SCHEDULER_INTERVAL_MINUTES", "SMS_SCHEDULER_INTERVAL_MINUTES"}, 30)) * time.Minute,

		// Timetable layout
		PeriodTablePath: getEnvAny([]string{"GRADEHALL_PERIOD_TABLE", "SMS_PERIOD_TABLE"}, ""),
		LunchStart:      getEnvAny([]string{"GRADEHALL_LUNCH_START", "SMS_LUNCH_START"}, "11:40"),
		LunchEnd:        getEnvAny([]string{"GRADEHALL_LUNCH_END", "SMS_LUNCH_END"}, "12:20"),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"GRADEHALL_TRACING_ENABLED", "SMS_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GRADEHALL_OTLP_ENDPOINT", "SMS_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GRADEHALL_TRACING_SAMPLE_RATE", "SMS_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		LeaderElectionEnabled: getEnvBoolAny([]string{"GRADEHALL_LEADER_ELECTION_ENABLED", "SMS_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"GRADEHALL_REDIS_ADDR", "SMS_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"GRADEHALL_REDIS_PASSWORD", "SMS_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"GRADEHALL_REDIS_DB", "SMS_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"GRADEHALL_INSTANCE_ID", "SMS_INSTANCE_ID"}, ""),

		NATSURL: getEnvAny([]string{"GRADEHALL_NATS_URL", "SMS_NATS_URL"}, ""),

		AdminEmail:    getEnvAny([]string{"GRADEHALL_ADMIN_EMAIL", "SMS_ADMIN_EMAIL"}, "admin@school.local"),
		AdminPassword: getEnvAny([]string{"GRADEHALL_ADMIN_PASSWORD", "SMS_ADMIN_PASSWORD"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GRADEHALL_DB_DSN or SMS_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("GRADEHALL_JWT_SIGNING_KEY or SMS_JWT_SIGNING_KEY must be provided")
	}

	if !validClockTime(cfg.LunchStart) || !validClockTime(cfg.LunchEnd) {
		return nil, fmt.Errorf("lunch window must be HH:MM, got %q..%q", cfg.LunchStart, cfg.LunchEnd)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if strings.EqualFold(cfg.JWTSigningKey, "changeme") {
			return nil, fmt.Errorf("GRADEHALL_JWT_SIGNING_KEY must be set to a non-default value in production")
		}
		if cfg.AdminPassword != "" && strings.EqualFold(cfg.AdminPassword, "admin123") {
			return nil, fmt.Errorf("GRADEHALL_ADMIN_PASSWORD must be set to a non-default value in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use GRADEHALL_ENV (or SMS_ENV)",
		"JWT_SIGNING_KEY": "use GRADEHALL_JWT_SIGNING_KEY (or SMS_JWT_SIGNING_KEY)",
		"TRACING_ENABLED": "use GRADEHALL_TRACING_ENABLED (or SMS_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use GRADEHALL_OTLP_ENDPOINT (or SMS_OTLP_ENDPOINT)",
		"REDIS_ADDR":      "use GRADEHALL_REDIS_ADDR (or SMS_REDIS_ADDR)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func validClockTime(v string) bool {
	if len(v) != 5 || v[2] != ':' {
		return false
	}
	h, err := strconv.Atoi(v[:2])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(v[3:])
	return err == nil && m >= 0 && m <= 59
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
