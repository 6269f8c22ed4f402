package config

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds         = []string{"auto", "lan", "loopback", "custom"}
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validConsoleStyles = []string{"pretty", "json"}
	validProviders     = []string{"google", "memory"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		add("server.bind", "must be one of %v, got %q", validBinds, cfg.Server.Bind)
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		add("server.customBindHost", "required when bind is custom")
	}
	if cfg.Server.FlowPath != "" && !strings.HasPrefix(cfg.Server.FlowPath, "/") {
		add("server.flowPath", "must start with /, got %q", cfg.Server.FlowPath)
	}
	if cfg.Server.TLS.Enabled && (cfg.Server.TLS.CertPath == "" || cfg.Server.TLS.KeyPath == "") {
		add("server.tls", "certPath and keyPath are required when TLS is enabled")
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		add("server.rateLimit.requestsPerSecond", "must not be negative")
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst < 1 {
		add("server.rateLimit.burst", "must be at least 1 when rate limiting is enabled")
	}

	// Calendar
	if !slices.Contains(validProviders, cfg.Calendar.Provider) {
		add("calendar.provider", "must be one of %v, got %q", validProviders, cfg.Calendar.Provider)
	}
	if cfg.Calendar.CalendarID == "" {
		add("calendar.calendarId", "calendar id is required")
	}
	if cfg.Calendar.TimeoutSeconds < 0 {
		add("calendar.timeoutSeconds", "must not be negative")
	}

	// Booking
	if cfg.Booking.Locale != "" {
		if _, err := language.Parse(cfg.Booking.Locale); err != nil {
			add("booking.locale", "not a language tag: %q", cfg.Booking.Locale)
		}
	}
	seen := make(map[string]bool, len(cfg.Booking.Services))
	for i, s := range cfg.Booking.Services {
		path := fmt.Sprintf("booking.services[%d]", i)
		if strings.TrimSpace(s.ID) == "" {
			add(path+".id", "service id is required")
			continue
		}
		if seen[s.ID] {
			add(path+".id", "duplicate service id %q", s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Title) == "" {
			add(path+".title", "service title is required")
		}
	}
	if err := cfg.Booking.Defaults.Validate(); err != nil {
		add("booking.defaults", "%v", err)
	}

	// Cache
	if cfg.Cache.TTLSeconds < 0 {
		add("cache.ttlSeconds", "must not be negative")
	}
	if cfg.Cache.RedisDB < 0 {
		add("cache.redisDb", "must not be negative")
	}

	// Logging
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
