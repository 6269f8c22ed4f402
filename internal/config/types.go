package config

import "github.com/soyeahso/flowbook/internal/availability"

// Config is the root configuration for flowbook.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Platform PlatformConfig `yaml:"platform,omitempty"`
	Calendar CalendarConfig `yaml:"calendar,omitempty"`
	Booking  BookingConfig  `yaml:"booking,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the flow endpoint HTTP server.
type ServerConfig struct {
	Port           int             `yaml:"port,omitempty"`
	Bind           string          `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string          `yaml:"customBindHost,omitempty"`
	FlowPath       string          `yaml:"flowPath,omitempty"`
	AllowedOrigins []string        `yaml:"allowedOrigins,omitempty"`
	TLS            ServerTLS       `yaml:"tls,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// ServerTLS configures TLS for the server.
type ServerTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RateLimitConfig is a per-client token bucket. Zero requestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// PlatformConfig holds the messaging platform credentials used for key
// registration and request signatures.
type PlatformConfig struct {
	GraphBaseURL  string `yaml:"graphBaseUrl,omitempty"`
	APIVersion    string `yaml:"apiVersion,omitempty"`
	PhoneNumberID string `yaml:"phoneNumberId,omitempty"`
	AccessToken   string `yaml:"accessToken,omitempty"`
	AppSecret     string `yaml:"appSecret,omitempty"`
}

// CalendarConfig selects the external calendar.
type CalendarConfig struct {
	Provider        string `yaml:"provider,omitempty"` // "google" | "memory"
	CalendarID      string `yaml:"calendarId,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
}

// BookingConfig configures the booking conversation.
type BookingConfig struct {
	Locale   string                             `yaml:"locale,omitempty"`
	Services []ServiceEntry                     `yaml:"services,omitempty"`
	Defaults availability.CalendarBookingConfig `yaml:"defaults,omitempty"`
}

// ServiceEntry is one bookable service offered on the first screen.
type ServiceEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// CacheConfig points at the Redis instance caching booking config. Empty
// redisAddr disables the cache.
type CacheConfig struct {
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDb,omitempty"`
	TTLSeconds    int    `yaml:"ttlSeconds,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
