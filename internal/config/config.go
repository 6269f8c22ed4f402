package config

import (
	"fmt"

	"github.com/soyeahso/flowbook/internal/availability"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort         = 8787
	DefaultFlowPath     = "/flow"
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultAPIVersion   = "v21.0"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     DefaultPort,
			Bind:     "loopback",
			FlowPath: DefaultFlowPath,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Platform: PlatformConfig{
			GraphBaseURL: DefaultGraphBaseURL,
			APIVersion:   DefaultAPIVersion,
		},
		Calendar: CalendarConfig{
			Provider:       "google",
			CalendarID:     "primary",
			TimeoutSeconds: 10,
		},
		Booking: BookingConfig{
			Locale:   "en",
			Defaults: availability.DefaultConfig(),
		},
		Cache: CacheConfig{
			TTLSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
