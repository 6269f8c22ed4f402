package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Platform.AccessToken = expandEnvVars(cfg.Platform.AccessToken)
	cfg.Platform.AppSecret = expandEnvVars(cfg.Platform.AppSecret)
	cfg.Platform.PhoneNumberID = expandEnvVars(cfg.Platform.PhoneNumberID)
	cfg.Cache.RedisPassword = expandEnvVars(cfg.Cache.RedisPassword)
	cfg.Calendar.CredentialsFile = expandEnvVars(cfg.Calendar.CredentialsFile)
	cfg.Calendar.TokenFile = expandEnvVars(cfg.Calendar.TokenFile)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = d.Server.Bind
	}
	if cfg.Server.FlowPath == "" {
		cfg.Server.FlowPath = d.Server.FlowPath
	}
	if cfg.Platform.GraphBaseURL == "" {
		cfg.Platform.GraphBaseURL = d.Platform.GraphBaseURL
	}
	if cfg.Platform.APIVersion == "" {
		cfg.Platform.APIVersion = d.Platform.APIVersion
	}
	if cfg.Calendar.Provider == "" {
		cfg.Calendar.Provider = d.Calendar.Provider
	}
	if cfg.Calendar.CalendarID == "" {
		cfg.Calendar.CalendarID = d.Calendar.CalendarID
	}
	if cfg.Calendar.TimeoutSeconds == 0 {
		cfg.Calendar.TimeoutSeconds = d.Calendar.TimeoutSeconds
	}
	if cfg.Booking.Locale == "" {
		cfg.Booking.Locale = d.Booking.Locale
	}
	if cfg.Booking.Defaults.TimeZone == "" {
		cfg.Booking.Defaults.TimeZone = d.Booking.Defaults.TimeZone
	}
	if cfg.Booking.Defaults.SlotDurationMinutes == 0 {
		cfg.Booking.Defaults.SlotDurationMinutes = d.Booking.Defaults.SlotDurationMinutes
	}
	if len(cfg.Booking.Defaults.WorkingHours) == 0 {
		cfg.Booking.Defaults.WorkingHours = d.Booking.Defaults.WorkingHours
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = d.Cache.TTLSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads FLOWBOOK_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWBOOK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FLOWBOOK_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("FLOWBOOK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWBOOK_CALENDAR_ID"); v != "" {
		cfg.Calendar.CalendarID = v
	}
	if v := os.Getenv("FLOWBOOK_PLATFORM_TOKEN"); v != "" {
		cfg.Platform.AccessToken = v
	}
	if v := os.Getenv("FLOWBOOK_APP_SECRET"); v != "" {
		cfg.Platform.AppSecret = v
	}
	if v := os.Getenv("FLOWBOOK_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}
