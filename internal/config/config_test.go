package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "/flow", cfg.Server.FlowPath)
	assert.Equal(t, "google", cfg.Calendar.Provider)
	assert.Equal(t, "primary", cfg.Calendar.CalendarID)
	assert.Equal(t, "en", cfg.Booking.Locale)
	assert.Equal(t, "America/Sao_Paulo", cfg.Booking.Defaults.TimeZone)
	assert.Len(t, cfg.Booking.Defaults.WorkingHours, 7)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.Cache.TTLSeconds)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9999
  bind: lan
  flowPath: /webhooks/flow
  rateLimit:
    requestsPerSecond: 5
    burst: 10
platform:
  phoneNumberId: "106540352242922"
  accessToken: token123
calendar:
  provider: memory
  calendarId: clinic@example.com
booking:
  locale: pt-BR
  services:
    - id: cleaning
      title: Dental cleaning
    - id: checkup
      title: Checkup
  defaults:
    timeZone: Europe/Lisbon
    slotDurationMinutes: 45
    slotBufferMinutes: 15
logging:
  level: debug
  consoleStyle: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, "/webhooks/flow", cfg.Server.FlowPath)
	assert.Equal(t, 5.0, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.Server.RateLimit.Burst)
	assert.Equal(t, "106540352242922", cfg.Platform.PhoneNumberID)
	assert.Equal(t, "token123", cfg.Platform.AccessToken)
	assert.Equal(t, DefaultGraphBaseURL, cfg.Platform.GraphBaseURL)
	assert.Equal(t, "memory", cfg.Calendar.Provider)
	assert.Equal(t, "clinic@example.com", cfg.Calendar.CalendarID)
	assert.Equal(t, "pt-BR", cfg.Booking.Locale)
	require.Len(t, cfg.Booking.Services, 2)
	assert.Equal(t, ServiceEntry{ID: "cleaning", Title: "Dental cleaning"}, cfg.Booking.Services[0])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	d := cfg.Booking.Defaults
	assert.Equal(t, "Europe/Lisbon", d.TimeZone)
	assert.Equal(t, 45, d.SlotDurationMinutes)
	assert.Equal(t, 15, d.SlotBufferMinutes)
	// Untouched fields keep their defaults.
	assert.Len(t, d.WorkingHours, 7)
	assert.Equal(t, 30, d.MaxAdvanceDays)
	wed, ok := d.Day(time.Wednesday)
	require.True(t, ok)
	assert.True(t, wed.Enabled)
}

func TestLoadWorkingHours(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
booking:
  defaults:
    workingHours:
      - {weekday: 0, enabled: false, start: "09:00", end: "17:00"}
      - {weekday: 1, enabled: true, start: "08:00", end: "12:00"}
      - {weekday: 2, enabled: true, start: "08:00", end: "12:00"}
      - {weekday: 3, enabled: true, start: "08:00", end: "12:00"}
      - {weekday: 4, enabled: true, start: "08:00", end: "12:00"}
      - weekday: 5
        enabled: true
        periods:
          - {start: "08:00", end: "10:00"}
          - {start: "14:00", end: "16:00"}
      - {weekday: 6, enabled: false, start: "09:00", end: "17:00"}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, Validate(&cfg))

	fri, ok := cfg.Booking.Defaults.Day(time.Friday)
	require.True(t, ok)
	require.Len(t, fri.Periods, 2)
	assert.Equal(t, "14:00", fri.Periods[1].Start)

	mon, _ := cfg.Booking.Defaults.Day(time.Monday)
	assert.Empty(t, mon.Periods)
	assert.Equal(t, "08:00", mon.Start)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FLOWBOOK_PORT", "12345")
	t.Setenv("FLOWBOOK_LOG_LEVEL", "TRACE")
	t.Setenv("FLOWBOOK_CALENDAR_ID", "ops@example.com")
	t.Setenv("FLOWBOOK_APP_SECRET", "shh")
	t.Setenv("FLOWBOOK_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "ops@example.com", cfg.Calendar.CalendarID)
	assert.Equal(t, "shh", cfg.Platform.AppSecret)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_FLOW_TOKEN", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  accessToken: ${TEST_FLOW_TOKEN}
  appSecret: ${TEST_FLOW_UNSET_SECRET}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Platform.AccessToken)
	assert.Equal(t, "${TEST_FLOW_UNSET_SECRET}", cfg.Platform.AppSecret)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	d := Defaults()
	assert.Equal(t, d.Server.Port, cfg.Server.Port)
	assert.Equal(t, d.Server.FlowPath, cfg.Server.FlowPath)
	assert.Equal(t, d.Calendar.Provider, cfg.Calendar.Provider)
	assert.Equal(t, d.Booking.Defaults.WorkingHours, cfg.Booking.Defaults.WorkingHours)
	assert.Equal(t, d.Logging.ConsoleStyle, cfg.Logging.ConsoleStyle)
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"server.port", []string{"server", "port"}, false},
		{"booking.defaults.timeZone", []string{"booking", "defaults", "timeZone"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"server": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"server", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)
}

func TestLoadRawMissingAndEmpty(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	raw, err = LoadRaw(path)
	require.NoError(t, err)
	assert.NotNil(t, raw)
}
