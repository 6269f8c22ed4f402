package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPolicy(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
timeZone: Europe/Lisbon
slotDurationMinutes: 45
maxAdvanceDays: 10
workingHours:
  - weekday: 1
    enabled: true
    start: "09:00"
    end: "17:00"
`), 0o600))

	policy, err := readPolicy(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", policy.TimeZone)
	assert.Equal(t, 45, policy.SlotDurationMinutes)
	require.Len(t, policy.WorkingHours, 1)
	assert.Equal(t, time.Monday, policy.WorkingHours[0].Weekday)

	jsonPath := filepath.Join(dir, "policy.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"timeZone":"UTC","slotDurationMinutes":15}`), 0o600))
	policy, err = readPolicy(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "UTC", policy.TimeZone)
	assert.Equal(t, 15, policy.SlotDurationMinutes)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{`), 0o600))
	_, err = readPolicy(badPath)
	assert.Error(t, err)

	_, err = readPolicy(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
