// Package availability computes bookable appointment slots from a business's
// recurring working hours and the busy intervals reported by its calendar.
package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid booking config")
	ErrInvalidDate   = errors.New("invalid date")
)

// DateLayout is the zone-less calendar date format exchanged with the client.
const DateLayout = "2006-01-02"

// Period is a contiguous wall-clock range within a day, "HH:mm" on both ends.
type Period struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// WorkingHoursDay describes the bookable hours of one weekday. When Periods
// is empty, Start/End form the only period.
type WorkingHoursDay struct {
	Weekday time.Weekday `yaml:"weekday" json:"weekday"`
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Start   string       `yaml:"start" json:"start"`
	End     string       `yaml:"end" json:"end"`
	Periods []Period     `yaml:"periods,omitempty" json:"periods,omitempty"`
}

// WorkPeriods returns the periods to generate slots from.
func (d WorkingHoursDay) WorkPeriods() []Period {
	if len(d.Periods) > 0 {
		return d.Periods
	}
	return []Period{{Start: d.Start, End: d.End}}
}

// CalendarBookingConfig is the per-business scheduling policy.
type CalendarBookingConfig struct {
	TimeZone            string            `yaml:"timeZone" json:"timeZone"`
	SlotDurationMinutes int               `yaml:"slotDurationMinutes" json:"slotDurationMinutes"`
	SlotBufferMinutes   int               `yaml:"slotBufferMinutes" json:"slotBufferMinutes"`
	WorkingHours        []WorkingHoursDay `yaml:"workingHours" json:"workingHours"`
	MinAdvanceHours     int               `yaml:"minAdvanceHours" json:"minAdvanceHours"`
	MaxAdvanceDays      int               `yaml:"maxAdvanceDays" json:"maxAdvanceDays"`
	AllowSimultaneous   bool              `yaml:"allowSimultaneous" json:"allowSimultaneous"`
}

// DefaultConfig returns the policy used when no configuration is stored:
// weekdays 09:00-18:00 with a lunch break, 30 minute slots, bookable from two
// hours ahead up to thirty days out.
func DefaultConfig() CalendarBookingConfig {
	cfg := CalendarBookingConfig{
		TimeZone:            "America/Sao_Paulo",
		SlotDurationMinutes: 30,
		SlotBufferMinutes:   0,
		MinAdvanceHours:     2,
		MaxAdvanceDays:      30,
		AllowSimultaneous:   false,
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day := WorkingHoursDay{Weekday: wd, Start: "09:00", End: "18:00"}
		if wd != time.Sunday && wd != time.Saturday {
			day.Enabled = true
			day.Periods = []Period{{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "18:00"}}
		}
		cfg.WorkingHours = append(cfg.WorkingHours, day)
	}
	return cfg
}

// Location resolves the configured IANA time zone.
func (c CalendarBookingConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return nil, fmt.Errorf("%w: time zone is required", ErrInvalidConfig)
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %v", ErrInvalidConfig, c.TimeZone, err)
	}
	return loc, nil
}

// Day returns the working hours entry for a weekday.
func (c CalendarBookingConfig) Day(wd time.Weekday) (WorkingHoursDay, bool) {
	for _, d := range c.WorkingHours {
		if d.Weekday == wd {
			return d, true
		}
	}
	return WorkingHoursDay{}, false
}

// Validate checks the invariants the engine relies on.
func (c CalendarBookingConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%w: slotDurationMinutes must be positive, got %d", ErrInvalidConfig, c.SlotDurationMinutes)
	}
	if c.SlotBufferMinutes < 0 {
		return fmt.Errorf("%w: slotBufferMinutes must not be negative", ErrInvalidConfig)
	}
	if c.MinAdvanceHours < 0 || c.MaxAdvanceDays < 0 {
		return fmt.Errorf("%w: advance windows must not be negative", ErrInvalidConfig)
	}
	if len(c.WorkingHours) != 7 {
		return fmt.Errorf("%w: workingHours needs one entry per weekday, got %d", ErrInvalidConfig, len(c.WorkingHours))
	}

	seen := make(map[time.Weekday]bool, 7)
	for _, d := range c.WorkingHours {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidConfig, d.Weekday)
		}
		if seen[d.Weekday] {
			return fmt.Errorf("%w: duplicate entry for %s", ErrInvalidConfig, d.Weekday)
		}
		seen[d.Weekday] = true

		if !d.Enabled {
			continue
		}
		for _, p := range d.WorkPeriods() {
			start, end, err := p.minutes()
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.Weekday, err)
			}
			if start >= end {
				return fmt.Errorf("%w: %s: period %s-%s must start before it ends", ErrInvalidConfig, d.Weekday, p.Start, p.End)
			}
		}
	}
	return nil
}

func (p Period) minutes() (int, int, error) {
	start, err := parseClock(p.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(p.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseClock converts "HH:mm" to minutes after midnight. "24:00" is accepted
// as the end of the day.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	total := hours*60 + mins
	if hours < 0 || mins < 0 || mins > 59 || total > 24*60 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return total, nil
}
