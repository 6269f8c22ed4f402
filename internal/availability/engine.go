package availability

import (
	"fmt"
	"sort"
	"time"
)

// ISOLayout renders slot instants the way the client echoes them back.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Slot is one bookable start time.
type Slot struct {
	ISOTimestamp string    `json:"isoTimestamp"`
	Label        string    `json:"label"`
	Start        time.Time `json:"-"`
}

// BusyInterval is an occupied range reported by the external calendar,
// in Unix milliseconds.
type BusyInterval struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// NewBusyInterval builds a BusyInterval from two instants.
func NewBusyInterval(start, end time.Time) BusyInterval {
	return BusyInterval{StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}
}

// DateRange is what the client's date picker needs: an inclusive range,
// the allowed weekdays, and an explicit list of excluded dates.
type DateRange struct {
	MinDate          string
	MaxDate          string
	IncludedWeekdays []time.Weekday
	ExcludedDates    []string
}

// Engine computes availability. It holds no state besides its clock.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine. A nil clock uses time.Now.
func NewEngine(clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{now: clock}
}

// ParseDate parses a zone-less YYYY-MM-DD date as midnight in the business zone.
func ParseDate(date string, cfg CalendarBookingConfig) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day, nil
}

// DayWindow returns [midnight, next midnight) of date in the business zone,
// the range to query busy intervals for.
func DayWindow(date string, cfg CalendarBookingConfig) (time.Time, time.Time, error) {
	day, err := ParseDate(date, cfg)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day, day.AddDate(0, 0, 1), nil
}

// ListSlots returns the bookable slots of date, in chronological order.
// Candidates start every slotDurationMinutes within each work period, must
// start strictly after now+minAdvanceHours, and must not overlap any busy
// interval widened by slotBufferMinutes on both sides.
func (e *Engine) ListSlots(date string, cfg CalendarBookingConfig, busy []BusyInterval) ([]Slot, error) {
	if cfg.SlotDurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: slotDurationMinutes must be positive", ErrInvalidConfig)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	day, err := ParseDate(date, cfg)
	if err != nil {
		return nil, err
	}

	now := e.now()
	today := startOfDay(now.In(loc))
	if day.Before(today) || day.After(today.AddDate(0, 0, cfg.MaxAdvanceDays)) {
		return nil, nil
	}

	wh, ok := cfg.Day(day.Weekday())
	if !ok || !wh.Enabled {
		return nil, nil
	}

	duration := time.Duration(cfg.SlotDurationMinutes) * time.Minute
	cutoff := now.Add(time.Duration(cfg.MinAdvanceHours) * time.Hour)
	blocked := expand(busy, time.Duration(cfg.SlotBufferMinutes)*time.Minute)

	var slots []Slot
	seen := make(map[int64]bool)
	for _, p := range wh.WorkPeriods() {
		startMin, endMin, err := p.minutes()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for m := startMin; m <= endMin-cfg.SlotDurationMinutes; m += cfg.SlotDurationMinutes {
			start := time.Date(day.Year(), day.Month(), day.Day(), 0, m, 0, 0, loc)
			if !start.After(cutoff) {
				continue
			}
			end := start.Add(duration)
			if overlapsAny(start, end, blocked) {
				continue
			}
			key := start.UnixMilli()
			if seen[key] {
				continue
			}
			seen[key] = true
			slots = append(slots, Slot{
				ISOTimestamp: start.UTC().Format(ISOLayout),
				Label:        start.In(loc).Format("15:04"),
				Start:        start,
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots, nil
}

// PickableDates returns the date picker bounds: today through
// today+maxAdvanceDays in the business zone, with every date whose weekday is
// disabled listed explicitly.
func (e *Engine) PickableDates(cfg CalendarBookingConfig) (DateRange, error) {
	loc, err := cfg.Location()
	if err != nil {
		return DateRange{}, err
	}
	minDay := startOfDay(e.now().In(loc))
	maxDay := minDay.AddDate(0, 0, cfg.MaxAdvanceDays)

	r := DateRange{
		MinDate:          minDay.Format(DateLayout),
		MaxDate:          maxDay.Format(DateLayout),
		IncludedWeekdays: []time.Weekday{},
		ExcludedDates:    []string{},
	}
	enabled := make(map[time.Weekday]bool, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if d, ok := cfg.Day(wd); ok && d.Enabled {
			enabled[wd] = true
			r.IncludedWeekdays = append(r.IncludedWeekdays, wd)
		}
	}
	for d := minDay; !d.After(maxDay); d = d.AddDate(0, 0, 1) {
		if !enabled[d.Weekday()] {
			r.ExcludedDates = append(r.ExcludedDates, d.Format(DateLayout))
		}
	}
	return r, nil
}

// Blocked reports whether [start, end) overlaps any busy interval widened by
// bufferMinutes on both sides.
func Blocked(start, end time.Time, bufferMinutes int, busy []BusyInterval) bool {
	return overlapsAny(start, end, expand(busy, time.Duration(bufferMinutes)*time.Minute))
}

type interval struct {
	start, end time.Time
}

func expand(busy []BusyInterval, buffer time.Duration) []interval {
	out := make([]interval, 0, len(busy))
	for _, b := range busy {
		out = append(out, interval{
			start: time.UnixMilli(b.StartMs).Add(-buffer),
			end:   time.UnixMilli(b.EndMs).Add(buffer),
		})
	}
	return out
}

// overlapsAny applies the half-open overlap test
// candidateStart < busyEnd && candidateEnd > busyStart.
func overlapsAny(start, end time.Time, blocked []interval) bool {
	for _, b := range blocked {
		if start.Before(b.end) && end.After(b.start) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
