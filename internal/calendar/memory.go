package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/flowbook/internal/availability"
)

// Memory is an in-process calendar used for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	events map[string][]storedEvent
	fail   error
}

type storedEvent struct {
	id string
	Event
}

// NewMemory creates an empty in-memory calendar.
func NewMemory() *Memory {
	return &Memory{events: make(map[string][]storedEvent)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Block marks a range busy without a visible event.
func (m *Memory) Block(calendarID string, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[calendarID] = append(m.events[calendarID], storedEvent{
		id:    uuid.NewString(),
		Event: Event{Summary: "busy", Start: start, End: end},
	})
}

// Events returns a copy of the events on a calendar ordered by start.
func (m *Memory) Events(calendarID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.events[calendarID]))
	for _, e := range m.events[calendarID] {
		out = append(out, e.Event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (m *Memory) ListBusy(ctx context.Context, calendarID string, from, to time.Time, _ string) ([]availability.BusyInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}

	var busy []availability.BusyInterval
	for _, e := range m.events[calendarID] {
		if e.Start.Before(to) && e.End.After(from) {
			busy = append(busy, availability.NewBusyInterval(e.Start, e.End))
		}
	}
	return busy, nil
}

func (m *Memory) CreateEvent(ctx context.Context, calendarID string, ev Event) (Created, error) {
	if err := ctx.Err(); err != nil {
		return Created{}, err
	}
	if !ev.End.After(ev.Start) {
		return Created{}, fmt.Errorf("event must end after it starts")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Created{}, m.fail
	}

	id := uuid.NewString()
	m.events[calendarID] = append(m.events[calendarID], storedEvent{id: id, Event: ev})
	return Created{ID: id, Link: fmt.Sprintf("memory://calendars/%s/events/%s", calendarID, id)}, nil
}
