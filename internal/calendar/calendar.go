// Package calendar is the boundary to the external calendar that owns busy
// time and receives booked events.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/flowbook/internal/availability"
)

// ErrNotConnected is returned when no calendar account is configured or its
// credentials are missing.
var ErrNotConnected = errors.New("calendar not connected")

// Event is an appointment to create.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// Created identifies an event after creation. Link is empty when the
// provider has no browsable URL.
type Created struct {
	ID   string
	Link string
}

// Client lists busy time and creates events on one external calendar
// provider.
type Client interface {
	ListBusy(ctx context.Context, calendarID string, from, to time.Time, timeZone string) ([]availability.BusyInterval, error)
	CreateEvent(ctx context.Context, calendarID string, ev Event) (Created, error)
}

// Unavailable is a Client whose every call fails with Err. It stands in when
// the configured provider could not be initialized.
type Unavailable struct {
	Err error
}

func (u Unavailable) err() error {
	if u.Err == nil {
		return ErrNotConnected
	}
	return u.Err
}

func (u Unavailable) ListBusy(context.Context, string, time.Time, time.Time, string) ([]availability.BusyInterval, error) {
	return nil, u.err()
}

func (u Unavailable) CreateEvent(context.Context, string, Event) (Created, error) {
	return Created{}, u.err()
}
