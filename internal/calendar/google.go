package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/soyeahso/flowbook/internal/availability"
)

// Scopes requested when authorizing the calendar account.
var Scopes = []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope}

// GoogleOptions locates the OAuth client credentials and the saved user token.
type GoogleOptions struct {
	CredentialsFile string
	TokenFile       string
	Timeout         time.Duration
}

// Google talks to Google Calendar.
type Google struct {
	svc     *gcal.Service
	timeout time.Duration
}

// OAuthConfig reads the OAuth client definition downloaded from the Google
// console.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials file: %v", ErrNotConnected, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return cfg, nil
}

// NewGoogle builds a client from a credentials file and a saved token. A
// missing token yields ErrNotConnected.
func NewGoogle(ctx context.Context, opts GoogleOptions) (*Google, error) {
	cfg, err := OAuthConfig(opts.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := TokenFromFile(opts.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: no token at %s, run 'flowbook calendar auth' first", ErrNotConnected, opts.TokenFile)
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	return NewGoogleWithService(svc, opts.Timeout), nil
}

// NewGoogleWithService wraps an existing service.
func NewGoogleWithService(svc *gcal.Service, timeout time.Duration) *Google {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Google{svc: svc, timeout: timeout}
}

func (g *Google) ListBusy(ctx context.Context, calendarID string, from, to time.Time, timeZone string) ([]availability.BusyInterval, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: timeZone,
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("querying free/busy: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("free/busy response has no entry for calendar %q", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("free/busy for %q: %s", calendarID, cal.Errors[0].Reason)
	}

	busy := make([]availability.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parsing busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parsing busy end %q: %w", p.End, err)
		}
		busy = append(busy, availability.NewBusyInterval(start, end))
	}
	return busy, nil
}

func (g *Google) CreateEvent(ctx context.Context, calendarID string, ev Event) (Created, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	created, err := g.svc.Events.Insert(calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.TimeZone},
	}).Context(ctx).Do()
	if err != nil {
		return Created{}, fmt.Errorf("inserting event: %w", err)
	}
	if created.Id == "" {
		return Created{}, errors.New("calendar returned an event without id")
	}
	return Created{ID: created.Id, Link: created.HtmlLink}, nil
}

// TokenFromFile loads a saved OAuth token.
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// SaveToken writes an OAuth token readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
