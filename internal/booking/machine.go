// Package booking drives the appointment conversation: it turns a decrypted
// screen submission into the next screen, consulting availability and
// creating the calendar event on confirmation.
//
// The machine keeps no per-conversation state. Everything it needs travels
// in the request data the client echoes back, so a stale BACK or a retried
// data_exchange is answered purely from what the request carries.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/soyeahso/flowbook/internal/calendar"
	"github.com/soyeahso/flowbook/internal/flow"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/logging"
)

// Service is a bookable offering shown on the first screen.
type Service struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
}

// Option is one entry of a client dropdown or radio list.
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ConfigSource yields the booking policy for the current request.
type ConfigSource interface {
	BookingConfig(ctx context.Context) (availability.CalendarBookingConfig, error)
}

// Options configures a Machine.
type Options struct {
	CalendarID string
	Services   []Service
	Locale     string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Outcome labels a handled request for metrics.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomePing         Outcome = "ping"
	OutcomeAcknowledged Outcome = "acknowledged"
)

// Result is the response to send plus how the turn ended. Err is set when
// the turn did not advance; Response is still a valid screen in that case.
type Result struct {
	Response flow.Response
	Outcome  Outcome
	Err      error
}

// Machine is the booking state machine.
type Machine struct {
	engine   *availability.Engine
	calendar calendar.Client
	configs  ConfigSource
	hooks    *hooks.Manager
	opts     Options
	msgs     messages
	log      *logging.Logger
}

// turn is the input of one step.
type turn struct {
	req flow.Request
	cfg availability.CalendarBookingConfig
}

// New creates a Machine. hm may be nil.
func New(cal calendar.Client, configs ConfigSource, hm *hooks.Manager, opts Options, log *logging.Logger) *Machine {
	msgs := messagesFor(opts.Locale)
	if len(opts.Services) == 0 {
		opts.Services = []Service{{ID: "appointment", Title: msgs.defaultService}}
	}
	return &Machine{
		engine:   availability.NewEngine(opts.Clock),
		calendar: cal,
		configs:  configs,
		hooks:    hm,
		opts:     opts,
		msgs:     msgs,
		log:      log.Sub("booking"),
	}
}

// Handle answers one decrypted request.
func (m *Machine) Handle(ctx context.Context, req flow.Request) Result {
	if req.Action == flow.ActionPing {
		return Result{
			Response: flow.Response{Data: map[string]any{"status": "active"}},
			Outcome:  OutcomePing,
		}
	}
	if msg, ok := req.ErrorNotification(); ok {
		m.log.Warn().Str("screen", req.Screen).Str("client_error", msg).Msg("client reported an error")
		return Result{
			Response: flow.Response{Data: map[string]any{"acknowledged": true}},
			Outcome:  OutcomeAcknowledged,
		}
	}

	screen, known := ParseScreen(req.Screen)
	key := transition{screen: screen, action: req.Action}
	if req.Action == flow.ActionInit {
		key.screen = ""
	}

	cfg, err := m.configs.BookingConfig(ctx)
	if err != nil {
		return m.failed(m.bare(req, screen, known, m.msgs.calendarUnavailable), &Error{
			Kind:    KindExternalUnavailable,
			Screen:  screen,
			Message: m.msgs.calendarUnavailable,
			Err:     fmt.Errorf("loading booking config: %w", err),
		})
	}
	t := turn{req: req, cfg: cfg}

	next, ok := transitions[key]
	if !ok {
		resp := m.bare(req, screen, known, m.msgs.unknownStep)
		if !known || screen == ScreenBookingStart {
			if full, err := m.startScreen(t, m.msgs.unknownStep); err == nil {
				resp = full
			}
		}
		return m.failed(resp, &Error{
			Kind:    KindUnknownTransition,
			Screen:  screen,
			Message: fmt.Sprintf("action %q not accepted on screen %q", req.Action, req.Screen),
		})
	}

	resp, err := next(m, ctx, t)
	if err != nil {
		var be *Error
		if !errors.As(err, &be) {
			be = &Error{Kind: KindExternalUnavailable, Screen: screen, Message: m.msgs.calendarUnavailable, Err: err}
			resp = m.bare(req, screen, known, m.msgs.calendarUnavailable)
		}
		return m.failed(resp, be)
	}
	if resp.Screen == "" {
		return Result{Response: resp, Outcome: OutcomeConfirmed}
	}
	return Result{Response: resp, Outcome: OutcomeOK}
}

func (m *Machine) failed(resp flow.Response, err *Error) Result {
	ev := m.log.Debug()
	if err.Kind != KindValidation {
		ev = m.log.Warn()
	}
	ev.Str("kind", string(err.Kind)).Str("screen", string(err.Screen)).Err(err.Err).Msg(err.Message)
	return Result{Response: resp, Outcome: Outcome(err.Kind), Err: err}
}

// bare re-renders the client's screen from the echoed draft plus an error,
// without any I/O.
func (m *Machine) bare(req flow.Request, screen Screen, known bool, msg string) flow.Response {
	if !known {
		screen = ScreenBookingStart
	}
	data := m.draft(req)
	data["has_error"] = true
	data["error_message"] = msg
	return flow.Response{Screen: string(screen), Data: data}
}

func (m *Machine) draft(req flow.Request) map[string]any {
	data := make(map[string]any, len(draftKeys)+2)
	for _, k := range draftKeys {
		if v := req.String(k); v != "" {
			data[k] = v
		}
	}
	return data
}

func (m *Machine) invalid(resp flow.Response, err error, screen Screen, msg string) (flow.Response, error) {
	if err != nil {
		return resp, err
	}
	return resp, &Error{Kind: KindValidation, Screen: screen, Message: msg}
}

func (m *Machine) unavailable(resp flow.Response, err error, screen Screen, cause error) (flow.Response, error) {
	if err != nil {
		return resp, err
	}
	return resp, &Error{Kind: KindExternalUnavailable, Screen: screen, Message: m.msgs.calendarUnavailable, Err: cause}
}

// --- steps ---

func (m *Machine) start(_ context.Context, t turn) (flow.Response, error) {
	return m.startScreen(t, "")
}

func (m *Machine) submitDate(ctx context.Context, t turn) (flow.Response, error) {
	if _, ok := m.service(t.req); !ok {
		resp, err := m.startScreen(t, m.msgs.chooseService)
		return m.invalid(resp, err, ScreenBookingStart, m.msgs.chooseService)
	}
	date := t.req.String(keySelectedDate)
	if _, err := availability.ParseDate(date, t.cfg); err != nil {
		resp, err := m.startScreen(t, m.msgs.chooseDate)
		return m.invalid(resp, err, ScreenBookingStart, m.msgs.chooseDate)
	}
	return m.timeScreen(ctx, t, date, "")
}

func (m *Machine) submitSlot(ctx context.Context, t turn) (flow.Response, error) {
	date := t.req.String(keySelectedDate)
	slot := t.req.String(keySelectedSlot)
	start, err := parseSlot(slot)
	if err != nil {
		resp, err := m.timeScreen(ctx, t, date, m.msgs.chooseSlot)
		return m.invalid(resp, err, ScreenSelectTime, m.msgs.chooseSlot)
	}
	if resp, rejected, err := m.checkOffered(ctx, t, start); rejected || err != nil {
		return resp, err
	}
	return m.customerScreen(t, start, "")
}

func (m *Machine) submitCustomer(ctx context.Context, t turn) (flow.Response, error) {
	svc, ok := m.service(t.req)
	if !ok {
		resp, err := m.startScreen(t, m.msgs.chooseService)
		return m.invalid(resp, err, ScreenBookingStart, m.msgs.chooseService)
	}
	start, err := parseSlot(t.req.String(keySelectedSlot))
	if err != nil {
		resp, err := m.timeScreen(ctx, t, t.req.String(keySelectedDate), m.msgs.chooseSlot)
		return m.invalid(resp, err, ScreenSelectTime, m.msgs.chooseSlot)
	}
	if resp, rejected, err := m.checkOffered(ctx, t, start); rejected || err != nil {
		return resp, err
	}
	name := t.req.String(keyCustomerName)
	if name == "" {
		resp, err := m.customerScreen(t, start, m.msgs.enterName)
		return m.invalid(resp, err, ScreenCustomerInfo, m.msgs.enterName)
	}

	loc, err := t.cfg.Location()
	if err != nil {
		return flow.Response{}, err
	}
	end := start.Add(time.Duration(t.cfg.SlotDurationMinutes) * time.Minute)

	if !t.cfg.AllowSimultaneous {
		buffer := time.Duration(t.cfg.SlotBufferMinutes) * time.Minute
		busy, err := m.calendar.ListBusy(ctx, m.opts.CalendarID, start.Add(-buffer), end.Add(buffer), t.cfg.TimeZone)
		if err != nil {
			resp, rerr := m.customerScreen(t, start, m.msgs.calendarUnavailable)
			return m.unavailable(resp, rerr, ScreenCustomerInfo, err)
		}
		if availability.Blocked(start, end, t.cfg.SlotBufferMinutes, busy) {
			resp, err := m.customerScreen(t, start, m.msgs.slotTaken)
			return m.invalid(resp, err, ScreenCustomerInfo, m.msgs.slotTaken)
		}
	}

	created, err := m.calendar.CreateEvent(ctx, m.opts.CalendarID, calendar.Event{
		Summary:     fmt.Sprintf("%s - %s", svc.Title, name),
		Description: m.eventDescription(t.req),
		Start:       start.In(loc),
		End:         end.In(loc),
		TimeZone:    t.cfg.TimeZone,
	})
	if err != nil {
		resp, rerr := m.customerScreen(t, start, m.msgs.calendarUnavailable)
		return m.unavailable(resp, rerr, ScreenCustomerInfo, err)
	}

	m.log.Info().Str("event_id", created.ID).Str("service", svc.ID).Time("start", start).Msg("booking confirmed")
	if m.hooks != nil {
		m.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventBookingConfirmed, map[string]any{
			"eventId":   created.ID,
			"serviceId": svc.ID,
			"start":     start.UTC(),
		})
	}

	msg := m.msgs.confirm(name, svc.Title, start.In(loc))
	data := map[string]any{
		"extension_message_response": map[string]any{
			"params": map[string]any{
				"flow_token":           t.req.FlowToken,
				"event_id":             created.ID,
				"confirmation_message": msg,
			},
		},
		"event_id":             created.ID,
		"confirmation_message": msg,
	}
	if created.Link != "" {
		data["event_link"] = created.Link
	}
	return flow.Response{Data: data}, nil
}

// checkOffered re-derives the policy's candidate slots for the day of start
// and rejects a start that is not among them, such as a stale or past slot.
// The time screen is rendered again with a fresh list.
func (m *Machine) checkOffered(ctx context.Context, t turn, start time.Time) (flow.Response, bool, error) {
	loc, err := t.cfg.Location()
	if err != nil {
		return flow.Response{}, false, err
	}
	date := start.In(loc).Format(availability.DateLayout)
	candidates, err := m.engine.ListSlots(date, t.cfg, nil)
	if err != nil {
		return flow.Response{}, false, err
	}
	for _, c := range candidates {
		if c.Start.Equal(start) {
			return flow.Response{}, false, nil
		}
	}

	resp, err := m.timeScreen(ctx, t, date, m.msgs.slotUnavailable)
	if err != nil {
		return resp, true, err
	}
	resp, err = m.invalid(resp, nil, ScreenSelectTime, m.msgs.slotUnavailable)
	return resp, true, err
}

func (m *Machine) backToTimes(ctx context.Context, t turn) (flow.Response, error) {
	date := t.req.String(keySelectedDate)
	if _, err := availability.ParseDate(date, t.cfg); err != nil {
		resp, err := m.startScreen(t, m.msgs.chooseDate)
		return m.invalid(resp, err, ScreenBookingStart, m.msgs.chooseDate)
	}
	return m.timeScreen(ctx, t, date, "")
}

// --- screens ---

func (m *Machine) startScreen(t turn, errMsg string) (flow.Response, error) {
	dates, err := m.engine.PickableDates(t.cfg)
	if err != nil {
		return flow.Response{}, err
	}
	days := make([]string, len(dates.IncludedWeekdays))
	for i, wd := range dates.IncludedWeekdays {
		days[i] = weekdayAbbrev(wd)
	}

	data := map[string]any{
		"services":          m.serviceOptions(),
		"min_date":          dates.MinDate,
		"max_date":          dates.MaxDate,
		"include_days":      days,
		"unavailable_dates": dates.ExcludedDates,
		"has_error":         errMsg != "",
		"error_message":     errMsg,
	}
	if svc := t.req.String(keySelectedService); svc != "" {
		data[keySelectedService] = svc
	}
	return flow.Response{Screen: string(ScreenBookingStart), Data: data}, nil
}

func (m *Machine) timeScreen(ctx context.Context, t turn, date, errMsg string) (flow.Response, error) {
	day, err := availability.ParseDate(date, t.cfg)
	if err != nil {
		resp, err := m.startScreen(t, m.msgs.chooseDate)
		return m.invalid(resp, err, ScreenBookingStart, m.msgs.chooseDate)
	}

	slots, err := m.slots(ctx, t.cfg, date)
	if err != nil {
		resp, rerr := m.startScreen(t, m.msgs.calendarUnavailable)
		return m.unavailable(resp, rerr, ScreenBookingStart, err)
	}
	if len(slots) == 0 {
		msg := fmt.Sprintf(m.msgs.noSlots, m.msgs.formatDate(day))
		resp, err := m.startScreen(t, msg)
		if err == nil {
			resp.Data["slots"] = []Option{}
			resp.Data["has_slots"] = false
		}
		return m.invalid(resp, err, ScreenBookingStart, msg)
	}

	options := make([]Option, len(slots))
	for i, s := range slots {
		options[i] = Option{ID: s.ISOTimestamp, Title: s.Label}
	}
	svc, _ := m.service(t.req)
	data := map[string]any{
		"slots":            options,
		"has_slots":        true,
		keySelectedService: svc.ID,
		keySelectedDate:    date,
		"date_label":       m.msgs.formatDate(day),
		"has_error":        errMsg != "",
		"error_message":    errMsg,
	}
	return flow.Response{Screen: string(ScreenSelectTime), Data: data}, nil
}

func (m *Machine) customerScreen(t turn, start time.Time, errMsg string) (flow.Response, error) {
	loc, err := t.cfg.Location()
	if err != nil {
		return flow.Response{}, err
	}
	local := start.In(loc)
	svc, _ := m.service(t.req)

	data := m.draft(t.req)
	data[keySelectedService] = svc.ID
	data[keySelectedDate] = local.Format(availability.DateLayout)
	data[keySelectedSlot] = start.UTC().Format(availability.ISOLayout)
	data["summary"] = fmt.Sprintf("%s - %s - %s", svc.Title, m.msgs.formatDate(local), local.Format("15:04"))
	data["has_error"] = errMsg != ""
	data["error_message"] = errMsg
	return flow.Response{Screen: string(ScreenCustomerInfo), Data: data}, nil
}

// FreeSlots lists the bookable slots of date under the current policy, the
// same list the time screen offers.
func (m *Machine) FreeSlots(ctx context.Context, date string) ([]availability.Slot, error) {
	cfg, err := m.configs.BookingConfig(ctx)
	if err != nil {
		return nil, err
	}
	return m.slots(ctx, cfg, date)
}

// slots lists the free slots of date. Dates the policy rules out entirely
// are answered without asking the calendar.
func (m *Machine) slots(ctx context.Context, cfg availability.CalendarBookingConfig, date string) ([]availability.Slot, error) {
	candidates, err := m.engine.ListSlots(date, cfg, nil)
	if err != nil || len(candidates) == 0 {
		return candidates, err
	}

	from, to, err := availability.DayWindow(date, cfg)
	if err != nil {
		return nil, err
	}
	buffer := time.Duration(cfg.SlotBufferMinutes) * time.Minute
	busy, err := m.calendar.ListBusy(ctx, m.opts.CalendarID, from.Add(-buffer), to.Add(buffer), cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("listing busy intervals: %w", err)
	}
	return m.engine.ListSlots(date, cfg, busy)
}

// service resolves selected_service. With a single configured service the
// selection may be omitted.
func (m *Machine) service(req flow.Request) (Service, bool) {
	id := req.String(keySelectedService)
	if id == "" && len(m.opts.Services) == 1 {
		return m.opts.Services[0], true
	}
	for _, s := range m.opts.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

func (m *Machine) serviceOptions() []Option {
	out := make([]Option, len(m.opts.Services))
	for i, s := range m.opts.Services {
		out[i] = Option{ID: s.ID, Title: s.Title}
	}
	return out
}

func (m *Machine) eventDescription(req flow.Request) string {
	var b strings.Builder
	if phone := req.String(keyCustomerPhone); phone != "" {
		fmt.Fprintf(&b, "%s: %s\n", m.msgs.phoneLabel, phone)
	}
	if notes := req.String(keyNotes); notes != "" {
		fmt.Fprintf(&b, "%s: %s\n", m.msgs.notesLabel, notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func parseSlot(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("no slot selected")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad slot %q: %w", s, err)
	}
	return t, nil
}
