package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/flowbook/internal/booking"
	"github.com/soyeahso/flowbook/internal/calendar"
	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/gateway"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/metrics"
	"github.com/soyeahso/flowbook/internal/platform"
	"github.com/soyeahso/flowbook/internal/settings"
	"github.com/soyeahso/flowbook/internal/store"
)

// app holds the components shared by commands that touch persisted state.
type app struct {
	cfg      config.Config
	db       *store.DB
	keyStore *store.KeyStore
	bookings *store.BookingLog
	cache    *settings.Cache
	configs  *settings.Provider
	platform *platform.Client
	hooks    *hooks.Manager
	metrics  *metrics.Metrics
	keys     *gateway.KeyBootstrapper
}

// loadConfig reads the config file and fills path defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	paths.Resolve(&cfg)
	return cfg, nil
}

// openApp opens the database and builds everything that does not need a
// calendar connection.
func openApp(cfg config.Config) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating state directories: %w", err)
	}
	db, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		keyStore: store.NewKeyStore(db),
		bookings: store.NewBookingLog(db),
		hooks:    hooks.NewManager(log),
		metrics:  metrics.New(),
	}

	if cfg.Cache.RedisAddr != "" {
		a.cache = settings.NewCache(settings.CacheOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		})
	}
	a.configs = settings.NewProvider(store.NewSettingsStore(db), a.cache, cfg.Booking.Defaults, log)

	a.platform = platform.New(platform.Options{
		BaseURL:       cfg.Platform.GraphBaseURL,
		APIVersion:    cfg.Platform.APIVersion,
		PhoneNumberID: cfg.Platform.PhoneNumberID,
		AccessToken:   cfg.Platform.AccessToken,
	})
	var registrar gateway.Registrar
	if a.platform.Configured() {
		registrar = a.platform
	}
	a.keys = gateway.NewKeyBootstrapper(a.keyStore, registrar, a.hooks, a.metrics, log)
	return a, nil
}

// Close waits for background work and releases connections.
func (a *app) Close() {
	a.keys.Wait()
	a.hooks.Wait()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing settings cache")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

// calendarClient connects the configured calendar provider. A provider that
// cannot be reached yields a client whose calls fail, so the flow still
// answers with an "unavailable" screen instead of the server refusing to
// start.
func (a *app) calendarClient(ctx context.Context) calendar.Client {
	switch a.cfg.Calendar.Provider {
	case "memory":
		log.Warn().Msg("using in-memory calendar; bookings are not persisted")
		return calendar.NewMemory()
	default:
		g, err := calendar.NewGoogle(ctx, calendar.GoogleOptions{
			CredentialsFile: a.cfg.Calendar.CredentialsFile,
			TokenFile:       a.cfg.Calendar.TokenFile,
			Timeout:         time.Duration(a.cfg.Calendar.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			if errors.Is(err, calendar.ErrNotConnected) {
				log.Warn().Err(err).Msg("google calendar not connected; run `flowbook calendar auth`")
			} else {
				log.Error().Err(err).Msg("google calendar unavailable")
			}
			return calendar.Unavailable{Err: err}
		}
		return g
	}
}

// machine builds the booking conversation over cal.
func (a *app) machine(cal calendar.Client) *booking.Machine {
	services := make([]booking.Service, 0, len(a.cfg.Booking.Services))
	for _, s := range a.cfg.Booking.Services {
		services = append(services, booking.Service{ID: s.ID, Title: s.Title})
	}
	return booking.New(cal, a.configs, a.hooks, booking.Options{
		CalendarID: a.cfg.Calendar.CalendarID,
		Services:   services,
		Locale:     a.cfg.Booking.Locale,
	}, log)
}

// recordBooking appends confirmed bookings to the local ledger.
func (a *app) recordBooking(ctx context.Context, p hooks.Payload) error {
	rec := store.BookingRecord{}
	rec.EventID, _ = p.Data["eventId"].(string)
	rec.ServiceID, _ = p.Data["serviceId"].(string)
	rec.SlotStart, _ = p.Data["start"].(time.Time)
	if rec.EventID == "" {
		return errors.New("booking_confirmed payload has no eventId")
	}
	return a.bookings.Record(ctx, rec)
}
