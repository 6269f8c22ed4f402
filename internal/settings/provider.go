// Package settings loads the per-business booking policy from the settings
// store, with an optional Redis cache in front of it.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/soyeahso/flowbook/internal/store"
)

// BookingConfigKey is the settings key holding the JSON booking policy.
const BookingConfigKey = "booking_config"

// Store is the persistent key-value backend.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Provider resolves the booking policy for each request.
type Provider struct {
	store    Store
	cache    *Cache
	defaults availability.CalendarBookingConfig
	log      *logging.Logger
}

// NewProvider creates a provider. cache may be nil.
func NewProvider(st Store, cache *Cache, defaults availability.CalendarBookingConfig, log *logging.Logger) *Provider {
	return &Provider{store: st, cache: cache, defaults: defaults, log: log.Sub("settings")}
}

// BookingConfig returns the stored policy layered over the defaults. Cache
// failures are logged and fall through to the store.
func (p *Provider) BookingConfig(ctx context.Context) (availability.CalendarBookingConfig, error) {
	raw, err := p.cached(ctx)
	if err != nil {
		raw, err = p.store.Get(ctx, BookingConfigKey)
		if errors.Is(err, store.ErrNotFound) {
			return p.defaults, nil
		}
		if err != nil {
			return availability.CalendarBookingConfig{}, err
		}
		p.fill(ctx, raw)
	}

	cfg := p.defaults
	cfg.WorkingHours = nil
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return availability.CalendarBookingConfig{}, fmt.Errorf("decoding %s: %w", BookingConfigKey, err)
	}
	if len(cfg.WorkingHours) == 0 {
		cfg.WorkingHours = p.defaults.WorkingHours
	}
	if err := cfg.Validate(); err != nil {
		return availability.CalendarBookingConfig{}, err
	}
	return cfg, nil
}

// SetBookingConfig validates and stores a policy.
func (p *Provider) SetBookingConfig(ctx context.Context, cfg availability.CalendarBookingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, BookingConfigKey, string(b)); err != nil {
		return err
	}
	p.invalidate(ctx)
	return nil
}

// ResetBookingConfig removes the stored policy so defaults apply again.
func (p *Provider) ResetBookingConfig(ctx context.Context) error {
	if err := p.store.Delete(ctx, BookingConfigKey); err != nil {
		return err
	}
	p.invalidate(ctx)
	return nil
}

func (p *Provider) cached(ctx context.Context) (string, error) {
	if p.cache == nil {
		return "", errCacheMiss
	}
	v, err := p.cache.Get(ctx, BookingConfigKey)
	if err != nil && !errors.Is(err, errCacheMiss) {
		p.log.Warn().Err(err).Msg("settings cache read failed")
	}
	return v, err
}

func (p *Provider) fill(ctx context.Context, raw string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, BookingConfigKey, raw); err != nil {
		p.log.Warn().Err(err).Msg("settings cache write failed")
	}
}

func (p *Provider) invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, BookingConfigKey); err != nil {
		p.log.Warn().Err(err).Msg("settings cache invalidation failed")
	}
}
