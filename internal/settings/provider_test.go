package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/soyeahso/flowbook/internal/store"
)

func testStore(t *testing.T) *store.SettingsStore {
	t.Helper()
	db, err := store.Open(":memory:", logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewSettingsStore(db)
}

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return newCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 30*time.Second, ""), mr
}

func TestBookingConfig_DefaultsWhenAbsent(t *testing.T) {
	p := NewProvider(testStore(t), nil, availability.DefaultConfig(), logging.New(nil, "silent"))

	cfg, err := p.BookingConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, availability.DefaultConfig(), cfg)
}

func TestBookingConfig_StoredOverridesDefaults(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, BookingConfigKey, `{"timeZone":"UTC","slotDurationMinutes":45}`))
	p := NewProvider(st, nil, availability.DefaultConfig(), logging.New(nil, "silent"))

	cfg, err := p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.TimeZone)
	assert.Equal(t, 45, cfg.SlotDurationMinutes)
	assert.Equal(t, availability.DefaultConfig().MaxAdvanceDays, cfg.MaxAdvanceDays)
	assert.Len(t, cfg.WorkingHours, 7)
}

func TestBookingConfig_InvalidStored(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, BookingConfigKey, `{"slotDurationMinutes":0}`))
	p := NewProvider(st, nil, availability.DefaultConfig(), logging.New(nil, "silent"))

	_, err := p.BookingConfig(ctx)
	assert.ErrorIs(t, err, availability.ErrInvalidConfig)

	require.NoError(t, st.Set(ctx, BookingConfigKey, `not json`))
	_, err = p.BookingConfig(ctx)
	assert.Error(t, err)
}

func TestSetBookingConfig_RejectsInvalid(t *testing.T) {
	p := NewProvider(testStore(t), nil, availability.DefaultConfig(), logging.New(nil, "silent"))
	cfg := availability.DefaultConfig()
	cfg.WorkingHours = cfg.WorkingHours[:3]
	assert.ErrorIs(t, p.SetBookingConfig(context.Background(), cfg), availability.ErrInvalidConfig)
}

func TestCache_ServesUntilInvalidated(t *testing.T) {
	st := testStore(t)
	cache, mr := testCache(t)
	ctx := context.Background()
	p := NewProvider(st, cache, availability.DefaultConfig(), logging.New(nil, "silent"))

	cfg := availability.DefaultConfig()
	cfg.TimeZone = "UTC"
	require.NoError(t, p.SetBookingConfig(ctx, cfg))

	got, err := p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC", got.TimeZone)
	assert.True(t, mr.Exists("flowbook:settings:"+BookingConfigKey))

	// A write behind the provider's back is not seen while cached.
	require.NoError(t, st.Set(ctx, BookingConfigKey, `{"timeZone":"Europe/Lisbon"}`))
	got, err = p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC", got.TimeZone)

	mr.FastForward(31 * time.Second)
	got, err = p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", got.TimeZone)

	require.NoError(t, p.ResetBookingConfig(ctx))
	assert.False(t, mr.Exists("flowbook:settings:"+BookingConfigKey))
	got, err = p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, availability.DefaultConfig().TimeZone, got.TimeZone)
}

func TestCache_RedisDownFallsBackToStore(t *testing.T) {
	st := testStore(t)
	cache, mr := testCache(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, BookingConfigKey, `{"timeZone":"UTC"}`))
	p := NewProvider(st, cache, availability.DefaultConfig(), logging.New(nil, "silent"))

	mr.Close()
	got, err := p.BookingConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC", got.TimeZone)
}

func TestCache_Ping(t *testing.T) {
	cache, _ := testCache(t)
	assert.NoError(t, cache.Ping(context.Background()))

	_, err := cache.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, errCacheMiss)
}
