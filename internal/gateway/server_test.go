package gateway

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/soyeahso/flowbook/internal/booking"
	"github.com/soyeahso/flowbook/internal/calendar"
	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/envelope"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/soyeahso/flowbook/internal/metrics"
)

// Monday, 2026-03-02 08:00 UTC.
var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type staticConfig struct {
	cfg availability.CalendarBookingConfig
}

func (s staticConfig) BookingConfig(context.Context) (availability.CalendarBookingConfig, error) {
	return s.cfg, nil
}

func testPolicy() availability.CalendarBookingConfig {
	cfg := availability.CalendarBookingConfig{
		TimeZone:            "UTC",
		SlotDurationMinutes: 60,
		MaxAdvanceDays:      14,
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		cfg.WorkingHours = append(cfg.WorkingHours, availability.WorkingHoursDay{
			Weekday: wd,
			Enabled: true,
			Start:   "09:00",
			End:     "12:00",
		})
	}
	return cfg
}

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	keys    *KeyBootstrapper
	reg     *fakeRegistrar
	cal     *calendar.Memory
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg config.ServerConfig, opts ...ServerOption) *testEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	m := metrics.New()
	reg := &fakeRegistrar{}
	keys := testBootstrapper(t, testKeyStore(t), reg, nil, m)
	cal := calendar.NewMemory()
	machine := booking.New(cal, staticConfig{cfg: testPolicy()}, nil, booking.Options{
		CalendarID: "primary",
		Clock:      func() time.Time { return now },
	}, log)

	srv := New(cfg, machine, keys, log, append([]ServerOption{WithMetrics(m)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(keys.Wait)
	return &testEnv{srv: srv, ts: ts, keys: keys, reg: reg, cal: cal, metrics: m}
}

func defaultServerConfig() config.ServerConfig {
	return config.Defaults().Server
}

// publicKey provisions a key pair and returns its public half, as the
// platform would hold it after registration.
func (e *testEnv) publicKey(t *testing.T) *rsa.PublicKey {
	t.Helper()
	key, err := e.keys.PrivateKey(context.Background())
	require.NoError(t, err)
	e.keys.Wait()
	return &key.PublicKey
}

// post encrypts payload for pub the way the platform does and posts it.
func (e *testEnv) post(t *testing.T, pub *rsa.PublicKey, payload any, header http.Header) (*http.Response, *envelope.Session, []byte) {
	t.Helper()
	plaintext, err := json.Marshal(payload)
	require.NoError(t, err)
	env, session, err := envelope.Seal(plaintext, pub)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	resp, raw := e.postRaw(t, body, header)
	return resp, session, raw
}

func (e *testEnv) postRaw(t *testing.T, body []byte, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/flow", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// exchange performs one successful encrypted round trip.
func (e *testEnv) exchange(t *testing.T, pub *rsa.PublicKey, payload any) map[string]any {
	t.Helper()
	resp, session, raw := e.post(t, pub, payload, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	plaintext, err := session.OpenResponse(string(raw))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(plaintext, &out))
	return out
}

func decodeError(t *testing.T, raw []byte) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &e), string(raw))
	return e
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestFlow_Ping(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	out := e.exchange(t, pub, map[string]any{"version": "3.0", "action": "ping"})
	assert.Equal(t, map[string]any{"data": map[string]any{"status": "active"}}, out)

	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_flow_requests_total",
		map[string]string{"action": "ping", "outcome": "ping"}))
}

func TestFlow_BookingConversation(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	out := e.exchange(t, pub, map[string]any{"action": "INIT", "flow_token": "tok-1"})
	assert.Equal(t, "BOOKING_START", out["screen"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "2026-03-02", data["min_date"])

	out = e.exchange(t, pub, map[string]any{
		"action":     "data_exchange",
		"screen":     "BOOKING_START",
		"flow_token": "tok-1",
		"data":       map[string]any{"selected_date": "2026-03-03"},
	})
	require.Equal(t, "SELECT_TIME", out["screen"])
	slots := out["data"].(map[string]any)["slots"].([]any)
	require.Len(t, slots, 3)
	first := slots[0].(map[string]any)
	assert.Equal(t, "2026-03-03T09:00:00.000Z", first["id"])
	assert.Equal(t, "09:00", first["title"])

	out = e.exchange(t, pub, map[string]any{
		"action":     "data_exchange",
		"screen":     "SELECT_TIME",
		"flow_token": "tok-1",
		"data":       map[string]any{"selected_date": "2026-03-03", "selected_slot": first["id"]},
	})
	require.Equal(t, "CUSTOMER_INFO", out["screen"])

	out = e.exchange(t, pub, map[string]any{
		"action":     "data_exchange",
		"screen":     "CUSTOMER_INFO",
		"flow_token": "tok-1",
		"data": map[string]any{
			"selected_date": "2026-03-03",
			"selected_slot": first["id"],
			"customer_name": "Ana",
		},
	})
	_, hasScreen := out["screen"]
	assert.False(t, hasScreen, "confirmation closes the flow")
	data = out["data"].(map[string]any)
	assert.NotEmpty(t, data["event_id"])
	assert.Contains(t, data["confirmation_message"], "Ana")
	require.Len(t, e.cal.Events("primary"), 1)

	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_bookings_created_total", nil))
	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_flow_requests_total",
		map[string]string{"action": "data_exchange", "outcome": "confirmed"}))
}

func TestFlow_ValidationStaysEncrypted(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	out := e.exchange(t, pub, map[string]any{
		"action": "data_exchange",
		"screen": "BOOKING_START",
		"data":   map[string]any{},
	})
	assert.Equal(t, "BOOKING_START", out["screen"])
	assert.Equal(t, true, out["data"].(map[string]any)["has_error"])

	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_flow_requests_total",
		map[string]string{"action": "data_exchange", "outcome": "validation"}))
}

func TestFlow_UnknownActionMetricLabel(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	out := e.exchange(t, pub, map[string]any{
		"action": "surprise_me",
		"screen": "BOOKING_START",
		"data":   map[string]any{},
	})
	assert.Equal(t, true, out["data"].(map[string]any)["has_error"])

	reg := e.metrics.Registry()
	assert.Equal(t, 1.0, counterValue(t, reg, "flowbook_flow_requests_total",
		map[string]string{"action": "unknown", "outcome": "unknown_transition"}))
	assert.Equal(t, 0.0, counterValue(t, reg, "flowbook_flow_requests_total",
		map[string]string{"action": "surprise_me", "outcome": "unknown_transition"}))
}

func TestActionLabel(t *testing.T) {
	assert.Equal(t, "INIT", actionLabel("init"))
	assert.Equal(t, "data_exchange", actionLabel("DATA_EXCHANGE"))
	assert.Equal(t, "ping", actionLabel("PING"))
	assert.Equal(t, "unknown", actionLabel("drop table"))
	assert.Equal(t, "unknown", actionLabel(""))
}

func TestFlow_KeyMismatch(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	e.publicKey(t)

	stale, err := envelope.GenerateKeyPair(testKeyBits)
	require.NoError(t, err)
	stalePub, err := envelope.ParsePublicKey(stale.PublicPEM)
	require.NoError(t, err)

	resp, _, raw := e.post(t, stalePub, map[string]any{"action": "ping"}, nil)
	assert.Equal(t, http.StatusMisdirectedRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := decodeError(t, raw)
	assert.Equal(t, "key_mismatch", body.Error)
	assert.NotEmpty(t, body.Hint)

	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_decrypt_failures_total",
		map[string]string{"kind": "key_mismatch"}))
}

func TestFlow_PayloadIntegrity(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	env, _, err := envelope.Seal([]byte(`{"action":"ping"}`), pub)
	require.NoError(t, err)
	tampered := []byte(env.EncryptedFlowData)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}
	env.EncryptedFlowData = string(tampered)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, raw := e.postRaw(t, body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "payload_integrity", decodeError(t, raw).Error)
}

func TestFlow_InvalidEnvelope(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	e.publicKey(t)

	for _, body := range []string{"not json", `{}`, `{"encrypted_flow_data":"!!","encrypted_aes_key":"x","initial_vector":"y"}`} {
		resp, raw := e.postRaw(t, []byte(body), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "invalid_envelope", decodeError(t, raw).Error, body)
	}
}

func TestFlow_MalformedPayload(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)

	resp, _, raw := e.post(t, pub, map[string]any{"screen": "BOOKING_START"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, "processing_error", body.Error)
	assert.NotContains(t, string(raw), "BOOKING_START")
}

func TestFlow_Signature(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig(), WithAppSecret("app-secret"))
	pub := e.publicKey(t)

	resp, _, raw := e.post(t, pub, map[string]any{"action": "ping"}, nil)
	assert.Equal(t, StatusInvalidSignature, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decodeError(t, raw).Error)

	env, session, err := envelope.Seal([]byte(`{"action":"ping"}`), pub)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, raw = e.postRaw(t, body, http.Header{SignatureHeader: {Sign("app-secret", body)}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	plaintext, err := session.OpenResponse(string(raw))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"status":"active"}}`, string(plaintext))
}

func TestFlow_RateLimited(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	e := newTestEnv(t, cfg)
	pub := e.publicKey(t)

	e.exchange(t, pub, map[string]any{"action": "ping"})

	resp, _, raw := e.post(t, pub, map[string]any{"action": "ping"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", decodeError(t, raw).Error)

	// The liveness probe is not limited.
	live, err := http.Get(e.ts.URL + "/flow")
	require.NoError(t, err)
	live.Body.Close()
	assert.Equal(t, http.StatusOK, live.StatusCode)
}

func TestFlow_BootstrapsKeyOnFirstRequest(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())

	var live LivenessResponse
	resp, err := http.Get(e.ts.URL + "/flow")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	resp.Body.Close()
	assert.Equal(t, "not_configured", live.Status)

	// The platform has no key yet, so it cannot build a valid envelope.
	postResp, _ := e.postRaw(t, []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, postResp.StatusCode)
	e.keys.Wait()

	resp, err = http.Get(e.ts.URL + "/flow")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	resp.Body.Close()
	assert.Equal(t, "ready", live.Status)
	assert.Equal(t, int32(1), e.reg.calls.Load())
	assert.Equal(t, 1.0, counterValue(t, e.metrics.Registry(), "flowbook_key_registrations_total",
		map[string]string{"result": "ok"}))
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())

	resp, err := http.Get(e.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())
	pub := e.publicKey(t)
	e.exchange(t, pub, map[string]any{"action": "ping"})

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "flowbook_flow_requests_total")
	assert.Contains(t, string(raw), "flowbook_flow_request_duration_seconds")
}

func TestNotFound(t *testing.T) {
	e := newTestEnv(t, defaultServerConfig())

	resp, err := http.Get(e.ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, "not_found", body.Error)
	assert.Contains(t, body.Message, "/nope")
}

func TestCustomFlowPath(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.FlowPath = "/webhooks/booking"
	e := newTestEnv(t, cfg)

	resp, err := http.Get(e.ts.URL + "/webhooks/booking")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(e.ts.URL+"/flow", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.ServerConfig
		want string
	}{
		{config.ServerConfig{Bind: "loopback", Port: 8787}, "127.0.0.1:8787"},
		{config.ServerConfig{Bind: "lan", Port: 8787}, "0.0.0.0:8787"},
		{config.ServerConfig{Bind: "auto", Port: 80}, "0.0.0.0:80"},
		{config.ServerConfig{Bind: "custom", CustomBindHost: "10.1.2.3", Port: 9000}, "10.1.2.3:9000"},
		{config.ServerConfig{Bind: "custom", CustomBindHost: "::1", Port: 9000}, "[::1]:9000"},
		{config.ServerConfig{Bind: "", Port: 1}, "127.0.0.1:1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)
	var events []string
	record := func(_ context.Context, p hooks.Payload) error {
		events = append(events, p.Event)
		return nil
	}
	hm.On(hooks.EventServerStart, "test", record)
	hm.On(hooks.EventServerStop, "test", record)

	cfg := defaultServerConfig()
	cfg.Port = 0
	keys := testBootstrapper(t, testKeyStore(t), nil, nil, nil)
	srv := New(cfg, booking.New(calendar.NewMemory(), staticConfig{cfg: testPolicy()}, nil, booking.Options{}, log), keys, log, WithHooks(hm))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{hooks.EventServerStart, hooks.EventServerStop}, events)
}
