package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPEM = "-----BEGIN PUBLIC KEY-----\nMIIB\n-----END PUBLIC KEY-----\n"

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:       srv.URL,
		APIVersion:    "v21.0",
		PhoneNumberID: "1234567890",
		AccessToken:   "secret-token",
	})
}

func TestRegisterPublicKey(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v21.0/1234567890/whatsapp_business_encryption", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "flowbook/"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, testPEM, r.PostForm.Get("business_public_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.RegisterPublicKey(context.Background(), testPEM))
}

func TestRegisterPublicKey_APIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	})

	err := c.RegisterPublicKey(context.Background(), testPEM)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 190, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "Invalid OAuth access token.")
}

func TestRegisterPublicKey_NotAccepted(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})
	assert.Error(t, c.RegisterPublicKey(context.Background(), testPEM))
}

func TestRegisterPublicKey_NotConfigured(t *testing.T) {
	c := New(Options{})
	assert.False(t, c.Configured())
	assert.ErrorIs(t, c.RegisterPublicKey(context.Background(), testPEM), ErrNotConfigured)
	_, err := c.PublicKey(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPublicKey(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"data":[{"business_public_key":"PEM","business_public_key_signature_status":"VALID"}]}`))
	})

	key, err := c.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PEM", key.PublicPEM)
	assert.Equal(t, "VALID", key.SignatureStatus)
}

func TestPublicKey_Empty(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	_, err := c.PublicKey(context.Background())
	assert.Error(t, err)
}

func TestAPIError_NoBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.RegisterPublicKey(context.Background(), testPEM)
	assert.EqualError(t, err, "platform API error (502)")
}
