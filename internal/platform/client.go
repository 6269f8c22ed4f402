// Package platform talks to the messaging platform's Graph API for the one
// thing the flow endpoint needs from it: keeping the business public key in
// sync.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/flowbook/internal/version"
)

// ErrNotConfigured is returned when the phone number id or access token is
// missing.
var ErrNotConfigured = errors.New("platform credentials not configured")

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client is a minimal Graph API client.
type Client struct {
	baseURL       string
	apiVersion    string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

// APIError is an error reply from the Graph API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform API error (%d)", e.Status)
	}
	return fmt.Sprintf("platform API error (%d, code %d): %s", e.Status, e.Code, e.Message)
}

// New creates a client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://graph.facebook.com"
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v21.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiVersion:    opts.APIVersion,
		phoneNumberID: opts.PhoneNumberID,
		accessToken:   opts.AccessToken,
		client:        &http.Client{Timeout: opts.Timeout},
	}
}

// Configured reports whether registration can be attempted.
func (c *Client) Configured() bool {
	return c.phoneNumberID != "" && c.accessToken != ""
}

func (c *Client) encryptionURL() string {
	return fmt.Sprintf("%s/%s/%s/whatsapp_business_encryption", c.baseURL, c.apiVersion, url.PathEscape(c.phoneNumberID))
}

// RegisterPublicKey uploads the PEM public key the platform must encrypt
// session keys with.
func (c *Client) RegisterPublicKey(ctx context.Context, publicPEM string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	form := url.Values{"business_public_key": {publicPEM}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.encryptionURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(req, &out); err != nil {
		return err
	}
	if !out.Success {
		return errors.New("platform did not accept the public key")
	}
	return nil
}

// RemoteKey is the key the platform currently holds for the number.
type RemoteKey struct {
	PublicPEM       string `json:"business_public_key"`
	SignatureStatus string `json:"business_public_key_signature_status"`
}

// PublicKey fetches the key the platform currently holds.
func (c *Client) PublicKey(ctx context.Context) (RemoteKey, error) {
	if !c.Configured() {
		return RemoteKey{}, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.encryptionURL(), nil)
	if err != nil {
		return RemoteKey{}, fmt.Errorf("failed to create request: %w", err)
	}

	var out struct {
		Data []RemoteKey `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return RemoteKey{}, err
	}
	if len(out.Data) == 0 {
		return RemoteKey{}, errors.New("platform holds no public key for this number")
	}
	return out.Data[0], nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var wrapped struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
			apiErr.Code = wrapped.Error.Code
			apiErr.Type = wrapped.Error.Type
			apiErr.Message = wrapped.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
