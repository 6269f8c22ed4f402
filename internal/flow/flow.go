// Package flow defines the decrypted request and response bodies exchanged
// with the interactive form client.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedRequest is returned when a decrypted body does not describe a
// flow request.
var ErrMalformedRequest = errors.New("malformed flow request")

// Action is what the client asks the server to do.
type Action string

const (
	ActionInit         Action = "INIT"
	ActionDataExchange Action = "data_exchange"
	ActionBack         Action = "BACK"
	ActionPing         Action = "ping"
)

// ParseAction matches an action name case-insensitively.
func ParseAction(s string) (Action, bool) {
	for _, a := range []Action{ActionInit, ActionDataExchange, ActionBack, ActionPing} {
		if strings.EqualFold(s, string(a)) {
			return a, true
		}
	}
	return Action(s), false
}

// Request is a decrypted client request. Data carries the screen submission
// and the booking draft echoed back by the client.
type Request struct {
	Version   string         `json:"version,omitempty"`
	Action    Action         `json:"action"`
	Screen    string         `json:"screen,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	FlowToken string         `json:"flow_token,omitempty"`
}

// ErrorNotification reports whether the request is the client telling us a
// previous response failed on its side. Such requests are only acknowledged.
// Rendered screens carry an empty error_message that the client echoes back,
// so only a non-empty value counts.
func (r Request) ErrorNotification() (string, bool) {
	for _, key := range []string{"error", "error_message"} {
		v, ok := r.Data[key]
		if !ok || v == nil || v == false {
			continue
		}
		if msg := strings.TrimSpace(fmt.Sprint(v)); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// String reads a trimmed string field from Data.
func (r Request) String(key string) string {
	v, ok := r.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Response is the plaintext body returned to the client before encryption.
// An empty Screen with a close payload in Data ends the flow.
type Response struct {
	Screen string         `json:"screen,omitempty"`
	Data   map[string]any `json:"data"`
}

// Marshal encodes the response for encryption.
func (r Response) Marshal() ([]byte, error) {
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	return json.Marshal(r)
}

const requestSchema = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "version":    {"type": "string"},
    "action":     {"type": "string", "minLength": 1},
    "screen":     {"type": "string"},
    "data":       {"type": ["object", "null"]},
    "flow_token": {"type": "string"}
  }
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
})

// Decode validates plaintext against the request schema and decodes it.
func Decode(plaintext []byte) (Request, error) {
	schema, err := loadSchema()
	if err != nil {
		return Request{}, fmt.Errorf("loading request schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(plaintext))
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return Request{}, fmt.Errorf("%w: %s", ErrMalformedRequest, strings.Join(errs, "; "))
	}

	var req Request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if action, ok := ParseAction(string(req.Action)); ok {
		req.Action = action
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return req, nil
}
