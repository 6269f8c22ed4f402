package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/flowbook/internal/booking"
	"github.com/soyeahso/flowbook/internal/envelope"
	"github.com/soyeahso/flowbook/internal/flow"
	"github.com/soyeahso/flowbook/internal/logging"
)

const maxBodyBytes = 1 << 20

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LivenessResponse is returned by GET on the flow path.
type LivenessResponse struct {
	Status  string `json:"status"` // "ready" | "not_configured"
	Message string `json:"message"`
}

// ErrorResponse is the body of every JSON error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, hint string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Hint: hint})
}

// handleHealth reports that the process is serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path, "")
}

// handleLiveness tells operators whether the endpoint can decrypt traffic.
// It never touches the envelope protocol.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	ok, err := s.keys.Configured(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("key store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, LivenessResponse{
			Status:  "not_configured",
			Message: "key store unavailable",
		})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, LivenessResponse{
			Status:  "not_configured",
			Message: "no private key yet; one is generated on the first flow request",
		})
		return
	}
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ready", Message: "flow endpoint ready"})
}

// handleFlow answers one encrypted flow request.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.log.With("request_id", w.Header().Get(requestIDHeader))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.metrics.DecryptFailed("invalid_envelope")
		writeError(w, http.StatusBadRequest, "invalid_envelope", "request body could not be read", "")
		return
	}

	if s.appSecret != "" && !VerifySignature(s.appSecret, body, r.Header.Get(SignatureHeader)) {
		log.Warn().Msg("request signature mismatch")
		s.metrics.DecryptFailed("signature")
		writeError(w, StatusInvalidSignature, "invalid_signature", "request signature does not match", "")
		return
	}

	priv, err := s.keys.PrivateKey(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("private key unavailable")
		writeError(w, http.StatusInternalServerError, "key_unavailable", "private key unavailable", "")
		return
	}

	env, err := envelope.Parse(body)
	if err != nil {
		s.decryptFailed(w, log, err)
		return
	}
	plaintext, session, err := envelope.Decrypt(env, priv)
	if err != nil {
		s.decryptFailed(w, log, err)
		return
	}
	req, err := flow.Decode(plaintext)
	if err != nil {
		s.decryptFailed(w, log, err)
		return
	}

	res := s.machine.Handle(r.Context(), req)
	out, err := res.Response.Marshal()
	if err == nil {
		var cipherText string
		cipherText, err = session.Encrypt(out)
		if err == nil {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, cipherText)
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("encrypting response")
		writeError(w, http.StatusInternalServerError, "processing_error", "response could not be encrypted", "")
		s.metrics.ObserveFlow(actionLabel(req.Action), "error", time.Since(start))
		return
	}

	if res.Outcome == booking.OutcomeConfirmed {
		s.metrics.BookingCreated()
	}
	s.metrics.ObserveFlow(actionLabel(req.Action), outcomeLabel(res), time.Since(start))
}

// decryptFailed answers a request that never reached the state machine.
func (s *Server) decryptFailed(w http.ResponseWriter, log *logging.Logger, err error) {
	switch {
	case errors.Is(err, envelope.ErrKeyMismatch):
		log.Error().Str("kind", "key_mismatch").Msg("session key unwrap failed; platform holds a different public key")
		s.metrics.DecryptFailed("key_mismatch")
		writeError(w, http.StatusMisdirectedRequest, "key_mismatch",
			"request was encrypted for a different public key",
			"run 'flowbook keys register' to upload the current public key")
	case errors.Is(err, envelope.ErrPayloadIntegrity):
		log.Warn().Str("kind", "payload_integrity").Msg("payload authentication failed")
		s.metrics.DecryptFailed("payload_integrity")
		writeError(w, http.StatusBadRequest, "payload_integrity", "payload failed authentication", "")
	case errors.Is(err, envelope.ErrInvalidEnvelope):
		log.Warn().Str("kind", "invalid_envelope").Err(err).Msg("invalid envelope")
		s.metrics.DecryptFailed("invalid_envelope")
		writeError(w, http.StatusBadRequest, "invalid_envelope", "request is not a valid encrypted envelope", "")
	default:
		log.Error().Str("kind", "malformed_payload").Err(err).Msg("decrypted payload rejected")
		s.metrics.DecryptFailed("malformed_payload")
		writeError(w, http.StatusInternalServerError, "processing_error", "request could not be processed", "")
	}
}

// actionLabel bounds the action metric label to the known actions.
func actionLabel(a flow.Action) string {
	if action, ok := flow.ParseAction(string(a)); ok {
		return string(action)
	}
	return "unknown"
}

func outcomeLabel(res booking.Result) string {
	if res.Err == nil {
		return string(res.Outcome)
	}
	var be *booking.Error
	if errors.As(res.Err, &be) {
		return string(be.Kind)
	}
	return "error"
}
