// Package envelope implements the hybrid encryption used on the flow
// endpoint: an RSA-OAEP wrapped AES-128 session key protecting an AES-GCM
// payload. Responses reuse the session key with the bitwise complement of the
// request IV.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// KeySize is the length of the AES session key.
	KeySize = 16
	// IVSize is the GCM nonce length the peer platform uses.
	IVSize = 16
)

var (
	// ErrKeyMismatch means the stored private key could not unwrap the
	// session key. The peer platform is most likely caching a different
	// public key.
	ErrKeyMismatch = errors.New("session key unwrap failed")
	// ErrPayloadIntegrity means the session key was recovered but the
	// payload failed authentication.
	ErrPayloadIntegrity = errors.New("payload authentication failed")
	// ErrMalformedPayload means the decrypted payload is not JSON.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidEnvelope means the wire envelope itself is unusable.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is one encrypted request as it arrives on the wire.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// Parse decodes a request body into an Envelope.
func Parse(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.EncryptedFlowData == "" || env.EncryptedAESKey == "" || env.InitialVector == "" {
		return Envelope{}, fmt.Errorf("%w: missing fields", ErrInvalidEnvelope)
	}
	return env, nil
}

// Session holds the per-request symmetric key and request IV. It lives only
// for one request/response pair.
type Session struct {
	key []byte
	iv  []byte
}

// Decrypt unwraps the session key with priv and opens the payload. The
// returned plaintext is guaranteed to be syntactically valid JSON.
func Decrypt(env Envelope, priv *rsa.PrivateKey) ([]byte, *Session, error) {
	payload, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encrypted_flow_data: %v", ErrInvalidEnvelope, err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encrypted_aes_key: %v", ErrInvalidEnvelope, err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: initial_vector: %v", ErrInvalidEnvelope, err)
	}
	if len(iv) != IVSize {
		return nil, nil, fmt.Errorf("%w: initial_vector is %d bytes", ErrInvalidEnvelope, len(iv))
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, nil, ErrKeyMismatch
	}
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("%w: session key is %d bytes", ErrInvalidEnvelope, len(key))
	}

	s := &Session{key: key, iv: iv}
	plaintext, err := s.open(iv, payload)
	if err != nil {
		return nil, nil, err
	}
	if !json.Valid(plaintext) {
		return nil, nil, ErrMalformedPayload
	}
	return plaintext, s, nil
}

// Encrypt seals a response with the session key and the flipped request IV,
// returning base64 ciphertext.
func (s *Session) Encrypt(plaintext []byte) (string, error) {
	sealed, err := s.seal(FlipIV(s.iv), plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// FlipIV returns the bitwise complement of iv.
func FlipIV(iv []byte) []byte {
	out := make([]byte, len(iv))
	for i, b := range iv {
		out[i] = ^b
	}
	return out
}

func (s *Session) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

func (s *Session) seal(iv, plaintext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

func (s *Session) open(iv, ciphertext []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.Overhead() {
		return nil, fmt.Errorf("%w: payload shorter than tag", ErrPayloadIntegrity)
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrPayloadIntegrity
	}
	return plaintext, nil
}

// Seal is the peer side of the exchange: it wraps a fresh session key for
// pub and encrypts plaintext under a random IV. The returned Session can open
// the matching response with OpenResponse. Used by the CLI self-test and by
// tests that drive the endpoint.
func Seal(plaintext []byte, pub *rsa.PublicKey) (Envelope, *Session, error) {
	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	if _, err := rand.Read(key); err != nil {
		return Envelope{}, nil, err
	}
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("wrapping session key: %w", err)
	}

	s := &Session{key: key, iv: iv}
	sealed, err := s.seal(iv, plaintext)
	if err != nil {
		return Envelope{}, nil, err
	}
	return Envelope{
		EncryptedFlowData: base64.StdEncoding.EncodeToString(sealed),
		EncryptedAESKey:   base64.StdEncoding.EncodeToString(wrapped),
		InitialVector:     base64.StdEncoding.EncodeToString(iv),
	}, s, nil
}

// OpenResponse decrypts a base64 response produced by Encrypt.
func (s *Session) OpenResponse(body string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return s.open(FlipIV(s.iv), sealed)
}
