package gateway

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/flowbook/internal/envelope"
	"github.com/soyeahso/flowbook/internal/hooks"
	"github.com/soyeahso/flowbook/internal/logging"
	"github.com/soyeahso/flowbook/internal/metrics"
	"github.com/soyeahso/flowbook/internal/platform"
	"github.com/soyeahso/flowbook/internal/store"
)

// KeyStore persists the endpoint's RSA key pair as PEM text. Missing keys
// are reported as store.ErrNotFound.
type KeyStore interface {
	PrivateKey(ctx context.Context) (string, error)
	PublicKey(ctx context.Context) (string, error)
	SetKeyPair(ctx context.Context, privatePEM, publicPEM, fingerprint string) error
	MarkRegistered(ctx context.Context, at time.Time) error
}

// Registrar uploads the public key to the messaging platform.
type Registrar interface {
	RegisterPublicKey(ctx context.Context, publicPEM string) error
}

const registerTimeout = 30 * time.Second

// KeyBootstrapper hands out the private key, generating and registering a
// pair the first time one is needed.
type KeyBootstrapper struct {
	store     KeyStore
	registrar Registrar
	hooks     *hooks.Manager
	metrics   *metrics.Metrics
	log       *logging.Logger
	bits      int

	mu        sync.Mutex
	cachedPEM string
	cached    *rsa.PrivateKey

	registering sync.WaitGroup
}

// NewKeyBootstrapper creates a bootstrapper. registrar, hm and m may be nil.
func NewKeyBootstrapper(st KeyStore, registrar Registrar, hm *hooks.Manager, m *metrics.Metrics, log *logging.Logger) *KeyBootstrapper {
	return &KeyBootstrapper{
		store:     st,
		registrar: registrar,
		hooks:     hm,
		metrics:   m,
		log:       log.Sub("keys"),
		bits:      envelope.DefaultKeyBits,
	}
}

// Configured reports whether a private key is stored.
func (b *KeyBootstrapper) Configured(ctx context.Context) (bool, error) {
	_, err := b.store.PrivateKey(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PrivateKey returns the parsed private key. When none is stored a new pair
// is generated and persisted, and registration with the platform starts in
// the background.
func (b *KeyBootstrapper) PrivateKey(ctx context.Context) (*rsa.PrivateKey, error) {
	pemText, err := b.store.PrivateKey(ctx)
	if errors.Is(err, store.ErrNotFound) {
		pemText, err = b.bootstrap(ctx)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil && b.cachedPEM == pemText {
		return b.cached, nil
	}
	key, err := envelope.ParsePrivateKey(pemText)
	if err != nil {
		return nil, fmt.Errorf("stored private key: %w", err)
	}
	b.cachedPEM, b.cached = pemText, key
	return key, nil
}

// bootstrap generates the first key pair. Concurrent callers share one pair.
func (b *KeyBootstrapper) bootstrap(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pemText, err := b.store.PrivateKey(ctx)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return pemText, err
	}

	kp, fingerprint, err := b.generate(ctx)
	if err != nil {
		return "", err
	}
	b.log.Info().Str("fingerprint", fingerprint).Msg("no key pair configured, generated a new one")
	if b.hooks != nil {
		b.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventKeyBootstrapped, map[string]any{
			"fingerprint": fingerprint,
		})
	}

	b.registering.Add(1)
	go func() {
		defer b.registering.Done()
		regCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registerTimeout)
		defer cancel()
		if err := b.Register(regCtx); err != nil {
			b.log.Warn().Err(err).Msg("public key registration deferred")
		}
	}()
	return kp.PrivatePEM, nil
}

// Rotate replaces the stored pair with a freshly generated one. The new
// public key is not registered.
func (b *KeyBootstrapper) Rotate(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, fingerprint, err := b.generate(ctx)
	return fingerprint, err
}

func (b *KeyBootstrapper) generate(ctx context.Context) (envelope.KeyPair, string, error) {
	kp, err := envelope.GenerateKeyPair(b.bits)
	if err != nil {
		return envelope.KeyPair{}, "", err
	}
	pub, err := envelope.ParsePublicKey(kp.PublicPEM)
	if err != nil {
		return envelope.KeyPair{}, "", err
	}
	fingerprint := envelope.Fingerprint(pub)
	if err := b.store.SetKeyPair(ctx, kp.PrivatePEM, kp.PublicPEM, fingerprint); err != nil {
		return envelope.KeyPair{}, "", err
	}
	return kp, fingerprint, nil
}

// Register uploads the stored public key to the platform and records the
// registration time.
func (b *KeyBootstrapper) Register(ctx context.Context) error {
	if b.registrar == nil {
		b.countRegistration("skipped")
		return platform.ErrNotConfigured
	}
	publicPEM, err := b.store.PublicKey(ctx)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	if err := b.registrar.RegisterPublicKey(ctx, publicPEM); err != nil {
		if errors.Is(err, platform.ErrNotConfigured) {
			b.countRegistration("skipped")
		} else {
			b.countRegistration("error")
		}
		return fmt.Errorf("registering public key: %w", err)
	}
	b.countRegistration("ok")
	if err := b.store.MarkRegistered(ctx, time.Now()); err != nil {
		return err
	}
	b.log.Info().Msg("public key registered with platform")
	if b.hooks != nil {
		b.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventKeyRegistered, nil)
	}
	return nil
}

// Wait blocks until background registrations finish.
func (b *KeyBootstrapper) Wait() {
	b.registering.Wait()
}

func (b *KeyBootstrapper) countRegistration(result string) {
	if b.metrics != nil {
		b.metrics.KeyRegistration(result)
	}
}
