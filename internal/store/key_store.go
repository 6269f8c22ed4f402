package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KeyStore keeps the single RSA key pair used by the flow endpoint.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a key store using the given database.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// KeyInfo describes the stored key pair without its private half.
type KeyInfo struct {
	PublicPEM    string
	Fingerprint  string
	CreatedAt    time.Time
	RegisteredAt *time.Time
}

// PrivateKey returns the PEM encoded private key, or ErrNotFound.
func (k *KeyStore) PrivateKey(ctx context.Context) (string, error) {
	var pem string
	err := k.db.sql.QueryRowContext(ctx, `SELECT private_pem FROM key_pair WHERE id = 1`).Scan(&pem)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}
	return pem, nil
}

// PublicKey returns the PEM encoded public key, or ErrNotFound.
func (k *KeyStore) PublicKey(ctx context.Context) (string, error) {
	info, err := k.Info(ctx)
	if err != nil {
		return "", err
	}
	return info.PublicPEM, nil
}

// SetKeyPair replaces the stored key pair. The registration mark is cleared.
func (k *KeyStore) SetKeyPair(ctx context.Context, privatePEM, publicPEM, fingerprint string) error {
	_, err := k.db.sql.ExecContext(ctx,
		`INSERT INTO key_pair (id, private_pem, public_pem, fingerprint, created_at, registered_at)
		 VALUES (1, ?, ?, ?, ?, NULL)
		 ON CONFLICT(id) DO UPDATE SET
		   private_pem = excluded.private_pem,
		   public_pem = excluded.public_pem,
		   fingerprint = excluded.fingerprint,
		   created_at = excluded.created_at,
		   registered_at = NULL`,
		privatePEM, publicPEM, fingerprint, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing key pair: %w", err)
	}
	k.db.log.Info().Str("fingerprint", fingerprint).Msg("key pair stored")
	return nil
}

// MarkRegistered records that the public key was accepted by the platform.
func (k *KeyStore) MarkRegistered(ctx context.Context, at time.Time) error {
	res, err := k.db.sql.ExecContext(ctx,
		`UPDATE key_pair SET registered_at = ? WHERE id = 1`, at.UTC().Format(time.DateTime))
	if err != nil {
		return fmt.Errorf("marking key registered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Info returns metadata about the stored key pair.
func (k *KeyStore) Info(ctx context.Context) (KeyInfo, error) {
	var info KeyInfo
	var createdAt string
	var registeredAt sql.NullString
	err := k.db.sql.QueryRowContext(ctx,
		`SELECT public_pem, fingerprint, created_at, registered_at FROM key_pair WHERE id = 1`,
	).Scan(&info.PublicPEM, &info.Fingerprint, &createdAt, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyInfo{}, ErrNotFound
	}
	if err != nil {
		return KeyInfo{}, fmt.Errorf("reading key pair: %w", err)
	}

	info.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	if registeredAt.Valid {
		t, err := time.Parse(time.DateTime, registeredAt.String)
		if err == nil {
			info.RegisteredAt = &t
		}
	}
	return info, nil
}
