// Package secrets encrypts venue API credentials at rest (§1 ambient
// security concern: pluggable venue clients still need a place to keep
// API keys and signing keys that isn't plaintext in a config file).
package secrets

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"

	"arbengine/pkg/crypto"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/hkdf"
)

// Credential is one venue's stored secret material. PrivateKeyPEM is used
// by venues that sign requests (Kalshi's RSA key) rather than presenting a
// bearer secret; a venue client uses whichever field its auth scheme needs.
type Credential struct {
	Venue         string `json:"venue"`
	APIKey        string `json:"api_key,omitempty"`
	APISecret     string `json:"api_secret,omitempty"`
	PrivateKeyPEM string `json:"private_key_pem,omitempty"`
}

// Store persists Credentials encrypted at rest with AES-256-GCM
// (arbengine/pkg/crypto), each under a subkey derived from the master
// encryption key via HKDF-SHA256 with the venue name as context, so a
// single compromised subkey never exposes another venue's credential and
// the master key itself is never used directly for bulk encryption.
type Store struct {
	db        *sql.DB
	masterKey []byte
}

// Open opens (creating if needed) the SQLite-backed credential store at
// path, sealed with masterKey (must be exactly 32 bytes; see
// config.SecretsConfig.EncryptionKey).
func Open(path string, masterKey []byte) (*Store, error) {
	if err := crypto.ValidateKey(masterKey); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS venue_credentials (
			venue TEXT PRIMARY KEY,
			api_key_enc TEXT NOT NULL,
			api_secret_enc TEXT NOT NULL,
			private_key_enc TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, masterKey: masterKey}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// subkey derives a venue-scoped AES-256 key from the master key so that
// encrypting N venues' credentials never reuses one key across venues.
func (s *Store) subkey(venue string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, s.masterKey, nil, []byte("arbengine-venue-credential:"+venue))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secrets: derive subkey for %s: %w", venue, err)
	}
	return key, nil
}

// Put encrypts and stores cred, keyed by cred.Venue.
func (s *Store) Put(ctx context.Context, cred Credential) error {
	key, err := s.subkey(cred.Venue)
	if err != nil {
		return err
	}
	apiKeyEnc, err := crypto.Encrypt(cred.APIKey, key)
	if err != nil {
		return fmt.Errorf("secrets: encrypt api_key: %w", err)
	}
	apiSecretEnc, err := crypto.Encrypt(cred.APISecret, key)
	if err != nil {
		return fmt.Errorf("secrets: encrypt api_secret: %w", err)
	}
	privKeyEnc, err := crypto.Encrypt(cred.PrivateKeyPEM, key)
	if err != nil {
		return fmt.Errorf("secrets: encrypt private_key_pem: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO venue_credentials (venue, api_key_enc, api_secret_enc, private_key_enc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(venue) DO UPDATE SET
			api_key_enc = excluded.api_key_enc,
			api_secret_enc = excluded.api_secret_enc,
			private_key_enc = excluded.private_key_enc`,
		cred.Venue, apiKeyEnc, apiSecretEnc, privKeyEnc)
	return err
}

// Get decrypts and returns the stored credential for venue, or
// (Credential{}, false, nil) if none is stored.
func (s *Store) Get(ctx context.Context, venue string) (Credential, bool, error) {
	var apiKeyEnc, apiSecretEnc, privKeyEnc string
	err := s.db.QueryRowContext(ctx, `
		SELECT api_key_enc, api_secret_enc, private_key_enc FROM venue_credentials WHERE venue = ?`, venue).
		Scan(&apiKeyEnc, &apiSecretEnc, &privKeyEnc)
	if err == sql.ErrNoRows {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}

	key, err := s.subkey(venue)
	if err != nil {
		return Credential{}, false, err
	}
	apiKey, err := crypto.Decrypt(apiKeyEnc, key)
	if err != nil {
		return Credential{}, false, fmt.Errorf("secrets: decrypt api_key for %s: %w", venue, err)
	}
	apiSecret, err := crypto.Decrypt(apiSecretEnc, key)
	if err != nil {
		return Credential{}, false, fmt.Errorf("secrets: decrypt api_secret for %s: %w", venue, err)
	}
	privKey, err := crypto.Decrypt(privKeyEnc, key)
	if err != nil {
		return Credential{}, false, fmt.Errorf("secrets: decrypt private_key_pem for %s: %w", venue, err)
	}
	return Credential{Venue: venue, APIKey: apiKey, APISecret: apiSecret, PrivateKeyPEM: privKey}, true, nil
}

// Delete removes venue's stored credential, if any.
func (s *Store) Delete(ctx context.Context, venue string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM venue_credentials WHERE venue = ?`, venue)
	return err
}
