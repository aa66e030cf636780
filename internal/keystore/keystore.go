// Package keystore provides the client's persisted secure storage: small
// named values (the session token, the last-known profile snapshot) that must
// survive restarts and never hit disk in plaintext.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/hkdf"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no value is stored under the name.
var ErrNotFound = errors.New("keystore: value not found")

const (
	deviceKeyFile = "device.key"
	dbFile        = "keystore.db"
	deviceKeySize = 32
)

// Store wraps a sql.DB connection holding sealed name/value pairs. Values are
// encrypted with AES-256-GCM under a key derived from a per-device secret, so
// a copied database file is useless without the device key next to it.
type Store struct {
	conn      *sql.DB
	deviceKey []byte
}

// Open prepares dir (created 0700 if missing), loads or creates the device
// key, opens the database and runs migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}

	key, err := loadOrCreateDeviceKey(filepath.Join(dir, deviceKeyFile))
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}

	s := &Store{conn: conn, deviceKey: key}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS vault (
			name TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Put stores value sealed under name, replacing any previous value.
func (s *Store) Put(name string, value []byte) error {
	sealed, err := s.seal(name, value)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(
		`INSERT INTO vault (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, sealed, time.Now(),
	)
	return err
}

// Get retrieves and unseals the value stored under name. It returns
// ErrNotFound when nothing is stored.
func (s *Store) Get(name string) ([]byte, error) {
	row := s.conn.QueryRow("SELECT value FROM vault WHERE name = ?", name)

	var sealed []byte
	if err := row.Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.open(name, sealed)
}

// Delete removes the value stored under name. Deleting a missing name is not
// an error.
func (s *Store) Delete(name string) error {
	_, err := s.conn.Exec("DELETE FROM vault WHERE name = ?", name)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// seal encrypts value with AES-256-GCM under a key derived for name. The
// random nonce is prepended to the ciphertext.
func (s *Store) seal(name string, value []byte) ([]byte, error) {
	gcm, err := s.aead(name)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return append(nonce, gcm.Seal(nil, nonce, value, nil)...), nil
}

func (s *Store) open(name string, sealed []byte) ([]byte, error) {
	gcm, err := s.aead(name)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(sealed) < ns {
		return nil, errors.New("keystore: sealed value too short")
	}
	value, err := gcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: unseal %q: %w", name, err)
	}
	return value, nil
}

// aead derives the AES-GCM cipher for name via HKDF-SHA256 over the device
// key, binding each stored value to its own name.
func (s *Store) aead(name string) (cipher.AEAD, error) {
	h := hkdf.New(sha256.New, s.deviceKey, nil, []byte("acca-keystore:"+name))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func loadOrCreateDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != deviceKeySize {
			return nil, fmt.Errorf("keystore: device key at %s has wrong size", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, deviceKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}
