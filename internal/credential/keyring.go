// Package credential keeps database passphrases in the system keyring.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
)

const serviceName = "lists"

// Open returns a keyring for the lists service. fileDir holds the encrypted
// file backend used where no system keyring is available.
func Open(fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("lists-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Keys provides database passphrases from a keyring. A database without a
// passphrase gets a new random one on first use.
type Keys struct {
	ring keyring.Keyring
}

func NewKeys(ring keyring.Keyring) *Keys {
	return &Keys{ring: ring}
}

func itemKey(database string) string {
	return "database:" + database
}

// Passphrase returns the passphrase of database, creating it if needed.
func (k *Keys) Passphrase(ctx context.Context, database string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	item, err := k.ring.Get(itemKey(database))
	if err == nil {
		return string(item.Data), nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting passphrase of %q: %w", database, err)
	}

	pass := uuid.NewString()
	err = k.ring.Set(keyring.Item{
		Key:         itemKey(database),
		Data:        []byte(pass),
		Label:       "lists database " + database,
		Description: "SQLite encryption passphrase",
	})
	if err != nil {
		return "", fmt.Errorf("setting passphrase of %q: %w", database, err)
	}
	return pass, nil
}

// Forget removes the passphrase of database.
func (k *Keys) Forget(database string) error {
	if err := k.ring.Remove(itemKey(database)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting passphrase of %q: %w", database, err)
	}
	return nil
}
