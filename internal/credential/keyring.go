// Package credential keeps secrets such as the upstream Jira token in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const (
	serviceName = "jiradialog"

	// JiraToken is the key the upstream Jira API token is stored under.
	JiraToken = "jira-token"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("credential not found")

// Store opens the keyring described by Config on every call.
type Store struct {
	Config keyring.Config
}

// Default returns the store backed by the platform keyring, falling back to an
// encrypted file under ~/.config/jiradialog.
func Default() Store {
	return Store{Config: keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/jiradialog/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("jiradialog-file-key"),
		KeychainTrustApplication: true,
	}}
}

func (s Store) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(s.Config)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (s Store) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s Store) Set(key, value string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an error.
func (s Store) Delete(key string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
