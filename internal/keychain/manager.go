// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores bichat secrets in the OS credential store: the
// Databricks access token, the warehouse DSN and the Anthropic API key.
// Secrets never go to the config file.
//
// On macOS the security command is used directly, falling back to the
// keyring library. Windows uses Credential Manager; Linux uses Secret
// Service, KWallet or pass.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("secret not found in keychain")

// ServiceName identifies our keychain namespace.
const ServiceName = "bichat"

// Keys used for storing secrets.
const (
	KeyDatabricksToken = "databricks_token"
	KeyWarehouseDSN    = "warehouse_dsn"
	KeyAnthropicKey    = "anthropic_api_key"
)

// AllKeys lists every key bichat writes.
var AllKeys = []string{KeyDatabricksToken, KeyWarehouseDSN, KeyAnthropicKey}

// keychainBackend is the minimal store the manager needs.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Manager provides thread-safe access to stored secrets.
type Manager struct {
	mu      sync.RWMutex
	backend keychainBackend
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if backend, err := newSecurityBackend(); err == nil {
			return &Manager{backend: backend}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewManagerWithKeyring(ring), nil
}

// NewManagerWithKeyring wraps an already opened keyring, such as
// keyring.NewArrayKeyring in tests.
func NewManagerWithKeyring(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

// GetManager returns the process-wide manager, opening it on first use.
// A failed open is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		// pass is the fallback on macOS 26+, where the Keychain API may be unavailable.
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux", "freebsd", "openbsd":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on " + runtime.GOOS)
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. Install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

// Load returns the value stored under key, or ErrNotFound.
func (m *Manager) Load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.backend.Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Save stores value under key. An empty value deletes the key.
func (m *Manager) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		if err := m.backend.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}
	return m.backend.Set(key, value)
}

// Clear removes the given keys, ignoring missing ones.
func (m *Manager) Clear(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, k := range keys {
		if err := m.backend.Delete(k); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll removes every bichat secret.
func (m *Manager) ClearAll() error { return m.Clear(AllKeys...) }

// SaveToken stores the Databricks personal access token.
func (m *Manager) SaveToken(token string) error { return m.Save(KeyDatabricksToken, token) }

// LoadToken returns the stored Databricks personal access token.
func (m *Manager) LoadToken() (string, error) { return m.Load(KeyDatabricksToken) }

// SaveWarehouseDSN stores the warehouse connection string.
func (m *Manager) SaveWarehouseDSN(dsn string) error { return m.Save(KeyWarehouseDSN, dsn) }

// LoadWarehouseDSN returns the stored warehouse connection string.
func (m *Manager) LoadWarehouseDSN() (string, error) { return m.Load(KeyWarehouseDSN) }

// ringBackend adapts a keyring.Keyring.
type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value)})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
