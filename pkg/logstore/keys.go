// pkg/logstore/keys.go
package logstore

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyProvider supplies the long-lived symmetric key that seals log
// frames. The key is fetched once at startup and is read-only for the
// rest of the session.
type KeyProvider interface {
	// Key returns the 256-bit sealing key, generating and persisting a
	// fresh one if none exists yet.
	Key() ([]byte, error)
}

// FileKeyProvider stores the key as a raw 32-byte file with owner-only
// permissions. Platform keystores (keychain, TPM, secret service) can
// replace it behind the same interface.
type FileKeyProvider struct {
	Path string
}

func NewFileKeyProvider(path string) *FileKeyProvider {
	return &FileKeyProvider{Path: path}
}

func (p *FileKeyProvider) Key() ([]byte, error) {
	key, err := os.ReadFile(p.Path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s has %d bytes, want %d", p.Path, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.Path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist key: %w", err)
	}
	return key, nil
}

// StaticKeyProvider returns a fixed key. Intended for tests.
type StaticKeyProvider struct {
	KeyBytes []byte
}

func (p *StaticKeyProvider) Key() ([]byte, error) {
	if len(p.KeyBytes) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("static key has %d bytes, want %d", len(p.KeyBytes), chacha20poly1305.KeySize)
	}
	return p.KeyBytes, nil
}
