// Package identity implements the daemon's host identity: an ed25519 key
// pair generated once and persisted to disk, and short-lived session
// tokens signed with it so a CLI client talking to the daemon over the
// mux socket can be trusted without re-authenticating every call.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// KeyStore is the small filesystem surface host key persistence needs,
// kept as an interface so tests don't have to touch the real disk.
type KeyStore interface {
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(name string, perm fs.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
}

// RealKeyStore is the default KeyStore, backed by the host OS filesystem.
type RealKeyStore struct{}

func (RealKeyStore) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (RealKeyStore) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(name, perm)
}
func (RealKeyStore) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (RealKeyStore) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// HostKey is the daemon's identity: an ed25519 key pair used to sign
// session tokens and to fingerprint the host for `daemon status`.
type HostKey struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Fingerprint returns the SHA256 fingerprint of the public key in the
// same `SHA256:base64...` form `ssh-keygen -lf` prints.
func (k *HostKey) Fingerprint() (string, error) {
	pub, err := ssh.NewPublicKey(k.Public)
	if err != nil {
		return "", fmt.Errorf("converting host public key: %w", err)
	}
	return ssh.FingerprintSHA256(pub), nil
}

// GenerateHostKey creates a fresh ed25519 key pair.
func GenerateHostKey() (*HostKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}
	return &HostKey{Private: priv, Public: pub}, nil
}

// LoadOrCreateHostKey reads the host key from path, generating and
// persisting a new one (PEM-encoded, 0600) if the file doesn't exist yet
// — the daemon calls this once on first start.
func LoadOrCreateHostKey(store KeyStore, path string) (*HostKey, error) {
	if store == nil {
		store = RealKeyStore{}
	}
	if _, err := store.Stat(path); err == nil {
		return loadHostKey(store, path)
	}

	key, err := GenerateHostKey()
	if err != nil {
		return nil, err
	}
	if err := store.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating host key directory: %w", err)
	}
	if err := store.WriteFile(path, encodePrivateKeyToPEM(key.Private), 0o600); err != nil {
		return nil, fmt.Errorf("writing host key: %w", err)
	}
	return key, nil
}

func loadHostKey(store KeyStore, path string) (*HostKey, error) {
	data, err := store.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("host key at %s is not valid PEM", path)
	}
	signer, err := ssh.ParseRawPrivateKey(pem.EncodeToMemory(block))
	if err != nil {
		return nil, fmt.Errorf("parsing host key: %w", err)
	}
	priv, ok := signer.(*ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("host key at %s is not an ed25519 key", path)
	}
	return &HostKey{Private: *priv, Public: priv.Public().(ed25519.PublicKey)}, nil
}

// encodePrivateKeyToPEM encodes an ed25519 private key for storage,
// following the same MarshalPrivateKey-then-PEM-wrap shape used to
// persist sandbox host keys.
func encodePrivateKeyToPEM(privateKey ed25519.PrivateKey) []byte {
	block, err := ssh.MarshalPrivateKey(privateKey, "lifosh host key")
	if err != nil {
		panic(fmt.Sprintf("failed to marshal host key: %v", err))
	}
	return pem.EncodeToMemory(block)
}
