// Package identity persists the device's LocalPlayer credentials. A
// credential proves which Player entry in a shared session this device is
// authorized to mutate; it is acquired on create/join, held for the
// membership lifetime, and discarded on leave. Nothing here touches the
// shared store.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcdev12/scrumdeck/internal/models"
)

// Keyring is a device-scoped credential file keyed by session id, read on
// session re-entry so a reload does not re-join.
type Keyring struct {
	path string
	mu   sync.Mutex
}

// NewKeyring creates a keyring backed by the given file path.
func NewKeyring(path string) *Keyring {
	return &Keyring{path: path}
}

// DefaultPath returns the per-user credential file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "scrumdeck", "identity.json"), nil
}

// Load returns the credential held for a session, or nil if the device has
// never joined it.
func (k *Keyring) Load(sessionID string) (*models.LocalPlayer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	creds, err := k.read()
	if err != nil {
		return nil, err
	}
	lp, ok := creds[sessionID]
	if !ok {
		return nil, nil
	}
	return &lp, nil
}

// Save stores the credential for a session, replacing any previous one.
func (k *Keyring) Save(sessionID string, lp models.LocalPlayer) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	creds, err := k.read()
	if err != nil {
		return err
	}
	creds[sessionID] = lp
	return k.write(creds)
}

// Discard drops the credential for a session. Discarding an unknown session
// is a no-op.
func (k *Keyring) Discard(sessionID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	creds, err := k.read()
	if err != nil {
		return err
	}
	if _, ok := creds[sessionID]; !ok {
		return nil
	}
	delete(creds, sessionID)
	return k.write(creds)
}

func (k *Keyring) read() (map[string]models.LocalPlayer, error) {
	data, err := os.ReadFile(k.path)
	if os.IsNotExist(err) {
		return make(map[string]models.LocalPlayer), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	creds := make(map[string]models.LocalPlayer)
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse keyring: %w", err)
	}
	return creds, nil
}

func (k *Keyring) write(creds map[string]models.LocalPlayer) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keyring: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("create keyring dir: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}
