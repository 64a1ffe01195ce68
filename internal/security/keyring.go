package security

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnknownKey indicates a key ID that is not present in the keyring.
var ErrUnknownKey = errors.New("security: unknown key id")

// Keyring resolves key IDs to decoded key material. New codes are sealed
// under the active key; retired keys stay resolvable so existing inventory
// remains decryptable.
type Keyring struct {
	activeID string
	keys     map[string][]byte
}

// NewKeyring decodes a map of key ID to base64 key material. The active ID
// must name one of the supplied keys.
func NewKeyring(activeID string, encoded map[string]string) (*Keyring, error) {
	if len(encoded) == 0 {
		return nil, errors.New("security: keyring requires at least one key")
	}
	keys := make(map[string][]byte, len(encoded))
	for id, material := range encoded {
		key, err := DecodeKey(material)
		if err != nil {
			return nil, fmt.Errorf("security: keyring entry %s: %w", id, err)
		}
		keys[id] = key
	}
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("security: active key %s not in keyring", activeID)
	}
	return &Keyring{activeID: activeID, keys: keys}, nil
}

// ActiveID returns the key ID used to seal new payloads.
func (k *Keyring) ActiveID() string {
	return k.activeID
}

// ActiveKey returns the key material for the active key.
func (k *Keyring) ActiveKey() []byte {
	return k.keys[k.activeID]
}

// Key returns the key material for the given ID.
func (k *Keyring) Key(id string) ([]byte, error) {
	key, ok := k.keys[id]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

// NewKeyEntry mints a fresh keyring entry: a random UUID paired with newly
// generated key material.
func NewKeyEntry() (id string, material string, err error) {
	material, err = GenerateKey()
	if err != nil {
		return "", "", err
	}
	return uuid.NewString(), material, nil
}
