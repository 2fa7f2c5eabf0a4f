package ofconfig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/oftrelay/covertchan/ofkey"
)

// Correspondent is a remembered peer: a label, its identity public
// key, and the last decoded message length for diagnostics only — it
// is never fed back into the channel (SPEC_FULL.md §3.1).
type Correspondent struct {
	Label             string `json:"label"`
	PublicKey         string `json:"public_key"` // base64 SEC1-compressed
	LastDecodedLength int    `json:"last_decoded_length"`
}

// IdentityStore is one party's long-term state: its own identity key
// plus the correspondents it has exchanged keys with.
type IdentityStore struct {
	Label              string          `json:"label"`
	PrivateKey         string          `json:"private_key"` // base64, 28-byte scalar
	Correspondents     []Correspondent `json:"correspondents"`
}

var identityLock sync.RWMutex

// LoadIdentityStore reads path as JSON. A missing file is not an
// error; callers should follow up with GenerateIdentity.
func LoadIdentityStore(path string) (*IdentityStore, error) {
	identityLock.RLock()
	defer identityLock.RUnlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &IdentityStore{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ofconfig: read identity store: %w", err)
	}

	var store IdentityStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("ofconfig: parse identity store: %w", err)
	}
	return &store, nil
}

// SaveIdentityStore writes store to path as indented JSON, atomically.
func SaveIdentityStore(path string, store *IdentityStore) error {
	identityLock.Lock()
	defer identityLock.Unlock()

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("ofconfig: encode identity store: %w", err)
	}
	return writeAtomic(path, data, 0o600)
}

// GenerateIdentity fills in store's own private key if it has none
// yet, returning true if it generated a fresh one.
func (store *IdentityStore) GenerateIdentity(label string) (bool, error) {
	if store.PrivateKey != "" {
		return false, nil
	}
	sk, err := ofkey.GenerateSecretKey()
	if err != nil {
		return false, fmt.Errorf("ofconfig: generate identity: %w", err)
	}
	b := sk.Bytes()
	store.Label = label
	store.PrivateKey = base64.StdEncoding.EncodeToString(b[:])
	return true, nil
}

// SecretKey decodes store's own identity private key.
func (store *IdentityStore) SecretKey() (ofkey.SecretKey, error) {
	raw, err := base64.StdEncoding.DecodeString(store.PrivateKey)
	if err != nil {
		return ofkey.SecretKey{}, fmt.Errorf("ofconfig: decode identity private key: %w", err)
	}
	return ofkey.SecretKeyFromBytes(raw)
}

// AddCorrespondent remembers or updates a peer's public key under
// label, storing pub as base64 of its SEC1-compressed form.
func (store *IdentityStore) AddCorrespondent(label string, pub ofkey.PublicKey) {
	pubBytes := pub.ToSEC1Bytes()
	encoded := base64.StdEncoding.EncodeToString(pubBytes[:])
	for i, c := range store.Correspondents {
		if c.Label == label {
			store.Correspondents[i].PublicKey = encoded
			return
		}
	}
	store.Correspondents = append(store.Correspondents, Correspondent{
		Label:     label,
		PublicKey: encoded,
	})
}

// Correspondent looks up a remembered peer by label and decodes its
// public key.
func (store *IdentityStore) Correspondent(label string) (ofkey.PublicKey, bool, error) {
	for _, c := range store.Correspondents {
		if c.Label != label {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(c.PublicKey)
		if err != nil {
			return ofkey.PublicKey{}, false, fmt.Errorf("ofconfig: decode correspondent %q: %w", label, err)
		}
		pub, err := ofkey.PublicKeyFromSEC1(raw)
		if err != nil {
			return ofkey.PublicKey{}, false, fmt.Errorf("ofconfig: parse correspondent %q: %w", label, err)
		}
		return pub, true, nil
	}
	return ofkey.PublicKey{}, false, nil
}

// RecordDecodedLength updates the diagnostic last-decoded-length
// field for label, if a correspondent with that label exists.
func (store *IdentityStore) RecordDecodedLength(label string, n int) {
	for i, c := range store.Correspondents {
		if c.Label == label {
			store.Correspondents[i].LastDecodedLength = n
			return
		}
	}
}
