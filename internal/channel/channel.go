// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package channel establishes the per-connection symmetric channel.
//
// A connection's first key-exchange request carries the client's RSA
// public key in PKIX DER form. The server answers with a fresh symmetric
// session key encrypted under that public key; everything sensitive the
// client sends afterwards is sealed with the session key. Key material
// lives exactly as long as the connection.
package channel

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionKeyLen is the symmetric key length in bytes. The key doubles as
// an AES-128 key and is generated as printable hex so clients can treat
// it as an opaque token.
const SessionKeyLen = 16

// MinClientKeyBits is the smallest RSA modulus accepted from clients.
const MinClientKeyBits = 2048

// KeyMaterial is the symmetric key negotiated for one connection,
// in both plaintext and client-encrypted form.
type KeyMaterial struct {
	Key       []byte
	Encrypted []byte
}

// Table tracks key material per connection. All access is serialized
// under one mutex; entries never outlive their connection.
type Table struct {
	mu       sync.Mutex
	material map[ulid.ULID]KeyMaterial
}

// NewTable creates an empty key material table.
func NewTable() *Table {
	return &Table{material: make(map[ulid.ULID]KeyMaterial)}
}

// Exchange performs the handshake for a connection and returns the
// session key encrypted under the client's public key.
//
// A repeat exchange on the same connection returns the previously
// computed ciphertext byte-for-byte, so a retrying client cannot
// desynchronize the channel.
func (t *Table) Exchange(connID ulid.ULID, publicKeyDER []byte) ([]byte, error) {
	t.mu.Lock()
	if existing, ok := t.material[connID]; ok {
		t.mu.Unlock()
		return existing.Encrypted, nil
	}
	t.mu.Unlock()

	pub, err := parseClientKey(publicKeyDER)
	if err != nil {
		return nil, err
	}

	key, err := generateSessionKey()
	if err != nil {
		return nil, err
	}

	encrypted, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, oops.Code("CHANNEL_ENCRYPT_FAILED").
			With("conn_id", connID.String()).
			Wrap(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// A concurrent exchange for the same connection may have won the race;
	// the first stored material stays authoritative.
	if existing, ok := t.material[connID]; ok {
		return existing.Encrypted, nil
	}
	t.material[connID] = KeyMaterial{Key: key, Encrypted: encrypted}
	return encrypted, nil
}

// Lookup returns the symmetric key for a connection, if the handshake
// has completed.
func (t *Table) Lookup(connID ulid.ULID) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.material[connID]
	if !ok {
		return nil, false
	}
	return m.Key, true
}

// Drop discards a connection's key material. Called on disconnect;
// a no-op if no handshake happened.
func (t *Table) Drop(connID ulid.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.material, connID)
}

func parseClientKey(der []byte) (*rsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, oops.Code("CHANNEL_KEY_INVALID").
			With("reason", "unparseable public key").
			Wrap(err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, oops.Code("CHANNEL_KEY_INVALID").
			Errorf("public key is not RSA")
	}
	if pub.N.BitLen() < MinClientKeyBits {
		return nil, oops.Code("CHANNEL_KEY_INVALID").
			With("bits", pub.N.BitLen()).
			Errorf("client key below %d bits", MinClientKeyBits)
	}
	return pub, nil
}

// generateSessionKey returns SessionKeyLen printable bytes: the hex
// encoding of SessionKeyLen/2 random bytes.
func generateSessionKey() ([]byte, error) {
	raw := make([]byte, SessionKeyLen/2)
	if _, err := rand.Read(raw); err != nil {
		return nil, oops.Code("CHANNEL_KEYGEN_FAILED").Wrap(err)
	}
	return []byte(hex.EncodeToString(raw)), nil
}
