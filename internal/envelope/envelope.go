// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package envelope implements the encrypted credential envelope exchanged
// during authentication. An envelope is an AES-GCM sealed byte buffer
// wrapping a flat string-key/string-value record layout.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/samber/oops"
)

// NonceSize is the AES-GCM nonce length prefixed to every envelope.
const NonceSize = 12

// MaxFieldLen bounds a single key or value. Credential fields are short;
// anything larger is a malformed or hostile envelope.
const MaxFieldLen = 1024

// ErrInvalid is returned (wrapped) for any cryptographic or structural
// envelope failure. Callers must not be able to tell the two apart.
var ErrInvalid = errors.New("invalid envelope")

// Decode opens cipherBytes with the given symmetric key and parses the
// plaintext into a string map. Duplicate keys keep the last value. Decoding
// is pure: any failure yields a single error and no partial result.
func Decode(cipherBytes, key []byte) (map[string]string, error) {
	if len(cipherBytes) < NonceSize+1 {
		return nil, decodeErr("envelope too short")
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce, sealed := cipherBytes[:NonceSize], cipherBytes[NonceSize:]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, oops.Code("GATE_ENVELOPE_INVALID").
			With("reason", "decrypt failed").
			Wrap(ErrInvalid)
	}

	return parseFields(plain)
}

// Encode is the inverse of Decode: it lays out the fields as
// length-prefixed records and seals them under key with a fresh nonce.
// The production server only ever decodes; Encode exists for the client
// side of the protocol and for tests.
func Encode(fields map[string]string, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	var plain []byte
	for k, v := range fields {
		if len(k) > MaxFieldLen || len(v) > MaxFieldLen {
			return nil, decodeErr("field too long")
		}
		plain = binary.BigEndian.AppendUint16(plain, uint16(len(k)))
		plain = append(plain, k...)
		plain = binary.BigEndian.AppendUint16(plain, uint16(len(v)))
		plain = append(plain, v...)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, oops.Code("GATE_ENVELOPE_SEAL_FAILED").Wrap(err)
	}

	return append(nonce, aead.Seal(nil, nonce, plain, nil)...), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code("GATE_ENVELOPE_INVALID").
			With("reason", "bad key length").
			Wrap(ErrInvalid)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, oops.Code("GATE_ENVELOPE_INVALID").Wrap(ErrInvalid)
	}
	return aead, nil
}

// parseFields reads repeated {u16 klen, key, u16 vlen, value} records.
func parseFields(plain []byte) (map[string]string, error) {
	fields := make(map[string]string)
	pos := 0
	for pos < len(plain) {
		key, next, err := readField(plain, pos)
		if err != nil {
			return nil, err
		}
		value, after, err := readField(plain, next)
		if err != nil {
			return nil, err
		}
		fields[key] = value
		pos = after
	}
	return fields, nil
}

func readField(buf []byte, pos int) (string, int, error) {
	if pos+2 > len(buf) {
		return "", 0, decodeErr("truncated length prefix")
	}
	n := int(binary.BigEndian.Uint16(buf[pos:]))
	pos += 2
	if n > MaxFieldLen {
		return "", 0, decodeErr("field too long")
	}
	if pos+n > len(buf) {
		return "", 0, decodeErr("truncated field")
	}
	return string(buf[pos : pos+n]), pos + n, nil
}

func decodeErr(reason string) error {
	return oops.Code("GATE_ENVELOPE_INVALID").
		With("reason", reason).
		Wrap(ErrInvalid)
}
