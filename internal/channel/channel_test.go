// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package channel_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskhollow/duskhollow/internal/channel"
)

func clientKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, der
}

func TestExchange_ClientCanRecoverSessionKey(t *testing.T) {
	priv, der := clientKey(t)
	table := channel.NewTable()
	connID := ulid.Make()

	encrypted, err := table.Exchange(connID, der)
	require.NoError(t, err)

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, encrypted, nil)
	require.NoError(t, err)
	assert.Len(t, key, channel.SessionKeyLen)

	stored, ok := table.Lookup(connID)
	require.True(t, ok)
	assert.Equal(t, stored, key)

	// Printable token: hex alphabet only.
	for _, b := range key {
		assert.True(t, (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f'),
			"session key byte %q not printable hex", b)
	}
}

func TestExchange_RepeatIsIdempotent(t *testing.T) {
	_, der := clientKey(t)
	table := channel.NewTable()
	connID := ulid.Make()

	first, err := table.Exchange(connID, der)
	require.NoError(t, err)
	second, err := table.Exchange(connID, der)
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeat handshake must return identical bytes")
}

func TestExchange_DistinctConnectionsGetDistinctKeys(t *testing.T) {
	_, der := clientKey(t)
	table := channel.NewTable()

	a, err := table.Exchange(ulid.Make(), der)
	require.NoError(t, err)
	b, err := table.Exchange(ulid.Make(), der)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestExchange_MalformedKey(t *testing.T) {
	table := channel.NewTable()
	_, err := table.Exchange(ulid.Make(), []byte("not a DER key"))
	require.Error(t, err)
}

func TestExchange_UndersizedKeyRejected(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	table := channel.NewTable()
	_, err = table.Exchange(ulid.Make(), der)
	require.Error(t, err)
}

func TestDrop_RemovesMaterialAndAllowsFreshExchange(t *testing.T) {
	_, der := clientKey(t)
	table := channel.NewTable()
	connID := ulid.Make()

	first, err := table.Exchange(connID, der)
	require.NoError(t, err)

	table.Drop(connID)
	_, ok := table.Lookup(connID)
	assert.False(t, ok)

	second, err := table.Exchange(connID, der)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "post-drop handshake must regenerate")
}

func TestDrop_NoHandshakeIsNoop(t *testing.T) {
	table := channel.NewTable()
	table.Drop(ulid.Make())
}
