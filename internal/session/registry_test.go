// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package session_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskhollow/duskhollow/internal/session"
)

// fakeConn is a minimal session.Conn for registry tests.
type fakeConn struct {
	id     ulid.ULID
	closed atomic.Bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: ulid.Make()} }

func (c *fakeConn) ID() ulid.ULID { return c.id }
func (c *fakeConn) Closed() bool  { return c.closed.Load() }
func (c *fakeConn) Close() error  { c.closed.Store(true); return nil }

func TestBegin_FirstLogin(t *testing.T) {
	r := session.NewRegistry()
	conn := newFakeConn()

	evicted, err := r.Begin(conn, "a@b.com")
	require.NoError(t, err)
	assert.Nil(t, evicted)
	assert.True(t, r.Authenticated(conn.ID()))

	email, ok := r.AccountFor(conn.ID())
	require.True(t, ok)
	assert.Equal(t, "a@b.com", email)
}

func TestBegin_EvictsPriorSessionForSameAccount(t *testing.T) {
	r := session.NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	_, err := r.Begin(first, "a@b.com")
	require.NoError(t, err)

	evicted, err := r.Begin(second, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, first.ID(), evicted.ID())

	assert.False(t, r.Authenticated(first.ID()), "evicted connection must lose its session")
	assert.True(t, r.Authenticated(second.ID()))
	assert.Equal(t, 1, r.Len())
}

func TestBegin_SameConnTwiceIsNoop(t *testing.T) {
	r := session.NewRegistry()
	conn := newFakeConn()

	_, err := r.Begin(conn, "a@b.com")
	require.NoError(t, err)
	evicted, err := r.Begin(conn, "a@b.com")
	require.NoError(t, err)
	assert.Nil(t, evicted)
	assert.Equal(t, 1, r.Len())
}

func TestBegin_ClosedConnRejected(t *testing.T) {
	r := session.NewRegistry()
	conn := newFakeConn()
	require.NoError(t, conn.Close())

	_, err := r.Begin(conn, "a@b.com")
	require.Error(t, err)
	assert.False(t, r.Authenticated(conn.ID()))
}

func TestEnd_RemovesSession(t *testing.T) {
	r := session.NewRegistry()
	conn := newFakeConn()

	_, err := r.Begin(conn, "a@b.com")
	require.NoError(t, err)

	r.End(conn.ID())
	assert.False(t, r.Authenticated(conn.ID()))
	assert.Equal(t, 0, r.Len())
}

func TestEnd_UnknownConnIsNoop(t *testing.T) {
	r := session.NewRegistry()
	r.End(ulid.Make())
}

// An eviction hands the account to the newer connection; the evicted
// connection disconnecting afterwards must not tear the new session down.
func TestEnd_AfterEvictionKeepsNewSession(t *testing.T) {
	r := session.NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	_, err := r.Begin(first, "a@b.com")
	require.NoError(t, err)
	_, err = r.Begin(second, "a@b.com")
	require.NoError(t, err)

	r.End(first.ID())
	assert.True(t, r.Authenticated(second.ID()))

	email, ok := r.AccountFor(second.ID())
	require.True(t, ok)
	assert.Equal(t, "a@b.com", email)
}

// Concurrent logins for one account must end with exactly one admitted
// session, however the race resolves.
func TestBegin_ConcurrentSameAccount(t *testing.T) {
	r := session.NewRegistry()

	const n = 32
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = newFakeConn()
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			evicted, err := r.Begin(c, "a@b.com")
			require.NoError(t, err)
			if evicted != nil {
				_ = evicted.Close()
			}
		}(conn)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())

	admitted := 0
	for _, conn := range conns {
		if r.Authenticated(conn.ID()) {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}
