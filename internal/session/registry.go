// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package session tracks which connections are authenticated and to
// which account. One account holds at most one live session; a newer
// login evicts the older connection.
package session

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Conn is the slice of a gate connection the registry needs.
type Conn interface {
	// ID returns the connection's unique identifier.
	ID() ulid.ULID
	// Closed reports whether the connection has been shut down.
	Closed() bool
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Registry maps live connections to account emails. All mutations are
// serialized under one mutex so two concurrent logins for the same
// account cannot both be admitted.
type Registry struct {
	mu      sync.Mutex
	byConn  map[ulid.ULID]string
	byEmail map[string]Conn
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[ulid.ULID]string),
		byEmail: make(map[string]Conn),
	}
}

// Begin records a session for conn under the given account email and
// returns any prior connection that held a session for the same account.
// The caller must close the evicted connection after Begin returns; the
// registry never invokes external collaborators under its lock.
//
// A connection that has already been closed is rejected so that an
// in-flight login finishing after a disconnect cannot resurrect state.
func (r *Registry) Begin(conn Conn, email string) (evicted Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.Closed() {
		return nil, oops.Code("SESSION_CONN_CLOSED").
			With("conn_id", conn.ID().String()).
			Errorf("connection closed before session could begin")
	}

	if prior, ok := r.byEmail[email]; ok {
		if prior.ID() == conn.ID() {
			return nil, nil
		}
		delete(r.byConn, prior.ID())
		evicted = prior
	}

	// A connection re-authenticating as a different account drops its
	// old entry first.
	if oldEmail, ok := r.byConn[conn.ID()]; ok && oldEmail != email {
		delete(r.byEmail, oldEmail)
	}

	r.byConn[conn.ID()] = email
	r.byEmail[email] = conn
	return evicted, nil
}

// Authenticated reports whether the connection holds a session.
func (r *Registry) Authenticated(connID ulid.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byConn[connID]
	return ok
}

// AccountFor returns the account email the connection is logged in as.
func (r *Registry) AccountFor(connID ulid.ULID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.byConn[connID]
	return email, ok
}

// End removes the connection's session if present. Called on disconnect
// and a no-op otherwise.
func (r *Registry) End(connID ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	// Only clear the reverse entry if it still points at this connection;
	// an eviction may already have handed the account to a newer one.
	if cur, ok := r.byEmail[email]; ok && cur.ID() == connID {
		delete(r.byEmail, email)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}
