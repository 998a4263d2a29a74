// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package gate

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Conn is one client's live network session. Implementations must be
// safe for concurrent Send and Close.
type Conn interface {
	// ID returns the connection's unique identifier.
	ID() ulid.ULID
	// Send writes one tagged frame to the client.
	Send(tag Tag, payload []byte) error
	// Close shuts the connection down. Safe to call more than once.
	Close() error
	// Closed reports whether Close has been called.
	Closed() bool
	// RemoteAddr returns the client's address for logging.
	RemoteAddr() string
}

// tcpConn wraps a net.Conn as a gate connection. Writes are serialized
// so concurrent responses cannot interleave frame bytes.
type tcpConn struct {
	id      ulid.ULID
	nc      net.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newTCPConn(nc net.Conn) *tcpConn {
	return &tcpConn{id: ulid.Make(), nc: nc}
}

func (c *tcpConn) ID() ulid.ULID { return c.id }

func (c *tcpConn) Send(tag Tag, payload []byte) error {
	if c.closed.Load() {
		return oops.Code("GATE_CONN_CLOSED").
			With("conn_id", c.id.String()).
			Errorf("send on closed connection")
	}
	frame := AppendFrame(nil, tag, payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(frame); err != nil {
		return oops.Code("GATE_SEND_FAILED").
			With("conn_id", c.id.String()).
			With("tag", tag.String()).
			Wrap(err)
	}
	return nil
}

func (c *tcpConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close() //nolint:wrapcheck // close errors only get logged
}

func (c *tcpConn) Closed() bool { return c.closed.Load() }

func (c *tcpConn) RemoteAddr() string { return c.nc.RemoteAddr().String() }
