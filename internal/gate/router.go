// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package gate

import (
	"context"
	"log/slog"
)

// Handler processes one inbound frame for a connection.
type Handler func(ctx context.Context, conn Conn, payload []byte)

// Router dispatches inbound tagged frames to handlers. The dispatch
// table is built once at startup and never rewired at runtime.
type Router struct {
	handlers map[Tag]Handler
	logger   *slog.Logger
}

// NewRouter creates a router with the given dispatch table.
func NewRouter(handlers map[Tag]Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	table := make(map[Tag]Handler, len(handlers))
	for tag, h := range handlers {
		table[tag] = h
	}
	return &Router{handlers: table, logger: logger}
}

// Dispatch routes one frame. Frames with an unknown tag are dropped
// silently: no response, no error.
func (r *Router) Dispatch(ctx context.Context, conn Conn, tag Tag, payload []byte) {
	h, ok := r.handlers[tag]
	if !ok {
		DroppedFramesTotal.Inc()
		r.logger.Debug("dropping frame with unknown tag",
			"conn_id", conn.ID().String(),
			"tag", int(tag),
		)
		return
	}
	h(ctx, conn, payload)
}
