// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package gate

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/duskhollow/duskhollow/internal/auth"
	"github.com/duskhollow/duskhollow/internal/session"
	"github.com/duskhollow/duskhollow/pkg/errutil"
)

// AuthService defines the flow-controller operations the gate routes to.
type AuthService interface {
	Login(ctx context.Context, conn session.Conn, sealed []byte) (*auth.LoginResult, error)
	Register(ctx context.Context, conn session.Conn, sealed []byte) error
	RequestEmailConfirmationCode(ctx context.Context, conn session.Conn, sealed []byte) error
	ConfirmEmail(ctx context.Context, conn session.Conn, sealed []byte) error
	RequestPasswordResetCode(ctx context.Context, conn session.Conn, sealed []byte) error
	ResetPassword(ctx context.Context, conn session.Conn, sealed []byte) error
}

// KeyExchanger performs the per-connection key-exchange handshake.
type KeyExchanger interface {
	Exchange(connID ulid.ULID, publicKeyDER []byte) ([]byte, error)
}

// AuthHandler converts routed frames into flow-controller calls and
// flow-controller errors into tagged responses.
type AuthHandler struct {
	svc    AuthService
	keys   KeyExchanger
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
// Returns an error if any required dependency is nil.
func NewAuthHandler(svc AuthService, keys KeyExchanger, logger *slog.Logger) (*AuthHandler, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if keys == nil {
		return nil, oops.Errorf("key exchanger is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthHandler{svc: svc, keys: keys, logger: logger}, nil
}

// Routes returns the dispatch table for the router.
func (h *AuthHandler) Routes() map[Tag]Handler {
	return map[Tag]Handler{
		TagHandshake:        h.HandleHandshake,
		TagLogin:            h.HandleLogin,
		TagRegister:         h.HandleRegister,
		TagRequestEmailCode: h.HandleRequestEmailCode,
		TagConfirmEmail:     h.HandleConfirmEmail,
		TagRequestResetCode: h.HandleRequestResetCode,
		TagResetPassword:    h.HandleResetPassword,
	}
}

// HandleHandshake runs the key exchange. This is the only request
// trusted without an established channel; a malformed public key is
// fatal to the connection and gets no response beyond logging.
func (h *AuthHandler) HandleHandshake(_ context.Context, conn Conn, payload []byte) {
	encrypted, err := h.keys.Exchange(conn.ID(), payload)
	if err != nil {
		errutil.LogError(h.logger.With("conn_id", conn.ID().String()), "handshake failed", err)
		RequestsTotal.WithLabelValues(TagHandshake.String(), StatusError.String()).Inc()
		_ = conn.Close() //nolint:errcheck
		return
	}
	h.reply(conn, TagHandshake, TagHandshakeReply, encrypted, StatusSuccess)
}

// HandleLogin authenticates and, on success, reports the account's
// role flags.
func (h *AuthHandler) HandleLogin(ctx context.Context, conn Conn, payload []byte) {
	result, err := h.svc.Login(ctx, conn, payload)
	if err != nil {
		h.replyError(conn, TagLogin, TagLoginReply, err)
		return
	}
	if result.EvictedPrior {
		SessionEvictionsTotal.Inc()
	}
	h.reply(conn, TagLogin, TagLoginReply,
		EncodeLoginSuccess("welcome", result.Admin, result.Guest), StatusSuccess)
}

func (h *AuthHandler) HandleRegister(ctx context.Context, conn Conn, payload []byte) {
	if err := h.svc.Register(ctx, conn, payload); err != nil {
		h.replyError(conn, TagRegister, TagRegisterReply, err)
		return
	}
	h.reply(conn, TagRegister, TagRegisterReply,
		EncodeResponse(StatusSuccess, "account created; confirmation code sent"), StatusSuccess)
}

// HandleRequestEmailCode responds identically whether or not the
// account exists, so the endpoint cannot be used for enumeration.
func (h *AuthHandler) HandleRequestEmailCode(ctx context.Context, conn Conn, payload []byte) {
	if err := h.svc.RequestEmailConfirmationCode(ctx, conn, payload); err != nil {
		h.replyError(conn, TagRequestEmailCode, TagRequestEmailCodeReply, err)
		return
	}
	h.reply(conn, TagRequestEmailCode, TagRequestEmailCodeReply,
		EncodeResponse(StatusSuccess, "confirmation code sent if the account exists"), StatusSuccess)
}

func (h *AuthHandler) HandleConfirmEmail(ctx context.Context, conn Conn, payload []byte) {
	if err := h.svc.ConfirmEmail(ctx, conn, payload); err != nil {
		h.replyError(conn, TagConfirmEmail, TagConfirmEmailReply, err)
		return
	}
	h.reply(conn, TagConfirmEmail, TagConfirmEmailReply,
		EncodeResponse(StatusSuccess, "e-mail confirmed"), StatusSuccess)
}

// HandleRequestResetCode shares the enumeration-safe response policy of
// HandleRequestEmailCode.
func (h *AuthHandler) HandleRequestResetCode(ctx context.Context, conn Conn, payload []byte) {
	if err := h.svc.RequestPasswordResetCode(ctx, conn, payload); err != nil {
		h.replyError(conn, TagRequestResetCode, TagRequestResetCodeReply, err)
		return
	}
	h.reply(conn, TagRequestResetCode, TagRequestResetCodeReply,
		EncodeResponse(StatusSuccess, "reset code sent if the account exists"), StatusSuccess)
}

func (h *AuthHandler) HandleResetPassword(ctx context.Context, conn Conn, payload []byte) {
	if err := h.svc.ResetPassword(ctx, conn, payload); err != nil {
		h.replyError(conn, TagResetPassword, TagResetPasswordReply, err)
		return
	}
	h.reply(conn, TagResetPassword, TagResetPasswordReply,
		EncodeResponse(StatusSuccess, "password reset"), StatusSuccess)
}

func (h *AuthHandler) reply(conn Conn, reqTag, replyTag Tag, payload []byte, status Status) {
	RequestsTotal.WithLabelValues(reqTag.String(), status.String()).Inc()
	if err := conn.Send(replyTag, payload); err != nil {
		h.logger.Debug("response write failed",
			"conn_id", conn.ID().String(),
			"tag", replyTag.String(),
			"error", err,
		)
	}
}

func (h *AuthHandler) replyError(conn Conn, reqTag, replyTag Tag, err error) {
	status, reason := statusFor(err)
	if status == StatusError {
		errutil.LogError(h.logger.With("conn_id", conn.ID().String(), "tag", reqTag.String()),
			"request failed", err)
	}
	h.reply(conn, reqTag, replyTag, EncodeResponse(status, reason), status)
}

// statusFor translates flow-controller error codes into the wire status
// vocabulary and a short human-readable reason. Failure wording is
// deliberately generic where distinguishing causes would allow account
// enumeration.
func statusFor(err error) (Status, string) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return StatusError, "request failed"
	}
	switch oopsErr.Code() {
	case "AUTH_ALREADY_AUTHENTICATED":
		return StatusError, "already logged in"
	case "AUTH_CHANNEL_INSECURE":
		return StatusUnauthorized, "secure channel not established"
	case "AUTH_INVALID_REQUEST":
		return StatusUnauthorized, "invalid request"
	case "AUTH_INVALID_CREDENTIALS":
		return StatusUnauthorized, "invalid email or password"
	case "AUTH_ACCOUNT_LOCKED":
		return StatusUnauthorized, "account is temporarily locked"
	case "AUTH_UNCONFIRMED":
		return StatusUnconfirmed, "e-mail address not confirmed"
	case "AUTH_INVALID_EMAIL":
		return StatusError, "invalid e-mail address"
	case "AUTH_INVALID_LENGTH":
		return StatusError, "e-mail length out of bounds"
	case "AUTH_ALREADY_REGISTERED":
		return StatusError, "an account with this email already exists"
	case "AUTH_INVALID_CODE":
		return StatusUnauthorized, "invalid code"
	default:
		return StatusError, "request failed"
	}
}
