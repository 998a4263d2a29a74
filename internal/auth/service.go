// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/duskhollow/duskhollow/internal/channel"
	"github.com/duskhollow/duskhollow/internal/envelope"
	"github.com/duskhollow/duskhollow/internal/session"
)

var tracer = otel.Tracer("duskhollow/auth")

// dummyPasswordHash is verified against when an account doesn't exist so
// that unknown-email and wrong-password paths take the same time.
// This is NOT a real credential.
//
//nolint:gosec // G101: intentionally fake hash for timing-attack prevention.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Mailer delivers account e-mail out of band. Dispatch is
// fire-and-forget from the flow controller's perspective; delivery
// failures are logged, never surfaced to the client.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LoginResult carries the role flags returned on successful login.
type LoginResult struct {
	Email        string
	Admin        bool
	Guest        bool
	EvictedPrior bool
}

// Service is the authentication flow controller.
type Service struct {
	accounts AccountRepository
	codes    CodeRepository
	hasher   PasswordHasher
	keys     *channel.Table
	sessions *session.Registry
	mailer   Mailer
	policy   EmailPolicy
	logger   *slog.Logger
}

// NewService creates a Service with a no-op logger.
// Returns an error if any required dependency is nil.
func NewService(
	accounts AccountRepository,
	codes CodeRepository,
	hasher PasswordHasher,
	keys *channel.Table,
	sessions *session.Registry,
	mailer Mailer,
	policy EmailPolicy,
) (*Service, error) {
	return NewServiceWithLogger(accounts, codes, hasher, keys, sessions, mailer, policy,
		slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service with the provided logger.
func NewServiceWithLogger(
	accounts AccountRepository,
	codes CodeRepository,
	hasher PasswordHasher,
	keys *channel.Table,
	sessions *session.Registry,
	mailer Mailer,
	policy EmailPolicy,
	logger *slog.Logger,
) (*Service, error) {
	switch {
	case accounts == nil:
		return nil, oops.Errorf("account repository is required")
	case codes == nil:
		return nil, oops.Errorf("code repository is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case keys == nil:
		return nil, oops.Errorf("key table is required")
	case sessions == nil:
		return nil, oops.Errorf("session registry is required")
	case mailer == nil:
		return nil, oops.Errorf("mailer is required")
	case logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	if policy.MinLength <= 0 || policy.MaxLength <= 0 {
		policy = DefaultEmailPolicy()
	}
	return &Service{
		accounts: accounts,
		codes:    codes,
		hasher:   hasher,
		keys:     keys,
		sessions: sessions,
		mailer:   mailer,
		policy:   policy,
		logger:   logger,
	}, nil
}

// Login authenticates the account in the sealed envelope and begins a
// session for the connection, evicting any prior session for the same
// account. Unknown email and wrong password fail with the same code.
func (s *Service) Login(ctx context.Context, conn session.Conn, sealed []byte) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	if s.sessions.Authenticated(conn.ID()) {
		return nil, s.fail(span, oops.Code("AUTH_ALREADY_AUTHENTICATED").
			Errorf("connection already has a session"))
	}

	fields, err := s.open(conn, sealed)
	if err != nil {
		return nil, s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	password := fields["password"]
	if email == "" || password == "" {
		return nil, s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email and password are required"))
	}

	account, lookupErr := s.accounts.GetByEmail(ctx, email)

	// Verify against a dummy hash when the account is missing so both
	// failure paths take the same time.
	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
	default:
		return nil, s.fail(span, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr))
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		return nil, s.fail(span, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr))
	}

	if !exists || !valid {
		if exists {
			account.RecordFailure()
			_ = s.accounts.Update(ctx, account) //nolint:errcheck // best effort
		}
		return nil, s.fail(span, oops.Code("AUTH_INVALID_CREDENTIALS").
			Errorf("invalid email or password"))
	}

	// Lockout is checked after verification to keep response time flat.
	if account.IsLocked() {
		return nil, s.fail(span, oops.Code("AUTH_ACCOUNT_LOCKED").
			Errorf("account is temporarily locked"))
	}

	if !account.EmailConfirmed {
		return nil, s.fail(span, oops.Code("AUTH_UNCONFIRMED").
			Errorf("e-mail address is not confirmed"))
	}

	account.RecordSuccess()
	_ = s.accounts.Update(ctx, account) //nolint:errcheck // best effort, login proceeds

	evicted, err := s.sessions.Begin(conn, account.Email)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if evicted != nil {
		s.logger.Info("evicted prior session",
			"email", account.Email,
			"evicted_conn_id", evicted.ID().String(),
			"conn_id", conn.ID().String(),
		)
		_ = evicted.Close() //nolint:errcheck // eviction is best effort
	}

	span.SetAttributes(attribute.Bool("auth.evicted_prior", evicted != nil))
	return &LoginResult{
		Email:        account.Email,
		Admin:        account.Admin,
		Guest:        account.Guest,
		EvictedPrior: evicted != nil,
	}, nil
}

// Register creates an unconfirmed account from the sealed envelope and
// issues a confirmation code out of band.
func (s *Service) Register(ctx context.Context, conn session.Conn, sealed []byte) error {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	fields, err := s.open(conn, sealed)
	if err != nil {
		return s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	password := fields["password"]
	if email == "" || password == "" {
		return s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email and password are required"))
	}

	if err := ValidateEmail(email, s.policy); err != nil {
		return s.fail(span, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return s.fail(span, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err))
	}

	account, err := NewAccount(email, hash)
	if err != nil {
		return s.fail(span, err)
	}

	if err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.logger.Info("registration for existing email", "email", email)
			return s.fail(span, oops.Code("AUTH_ALREADY_REGISTERED").
				Errorf("an account with this email already exists"))
		}
		return s.fail(span, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert account").
			Wrap(err))
	}

	// Persistence succeeded; the confirmation mail goes out of band and
	// never fails the registration.
	s.issueConfirmationCode(ctx, email)
	return nil
}

// RequestEmailConfirmationCode issues a fresh confirmation code for the
// account in the envelope. Unknown and already-confirmed accounts are
// silently ignored so the endpoint cannot be used to enumerate accounts.
func (s *Service) RequestEmailConfirmationCode(ctx context.Context, conn session.Conn, sealed []byte) error {
	ctx, span := tracer.Start(ctx, "auth.request_confirmation_code")
	defer span.End()

	fields, err := s.open(conn, sealed)
	if err != nil {
		return s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	if email == "" {
		return s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email is required"))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return s.fail(span, oops.Code("AUTH_CODE_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err))
	}
	if account.EmailConfirmed {
		return nil
	}

	s.issueConfirmationCode(ctx, email)
	return nil
}

// ConfirmEmail flips the account's confirmation flag when the submitted
// code matches. Confirming an already-confirmed account succeeds.
func (s *Service) ConfirmEmail(ctx context.Context, conn session.Conn, sealed []byte) error {
	ctx, span := tracer.Start(ctx, "auth.confirm_email")
	defer span.End()

	fields, err := s.open(conn, sealed)
	if err != nil {
		return s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	code := fields["code"]
	if email == "" || code == "" {
		return s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email and code are required"))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(span, invalidCode())
		}
		return s.fail(span, oops.Code("AUTH_CONFIRM_FAILED").
			With("operation", "get account by email").
			Wrap(err))
	}
	if account.EmailConfirmed {
		return nil
	}

	stored, err := s.codes.GetConfirmationCode(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(span, invalidCode())
		}
		return s.fail(span, oops.Code("AUTH_CONFIRM_FAILED").
			With("operation", "get confirmation code").
			Wrap(err))
	}
	if !VerifyCode(code, stored) {
		return s.fail(span, invalidCode())
	}

	account.EmailConfirmed = true
	if err := s.accounts.Update(ctx, account); err != nil {
		return s.fail(span, oops.Code("AUTH_CONFIRM_FAILED").
			With("operation", "update account").
			Wrap(err))
	}

	// Cleanup; the confirmation already took effect.
	_ = s.codes.DeleteConfirmationCode(ctx, email) //nolint:errcheck

	return nil
}

// RequestPasswordResetCode issues a fresh reset code, invalidating any
// prior one. Unknown accounts are silently ignored.
func (s *Service) RequestPasswordResetCode(ctx context.Context, conn session.Conn, sealed []byte) error {
	ctx, span := tracer.Start(ctx, "auth.request_reset_code")
	defer span.End()

	fields, err := s.open(conn, sealed)
	if err != nil {
		return s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	if email == "" {
		return s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email is required"))
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return s.fail(span, oops.Code("AUTH_CODE_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err))
	}

	code, err := GenerateCode()
	if err != nil {
		return s.fail(span, err)
	}
	if err := s.codes.SaveResetCode(ctx, email, code); err != nil {
		return s.fail(span, oops.Code("AUTH_CODE_REQUEST_FAILED").
			With("operation", "save reset code").
			Wrap(err))
	}
	s.dispatchMail(ctx, email, "Duskhollow password reset",
		fmt.Sprintf("A password reset was requested for your account.\n\nYour reset code: %s\n\nIf you did not request this, you can ignore this message.", code))
	return nil
}

// ResetPassword replaces the account's password when the submitted
// reset code matches the stored one. The code is consumed on use.
func (s *Service) ResetPassword(ctx context.Context, conn session.Conn, sealed []byte) error {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer span.End()

	fields, err := s.open(conn, sealed)
	if err != nil {
		return s.fail(span, err)
	}

	email := NormalizeEmail(fields["email"])
	code := fields["code"]
	newPassword := fields["newPassword"]
	if email == "" || code == "" || newPassword == "" {
		return s.fail(span, oops.Code("AUTH_INVALID_REQUEST").
			Errorf("email, code and newPassword are required"))
	}

	stored, err := s.codes.GetResetCode(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(span, invalidCode())
		}
		return s.fail(span, oops.Code("AUTH_RESET_FAILED").
			With("operation", "get reset code").
			Wrap(err))
	}
	if !VerifyCode(code, stored) {
		return s.fail(span, invalidCode())
	}

	// One-time use: consume the code before touching the password so a
	// replay cannot ride a partially failed reset.
	if err := s.codes.ClearResetCode(ctx, email); err != nil {
		return s.fail(span, oops.Code("AUTH_RESET_FAILED").
			With("operation", "clear reset code").
			Wrap(err))
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return s.fail(span, oops.Code("AUTH_RESET_FAILED").
			With("operation", "get account by email").
			Wrap(err))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail(span, oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash new password").
			Wrap(err))
	}

	account.PasswordHash = hash
	account.RecordSuccess()
	if err := s.accounts.Update(ctx, account); err != nil {
		return s.fail(span, oops.Code("AUTH_RESET_FAILED").
			With("operation", "update account").
			Wrap(err))
	}
	return nil
}

// open checks the connection's secure channel and decodes the sealed
// envelope into its fields.
func (s *Service) open(conn session.Conn, sealed []byte) (map[string]string, error) {
	key, ok := s.keys.Lookup(conn.ID())
	if !ok {
		return nil, oops.Code("AUTH_CHANNEL_INSECURE").
			With("conn_id", conn.ID().String()).
			Errorf("no secure channel established")
	}
	// Built fresh rather than wrapping: a wrapped envelope error would
	// surface the inner envelope code instead of AUTH_INVALID_REQUEST.
	fields, err := envelope.Decode(sealed, key)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_REQUEST").
			With("conn_id", conn.ID().String()).
			With("cause", err.Error()).
			Errorf("malformed credential envelope")
	}
	return fields, nil
}

// issueConfirmationCode stores a fresh confirmation code (overwriting
// any prior one) and mails it. Never fails the calling operation.
func (s *Service) issueConfirmationCode(ctx context.Context, email string) {
	code, err := GenerateCode()
	if err != nil {
		s.logger.Error("confirmation code generation failed", "email", email, "error", err)
		return
	}
	if err := s.codes.SaveConfirmationCode(ctx, email, code); err != nil {
		s.logger.Error("confirmation code save failed", "email", email, "error", err)
		return
	}
	s.dispatchMail(ctx, email, "Confirm your Duskhollow account",
		fmt.Sprintf("Welcome to Duskhollow!\n\nYour confirmation code: %s", code))
}

// dispatchMail sends fire-and-forget; failures are logged only.
func (s *Service) dispatchMail(ctx context.Context, to, subject, body string) {
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("mail dispatch failed", "to", to, "subject", subject, "error", err)
	}
}

// fail records the failure code on the span and passes the error through.
func (s *Service) fail(span trace.Span, err error) error {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			span.SetStatus(otelcodes.Error, code)
			return err
		}
	}
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}

func invalidCode() error {
	return oops.Code("AUTH_INVALID_CODE").Errorf("invalid code")
}
