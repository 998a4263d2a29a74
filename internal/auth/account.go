// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default email policy bounds, overridable via configuration.
const (
	DefaultEmailMinLength = 6
	DefaultEmailMaxLength = 64
)

// EmailPolicy holds the configured registration constraints.
type EmailPolicy struct {
	MinLength   int
	MaxLength   int
	BannedWords []string
}

// DefaultEmailPolicy returns the policy used when none is configured.
func DefaultEmailPolicy() EmailPolicy {
	return EmailPolicy{
		MinLength: DefaultEmailMinLength,
		MaxLength: DefaultEmailMaxLength,
	}
}

// Account represents a player account.
type Account struct {
	ID             ulid.ULID
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	Admin          bool
	Guest          bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount creates a validated, unconfirmed Account. The email must
// already satisfy the caller's EmailPolicy; only invariants that must
// never be bypassed are rechecked here.
func NewAccount(email, passwordHash string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_REQUEST").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	return IsLockedOut(a.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if the
// threshold is reached.
func (a *Account) RecordFailure() {
	a.FailedAttempts++
	a.LockedUntil = ComputeLockoutTime(a.FailedAttempts)
	a.UpdatedAt = time.Now()
}

// RecordSuccess resets the failure counter and lockout.
func (a *Account) RecordSuccess() {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = time.Now()
}

// NormalizeEmail lower-cases and trims an email for use as the account
// identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks a normalized email against the policy. Shape
// violations yield AUTH_INVALID_EMAIL; length violations yield
// AUTH_INVALID_LENGTH. Shape is checked first.
func ValidateEmail(email string, policy EmailPolicy) error {
	if strings.ContainsFunc(email, unicode.IsSpace) {
		return oops.Code("AUTH_INVALID_EMAIL").
			Errorf("email cannot contain whitespace")
	}
	for _, word := range policy.BannedWords {
		if word != "" && strings.Contains(email, strings.ToLower(word)) {
			return oops.Code("AUTH_INVALID_EMAIL").
				Errorf("email contains a disallowed word")
		}
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return oops.Code("AUTH_INVALID_EMAIL").
			Errorf("email must contain '@' and '.'")
	}
	if len(email) < policy.MinLength {
		return oops.Code("AUTH_INVALID_LENGTH").
			With("min", policy.MinLength).
			Errorf("email must be at least %d characters", policy.MinLength)
	}
	if len(email) > policy.MaxLength {
		return oops.Code("AUTH_INVALID_LENGTH").
			With("max", policy.MaxLength).
			Errorf("email must be at most %d characters", policy.MaxLength)
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// GetByEmail retrieves an account by normalized email.
	// Returns ErrNotFound (wrapped) if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Insert stores a new account. Returns ErrDuplicateEmail (wrapped)
	// if the email is already registered.
	Insert(ctx context.Context, account *Account) error

	// Update updates an existing account.
	Update(ctx context.Context, account *Account) error
}

// CodeRepository manages one-time confirmation and reset codes, keyed
// by account email. Saving a code overwrites any prior one, so at most
// one code of each kind is active per account.
type CodeRepository interface {
	GetConfirmationCode(ctx context.Context, email string) (string, error)
	SaveConfirmationCode(ctx context.Context, email, code string) error
	DeleteConfirmationCode(ctx context.Context, email string) error

	GetResetCode(ctx context.Context, email string) (string, error)
	SaveResetCode(ctx context.Context, email, code string) error
	ClearResetCode(ctx context.Context, email string) error
}
