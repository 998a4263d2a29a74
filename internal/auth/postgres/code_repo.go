// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/duskhollow/duskhollow/internal/auth"
)

// CodeRepository implements auth.CodeRepository using PostgreSQL. Codes
// are keyed by email with an upsert, so issuing a new code replaces any
// outstanding one.
type CodeRepository struct {
	db querier
}

// NewCodeRepository creates a new CodeRepository.
func NewCodeRepository(db querier) *CodeRepository {
	return &CodeRepository{db: db}
}

// GetConfirmationCode returns the outstanding email confirmation code
// for the account, or auth.ErrNotFound if none is pending.
func (r *CodeRepository) GetConfirmationCode(ctx context.Context, email string) (string, error) {
	return r.getCode(ctx, "email_confirmations", email)
}

// SaveConfirmationCode stores a confirmation code, replacing any prior one.
func (r *CodeRepository) SaveConfirmationCode(ctx context.Context, email, code string) error {
	return r.saveCode(ctx, "email_confirmations", email, code)
}

// DeleteConfirmationCode removes the confirmation code for the account.
// Deleting a code that does not exist is not an error.
func (r *CodeRepository) DeleteConfirmationCode(ctx context.Context, email string) error {
	return r.deleteCode(ctx, "email_confirmations", email)
}

// GetResetCode returns the outstanding password reset code for the
// account, or auth.ErrNotFound if none is pending.
func (r *CodeRepository) GetResetCode(ctx context.Context, email string) (string, error) {
	return r.getCode(ctx, "password_resets", email)
}

// SaveResetCode stores a reset code, replacing any prior one.
func (r *CodeRepository) SaveResetCode(ctx context.Context, email, code string) error {
	return r.saveCode(ctx, "password_resets", email, code)
}

// ClearResetCode removes the reset code for the account. Clearing a
// code that does not exist is not an error.
func (r *CodeRepository) ClearResetCode(ctx context.Context, email string) error {
	return r.deleteCode(ctx, "password_resets", email)
}

func (r *CodeRepository) getCode(ctx context.Context, table, email string) (string, error) {
	var code string
	err := r.db.QueryRow(ctx, `
		SELECT code FROM `+table+` WHERE email = LOWER($1)
	`, email).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("CODE_NOT_FOUND").
			With("table", table).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("CODE_GET_FAILED").
			With("table", table).
			With("email", email).
			Wrap(err)
	}
	return code, nil
}

func (r *CodeRepository) saveCode(ctx context.Context, table, email, code string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO `+table+` (email, code, issued_at)
		VALUES (LOWER($1), $2, NOW())
		ON CONFLICT (email) DO UPDATE SET code = $2, issued_at = NOW()
	`, email, code)
	if err != nil {
		return oops.Code("CODE_SAVE_FAILED").
			With("table", table).
			With("email", email).
			Wrap(err)
	}
	return nil
}

func (r *CodeRepository) deleteCode(ctx context.Context, table, email string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM `+table+` WHERE email = LOWER($1)
	`, email)
	if err != nil {
		return oops.Code("CODE_DELETE_FAILED").
			With("table", table).
			With("email", email).
			Wrap(err)
	}
	return nil
}
