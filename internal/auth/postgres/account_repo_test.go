// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskhollow/duskhollow/internal/auth"
	"github.com/duskhollow/duskhollow/pkg/errutil"
)

func accountRows(account *auth.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "password_hash", "email_confirmed", "is_admin", "is_guest",
		"failed_attempts", "locked_until", "created_at", "updated_at",
	}).AddRow(
		account.ID.String(), account.Email, account.PasswordHash,
		account.EmailConfirmed, account.Admin, account.Guest,
		account.FailedAttempts, account.LockedUntil,
		account.CreatedAt, account.UpdatedAt,
	)
}

func testAccount() *auth.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.Account{
		ID:           ulid.Make(),
		Email:        "player@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, account *auth.Account)
		wantErr   error
		errCode   string
	}{
		{
			name: "returns existing account",
			setupMock: func(mock pgxmock.PgxPoolIface, account *auth.Account) {
				mock.ExpectQuery(`SELECT .+ FROM accounts`).
					WithArgs(account.Email).
					WillReturnRows(accountRows(account))
			},
		},
		{
			name: "returns ErrNotFound when missing",
			setupMock: func(mock pgxmock.PgxPoolIface, account *auth.Account) {
				mock.ExpectQuery(`SELECT .+ FROM accounts`).
					WithArgs(account.Email).
					WillReturnError(errNoRows())
			},
			wantErr: auth.ErrNotFound,
			errCode: "ACCOUNT_NOT_FOUND",
		},
		{
			name: "wraps database errors",
			setupMock: func(mock pgxmock.PgxPoolIface, account *auth.Account) {
				mock.ExpectQuery(`SELECT .+ FROM accounts`).
					WithArgs(account.Email).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: nil,
			errCode: "ACCOUNT_GET_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			account := testAccount()
			tt.setupMock(mock, account)

			repo := NewAccountRepository(mock)
			got, err := repo.GetByEmail(context.Background(), account.Email)

			if tt.errCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.errCode)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, account.ID, got.ID)
				assert.Equal(t, account.Email, got.Email)
				assert.Equal(t, account.PasswordHash, got.PasswordHash)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccountRepository_Insert(t *testing.T) {
	t.Run("inserts new account", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectExec(`INSERT INTO accounts`).
			WithArgs(
				account.ID.String(), account.Email, account.PasswordHash,
				account.EmailConfirmed, account.Admin, account.Guest,
				account.FailedAttempts, account.LockedUntil,
				account.CreatedAt, account.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.Insert(context.Background(), account))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrDuplicateEmail on unique violation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectExec(`INSERT INTO accounts`).
			WithArgs(
				account.ID.String(), account.Email, account.PasswordHash,
				account.EmailConfirmed, account.Admin, account.Guest,
				account.FailedAttempts, account.LockedUntil,
				account.CreatedAt, account.UpdatedAt,
			).
			WillReturnError(uniqueViolation())

		repo := NewAccountRepository(mock)
		err = repo.Insert(context.Background(), account)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "ACCOUNT_DUPLICATE_EMAIL")
	})

	t.Run("wraps other database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectExec(`INSERT INTO accounts`).
			WithArgs(
				account.ID.String(), account.Email, account.PasswordHash,
				account.EmailConfirmed, account.Admin, account.Guest,
				account.FailedAttempts, account.LockedUntil,
				account.CreatedAt, account.UpdatedAt,
			).
			WillReturnError(errors.New("connection refused"))

		repo := NewAccountRepository(mock)
		err = repo.Insert(context.Background(), account)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INSERT_FAILED")
	})
}

func TestAccountRepository_Update(t *testing.T) {
	t.Run("updates existing account", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		account.EmailConfirmed = true
		mock.ExpectExec(`UPDATE accounts`).
			WithArgs(
				account.ID.String(), account.PasswordHash,
				account.EmailConfirmed, account.Admin, account.Guest,
				account.FailedAttempts, account.LockedUntil, account.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewAccountRepository(mock)
		require.NoError(t, repo.Update(context.Background(), account))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no rows affected", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		account := testAccount()
		mock.ExpectExec(`UPDATE accounts`).
			WithArgs(
				account.ID.String(), account.PasswordHash,
				account.EmailConfirmed, account.Admin, account.Guest,
				account.FailedAttempts, account.LockedUntil, account.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewAccountRepository(mock)
		err = repo.Update(context.Background(), account)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

// Compile-time interface checks.
var (
	_ auth.AccountRepository = (*AccountRepository)(nil)
	_ auth.CodeRepository    = (*CodeRepository)(nil)
)
