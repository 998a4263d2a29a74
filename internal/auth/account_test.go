// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskhollow/duskhollow/internal/auth"
	"github.com/duskhollow/duskhollow/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "player@example.com", auth.NormalizeEmail("  Player@Example.COM "))
	assert.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestValidateEmail(t *testing.T) {
	policy := auth.DefaultEmailPolicy()

	tests := []struct {
		name     string
		email    string
		policy   auth.EmailPolicy
		wantCode string
	}{
		{name: "valid email", email: "player@example.com", policy: policy},
		{name: "whitespace inside", email: "abc def@x.com", policy: policy, wantCode: "AUTH_INVALID_EMAIL"},
		{name: "missing at sign", email: "player.example.com", policy: policy, wantCode: "AUTH_INVALID_EMAIL"},
		{name: "missing dot", email: "player@examplecom", policy: policy, wantCode: "AUTH_INVALID_EMAIL"},
		{name: "too short", email: "a@b.c", policy: policy, wantCode: "AUTH_INVALID_LENGTH"},
		{
			name:     "banned word",
			email:    "administrator@example.com",
			policy:   auth.EmailPolicy{MinLength: 6, MaxLength: 64, BannedWords: []string{"admin"}},
			wantCode: "AUTH_INVALID_EMAIL",
		},
		{
			name:   "banned word absent",
			email:  "player@example.com",
			policy: auth.EmailPolicy{MinLength: 6, MaxLength: 64, BannedWords: []string{"admin"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email, tt.policy)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			}
		})
	}
}

func TestValidateEmail_LengthBounds(t *testing.T) {
	long := "pppppppppppppppppppppppppppppppppppppppppppppppppppppp@example.com"
	require.Greater(t, len(long), auth.DefaultEmailMaxLength)
	errutil.AssertErrorCode(t,
		auth.ValidateEmail(long, auth.DefaultEmailPolicy()), "AUTH_INVALID_LENGTH")
}

func TestNewAccount(t *testing.T) {
	t.Run("normalizes email and starts unconfirmed", func(t *testing.T) {
		account, err := auth.NewAccount(" Player@Example.COM ", "somehash")
		require.NoError(t, err)

		assert.Equal(t, "player@example.com", account.Email)
		assert.False(t, account.EmailConfirmed)
		assert.False(t, account.Admin)
		assert.False(t, account.Guest)
		assert.Zero(t, account.FailedAttempts)
		assert.NotZero(t, account.ID)
	})

	t.Run("rejects empty email", func(t *testing.T) {
		_, err := auth.NewAccount("  ", "somehash")
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewAccount("player@example.com", "")
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_REQUEST")
	})
}

func TestAccount_Lockout(t *testing.T) {
	account, err := auth.NewAccount("player@example.com", "somehash")
	require.NoError(t, err)

	for i := 0; i < auth.LockoutThreshold-1; i++ {
		account.RecordFailure()
		assert.False(t, account.IsLocked(), "failure %d must not lock", i+1)
	}

	account.RecordFailure()
	assert.True(t, account.IsLocked(), "threshold failure must lock")
	require.NotNil(t, account.LockedUntil)
	assert.WithinDuration(t,
		time.Now().Add(auth.LockoutDuration), *account.LockedUntil, time.Minute)

	account.RecordSuccess()
	assert.False(t, account.IsLocked())
	assert.Zero(t, account.FailedAttempts)
	assert.Nil(t, account.LockedUntil)
}

func TestIsLockedOut(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	assert.False(t, auth.IsLockedOut(nil))
	assert.False(t, auth.IsLockedOut(&past), "expired lockout no longer applies")
	assert.True(t, auth.IsLockedOut(&future))
}
