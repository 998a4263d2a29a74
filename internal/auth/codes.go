// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"

	"github.com/samber/oops"
)

// codeBytes is the entropy behind a confirmation or reset code.
// 5 bytes encode to 8 base32 characters, short enough to retype from
// an e-mail.
const codeBytes = 5

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateCode creates a one-time confirmation or reset code.
func GenerateCode() (string, error) {
	raw := make([]byte, codeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", oops.Code("AUTH_CODE_GENERATE_FAILED").Wrap(err)
	}
	return codeEncoding.EncodeToString(raw), nil
}

// VerifyCode compares a submitted code against the stored one in
// constant time. Empty values never match.
func VerifyCode(submitted, stored string) bool {
	if submitted == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}
