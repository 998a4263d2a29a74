// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package auth

import "time"

// Lockout configuration.
const (
	// LockoutDuration is how long an account stays locked after too
	// many failed logins.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that
	// triggers a lockout.
	LockoutThreshold = 7
)

// IsLockedOut returns true if the lockout time is in the future.
func IsLockedOut(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}

// ComputeLockoutTime returns the lockout timestamp for the given failure
// count, or nil while below the threshold.
func ComputeLockoutTime(failures int) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	until := time.Now().Add(LockoutDuration)
	return &until
}
