// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package auth implements account identity for the Duskhollow gate.
//
// # Domain types
//
// Account is the persistent player account, created through NewAccount
// so email normalization and policy validation cannot be bypassed.
// One-time confirmation and reset codes are issued by GenerateCode and
// compared with VerifyCode in constant time.
//
// # Service
//
// Service is the authentication flow controller. It orchestrates login,
// registration, e-mail confirmation and password reset over the
// per-connection secure channel, consulting the session registry and
// the injected repositories. Every failure carries an oops code; the
// gate handler translates codes into tagged wire responses.
package auth
