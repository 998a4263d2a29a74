// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package gate is the network front door of the Duskhollow server: it
// frames tagged messages over TCP, routes requests to the
// authentication flow controller and writes tagged responses back.
package gate

import (
	"encoding/binary"
	"io"

	"github.com/samber/oops"
)

// Tag identifies the kind of a framed message.
type Tag byte

// Request tags.
const (
	TagHandshake Tag = 0x01 + iota
	TagLogin
	TagRegister
	TagRequestEmailCode
	TagConfirmEmail
	TagRequestResetCode
	TagResetPassword
)

// Response tags. Every response is tagged so a client can correlate
// request/response pairs without a shared sequence number.
const (
	TagHandshakeReply Tag = 0x81 + iota
	TagLoginReply
	TagRegisterReply
	TagRequestEmailCodeReply
	TagConfirmEmailReply
	TagRequestResetCodeReply
	TagResetPasswordReply
)

// String returns the tag name for logs and metrics labels.
func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "handshake"
	case TagLogin:
		return "login"
	case TagRegister:
		return "register"
	case TagRequestEmailCode:
		return "request_email_code"
	case TagConfirmEmail:
		return "confirm_email"
	case TagRequestResetCode:
		return "request_reset_code"
	case TagResetPassword:
		return "reset_password"
	case TagHandshakeReply:
		return "handshake_reply"
	case TagLoginReply:
		return "login_reply"
	case TagRegisterReply:
		return "register_reply"
	case TagRequestEmailCodeReply:
		return "request_email_code_reply"
	case TagConfirmEmailReply:
		return "confirm_email_reply"
	case TagRequestResetCodeReply:
		return "request_reset_code_reply"
	case TagResetPasswordReply:
		return "reset_password_reply"
	default:
		return "unknown"
	}
}

// Status is the response status vocabulary.
type Status byte

const (
	StatusSuccess Status = iota
	StatusError
	StatusUnauthorized
	StatusUnconfirmed
)

// String returns the status name for logs and metrics labels.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusUnconfirmed:
		return "unconfirmed"
	default:
		return "unknown"
	}
}

// MaxFrameLen bounds a single frame's payload. Handshake public keys
// and sealed credential envelopes are all well under this.
const MaxFrameLen = 8 * 1024

// frameHeaderLen is the u32 length prefix plus the tag byte.
const frameHeaderLen = 5

// ReadFrame reads one tagged frame: u32 big-endian length, u8 tag,
// payload. The length covers the tag and payload.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:4]); err != nil {
		return 0, nil, err //nolint:wrapcheck // io.EOF must pass through unwrapped
	}
	length := binary.BigEndian.Uint32(header[:4])
	if length < 1 || length > MaxFrameLen {
		return 0, nil, oops.Code("GATE_FRAME_INVALID").
			With("length", length).
			Errorf("frame length out of bounds")
	}
	if _, err := io.ReadFull(r, header[4:5]); err != nil {
		return 0, nil, err //nolint:wrapcheck
	}
	payload := make([]byte, length-1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err //nolint:wrapcheck
	}
	return Tag(header[4]), payload, nil
}

// AppendFrame encodes one tagged frame into buf.
func AppendFrame(buf []byte, tag Tag, payload []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(1+len(payload)))
	buf = append(buf, byte(tag))
	return append(buf, payload...)
}

// EncodeResponse lays out a status/reason response payload:
// u8 status, u16 reason length, reason bytes.
func EncodeResponse(status Status, reason string) []byte {
	buf := make([]byte, 0, 3+len(reason))
	buf = append(buf, byte(status))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(reason)))
	return append(buf, reason...)
}

// EncodeLoginSuccess is EncodeResponse plus the account's role flags.
func EncodeLoginSuccess(reason string, admin, guest bool) []byte {
	buf := EncodeResponse(StatusSuccess, reason)
	buf = append(buf, boolByte(admin), boolByte(guest))
	return buf
}

// DecodeResponse parses a response payload produced by EncodeResponse.
// Trailing bytes (login role flags) are returned as-is.
func DecodeResponse(payload []byte) (Status, string, []byte, error) {
	if len(payload) < 3 {
		return 0, "", nil, oops.Code("GATE_FRAME_INVALID").
			Errorf("response payload too short")
	}
	status := Status(payload[0])
	n := int(binary.BigEndian.Uint16(payload[1:3]))
	if 3+n > len(payload) {
		return 0, "", nil, oops.Code("GATE_FRAME_INVALID").
			Errorf("truncated response reason")
	}
	return status, string(payload[3 : 3+n]), payload[3+n:], nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
