// Package common defines shared constants and sentinel errors used across
// client and server layers of GophChat. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already taken")

	// Service-level errors.
	ErrWrongPassword      = errors.New("incorrect password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReservedUsername   = errors.New("username is reserved")

	// Session token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Wire and delivery errors.
	ErrMalformedFrame = errors.New("malformed frame")
	ErrQueueFull      = errors.New("outbound queue full")
	ErrSessionClosed  = errors.New("session closed")
)
