package client

import "errors"

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnexpectedFrame = errors.New("unexpected frame from server")
)
