package domain

import "errors"

var (
	ErrInvalidStatus     = errors.New("invalid case status")
	ErrInvalidTransition = errors.New("invalid case status transition")
	ErrMalformedManifest = errors.New("malformed document manifest")
	ErrUnknownCategory   = errors.New("unknown visa category")
)
