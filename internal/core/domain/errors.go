package domain

import "errors"

var (
	ErrNotFound      = errors.New("domain: not found")
	ErrInvalidStatus = errors.New("domain: invalid evaluation status")
	ErrInvalidTrack  = errors.New("domain: track id is required")
	ErrUnauthorized  = errors.New("domain: unauthorized")
	ErrInvalidPlay   = errors.New("domain: played duration must not be negative")
)
