package models

import "errors"

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrAlreadyTerminal        = errors.New("order already terminal")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrPayoutNotReady         = errors.New("payout account not ready")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrProviderUnavailable    = errors.New("payout provider unavailable")
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
)
