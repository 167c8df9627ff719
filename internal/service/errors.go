package service

import "errors"

var (
	ErrInvalidIdentity = errors.New("please enter both game name and tag line")
	ErrBusy            = errors.New("another sync is already running")
	ErrNoMatches       = errors.New("no match IDs received")
	ErrNoMoreMatches   = errors.New("no older matches to load")
	ErrCutoffNotFound  = errors.New("cutoff match is not in the history")
	ErrNotConfirmed    = errors.New("operation not confirmed")
	ErrUnknownKind     = errors.New("unknown progress kind")
)
