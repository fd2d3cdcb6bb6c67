package model

import "errors"

var (
	// ErrInvalidRequest marks caller input that can never succeed as given.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when a keyed subscription or DND window does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps every failure of the underlying preference store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
