// Package common defines sentinel errors and constants shared by the
// knowledge-api server, its repositories and the admin tooling. Callers
// should match these values with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStoreIO       = errors.New("store io error")

	// Service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrMissingInput = errors.New("missing input")

	// Auth errors. ErrInvalidToken covers malformed, tampered and expired
	// tokens; ErrUnknownUser is a valid token whose user record is gone.
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("unknown user")

	// Provider payload errors.
	ErrDecryption = errors.New("decryption failed")
)
