package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAlreadyProcessing is returned when a claim races with another
	// processing run for the same document.
	ErrAlreadyProcessing = errors.New("document already processing")

	// ErrInvalidUpload marks client-side upload rejections (type, size),
	// as opposed to storage failures.
	ErrInvalidUpload = errors.New("invalid upload")
)
