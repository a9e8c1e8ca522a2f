// Package apperr defines sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoContent signals a structurally empty input: no text, no URLs,
	// no derived channels, no files. This is the only pipeline condition
	// that surfaces to the caller instead of degrading.
	ErrNoContent = errors.New("no usable content")
)
