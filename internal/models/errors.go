package models

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrPersistence     = errors.New("persistence failure")

	// ErrDuplicatePair is returned by stores when a live room already exists
	// for the participant pair.
	ErrDuplicatePair = errors.New("room already exists for participant pair")
)
