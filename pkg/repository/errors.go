package repository

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrStale is returned when optimistic locking fails: the supplied
	// version no longer matches the stored version
	ErrStale = errors.New("stale version")

	// ErrDuplicate is returned when inserting an entity whose id is taken
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidInput is returned when an entity fails basic validation
	ErrInvalidInput = errors.New("invalid input")
)
