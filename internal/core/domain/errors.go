package domain

import "errors"

var (
	// ErrValidation is wrapped by every *ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrRecordNotFound is returned when no record has the requested id
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when adding a record whose id is already stored
	ErrDuplicateRecord = errors.New("record already exists")
	// ErrPersistence is returned when the diary could not be saved or loaded
	ErrPersistence = errors.New("persistence failed")
)
