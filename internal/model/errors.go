package model

import "github.com/rotisserie/eris"

var (
	// ErrNotFound is returned when no profile exists for a brand.
	ErrNotFound = eris.New("profile not found")
	// ErrAlreadyExists is returned when creating a profile for a brand that has one.
	ErrAlreadyExists = eris.New("profile already exists")
	// ErrConflict is returned when a conditional write loses to a concurrent writer.
	ErrConflict = eris.New("profile revision conflict")
)
