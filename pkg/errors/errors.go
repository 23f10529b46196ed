// Package errors contains domain errors that different layers can use to add
// meaning to an error. This is implemented as a separate package in order to
// avoid cycle import errors.
package errors

import "errors"

// The following errors serve as domain errors that can be used by the
// different layers. The entrypoint layer of the host process intercepts
// these and converts them to the relevant response codes.
var (
	// ErrNotFound is used when a resource doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is used when the provided argument is incorrect
	// (e.g. format, reserved).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyExists is used when a resource can't be created because it
	// already exists.
	ErrAlreadyExists = errors.New("already exists")
)
